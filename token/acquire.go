package token

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Keksclan/goRawrCreds/autherr"
)

const opAcquire = "token.acquire"

// Static returns an AcquireFunc that always yields value. A zero expiry
// means the token never expires.
func Static(value string, expiry time.Time) AcquireFunc {
	return func(context.Context, string) (Token, error) {
		return Token{Value: value, Type: DefaultType, Expiry: expiry}, nil
	}
}

// FromTokenSource adapts an oauth2.TokenSource. The source decides the
// scope; the scope passed to the AcquireFunc is ignored.
func FromTokenSource(src oauth2.TokenSource) AcquireFunc {
	return func(_ context.Context, scope string) (Token, error) {
		tok, err := src.Token()
		if err != nil {
			return Token{}, classifyOAuth2(scope, err)
		}
		return fromOAuth2(tok), nil
	}
}

// ClientCredentials performs the OAuth2 client-credentials grant for every
// refresh. A space separated scope replaces cfg.Scopes. An invalid_scope
// answer from the authority is a ScopeError.
func ClientCredentials(cfg clientcredentials.Config) AcquireFunc {
	return func(ctx context.Context, scope string) (Token, error) {
		c := cfg
		if scope != "" {
			c.Scopes = strings.Fields(scope)
		}
		tok, err := c.Token(ctx)
		if err != nil {
			return Token{}, classifyOAuth2(scope, err)
		}
		return fromOAuth2(tok), nil
	}
}

func fromOAuth2(tok *oauth2.Token) Token {
	return Token{Value: tok.AccessToken, Type: tok.Type(), Expiry: tok.Expiry}
}

// classifyOAuth2 maps token endpoint failures onto autherr kinds.
func classifyOAuth2(scope string, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return autherr.Acquisition(opAcquire, scope, err)
	}
	switch {
	case re.ErrorCode == "invalid_scope":
		return autherr.Scope(opAcquire, scope, err)
	case re.ErrorCode == "invalid_client" || re.ErrorCode == "unauthorized_client":
		return autherr.Config(opAcquire, err)
	case re.Response != nil && re.Response.StatusCode == http.StatusForbidden:
		return autherr.Scope(opAcquire, scope, err)
	default:
		return autherr.Acquisition(opAcquire, scope, err)
	}
}
