package token

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/Keksclan/goRawrCreds/autherr"
)

func tokenEndpoint(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Form.Get("client_secret") != "s3cret":
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
		case r.Form.Get("scope") == "admin":
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_scope","error_description":"admin not granted"}`))
		case r.Form.Get("scope") == "flaky":
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"error":"temporarily_unavailable"}`))
		default:
			_, _ = w.Write([]byte(`{"access_token":"cc-token","token_type":"bearer","expires_in":3600}`))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func ccConfig(url, secret string) clientcredentials.Config {
	return clientcredentials.Config{
		ClientID:     "rawr",
		ClientSecret: secret,
		TokenURL:     url,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
}

func TestClientCredentials(t *testing.T) {
	srv := tokenEndpoint(t)
	acquire := ClientCredentials(ccConfig(srv.URL, "s3cret"))

	tok, err := acquire(t.Context(), "read write")
	require.NoError(t, err)
	require.Equal(t, "cc-token", tok.Value)
	require.Equal(t, "Bearer", tok.Type)
	require.WithinDuration(t, time.Now().Add(time.Hour), tok.Expiry, time.Minute)
}

func TestClientCredentialsErrorMapping(t *testing.T) {
	srv := tokenEndpoint(t)

	_, err := ClientCredentials(ccConfig(srv.URL, "s3cret"))(t.Context(), "admin")
	require.ErrorIs(t, err, autherr.ErrScope)

	_, err = ClientCredentials(ccConfig(srv.URL, "wrong"))(t.Context(), "read")
	require.ErrorIs(t, err, autherr.ErrConfig)

	_, err = ClientCredentials(ccConfig(srv.URL, "s3cret"))(t.Context(), "flaky")
	require.ErrorIs(t, err, autherr.ErrAcquisition)
}

func TestProviderOverClientCredentials(t *testing.T) {
	srv := tokenEndpoint(t)
	p, err := New(ClientCredentials(ccConfig(srv.URL, "s3cret")))
	require.NoError(t, err)

	tok, err := p.Get(t.Context(), "read")
	require.NoError(t, err)
	require.Equal(t, "cc-token", tok.Value)

	_, err = p.Get(t.Context(), "admin")
	require.ErrorIs(t, err, autherr.ErrScope)
}

type failingSource struct{}

func (failingSource) Token() (*oauth2.Token, error) { return nil, errors.New("no identity") }

func TestFromTokenSource(t *testing.T) {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "from-src", TokenType: "Bearer"})
	tok, err := FromTokenSource(src)(t.Context(), "ignored")
	require.NoError(t, err)
	require.Equal(t, "from-src", tok.Value)
	require.True(t, tok.Expiry.IsZero())

	_, err = FromTokenSource(failingSource{})(t.Context(), "read")
	require.ErrorIs(t, err, autherr.ErrAcquisition)
}
