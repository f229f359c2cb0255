// Package app holds the rawrctl commands.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Keksclan/goRawrCreds/config"
)

// env carries what every subcommand needs.
type env struct {
	v       *viper.Viper
	cfgPath string
}

// NewRootCmd creates the rawrctl root command.
func NewRootCmd() *cobra.Command {
	e := &env{v: config.NewViper()}

	root := &cobra.Command{
		Use:   "rawrctl",
		Short: "Exercise gRPC channel credentials against a verifier",
		Long: `rawrctl binds TLS and bearer credentials to a gRPC channel and pings a
verifier with it, or runs that verifier. Settings come from a config file,
RAWR_* environment variables and flags, in increasing precedence.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&e.cfgPath, "config", "c", "", "Path to the configuration file")
	root.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().Bool("trace-stdout", false, "Print finished spans to stdout")
	e.bind(root.PersistentFlags(), map[string]string{
		"log.level":      "log-level",
		"tracing.stdout": "trace-stdout",
	})

	root.AddCommand(newPingCmd(e))
	root.AddCommand(newServeCmd(e))
	return root
}

// bind maps config keys to flags. Only flags set on the command line
// override the file and the environment.
func (e *env) bind(fs *pflag.FlagSet, keys map[string]string) {
	for key, flag := range keys {
		if err := e.v.BindPFlag(key, fs.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("binding flag %q: %v", flag, err))
		}
	}
}

func (e *env) load() (*config.Config, error) {
	return config.Load(e.v, e.cfgPath)
}

// newLogger builds a zap logger behind logr. logr's V(1) maps to zap's
// debug level.
func newLogger(c config.Log) (logr.Logger, func(), error) {
	zc := zap.NewProductionConfig()
	if c.Development {
		zc = zap.NewDevelopmentConfig()
	}
	lvl, err := zapcore.ParseLevel(c.Level)
	if err != nil {
		return logr.Logger{}, nil, err
	}
	zc.Level = zap.NewAtomicLevelAt(lvl)

	zl, err := zc.Build()
	if err != nil {
		return logr.Logger{}, nil, err
	}
	return zapr.NewLogger(zl), func() { _ = zl.Sync() }, nil
}

// newTracerProvider returns nil when span export is off.
func newTracerProvider(c config.Tracing, w io.Writer) (*sdktrace.TracerProvider, error) {
	if !c.Stdout {
		return nil, nil
	}
	exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("rawrctl: stdout exporter: %w", err)
	}
	return sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp)), nil
}

func shutdown(tp *sdktrace.TracerProvider, log logr.Logger) {
	if tp == nil {
		return
	}
	if err := tp.Shutdown(context.Background()); err != nil {
		log.Error(err, "flushing spans")
	}
}
