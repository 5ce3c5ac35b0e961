package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/epicwp/translation-orchestrator/pkg/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Opener builds the runtime a command works on. The returned func releases it.
type Opener func(ctx context.Context) (*service.Runtime, func(), error)

type GlobalOptions struct {
	LogLevel string

	out  io.Writer
	open Opener
}

func DefaultGlobalOptions() GlobalOptions {
	return GlobalOptions{
		LogLevel: "warn",
	}
}

func (o *GlobalOptions) Bind(fs *pflag.FlagSet) {
	fs.StringVar(&o.LogLevel, "log-level", o.LogLevel, "Log level written to stderr")
}

func (o *GlobalOptions) Complete(cmd *cobra.Command, args []string) error {
	o.out = cmd.OutOrStdout()
	if o.open != nil {
		return nil
	}

	lvl, err := zap.ParseAtomicLevel(o.LogLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", o.LogLevel, err)
	}
	zap.ReplaceGlobals(log.InitLog(lvl, "console"))
	return nil
}

func (o *GlobalOptions) Validate(args []string) error {
	return nil
}

// Runtime opens the store and the scheduler described by the environment.
func (o *GlobalOptions) Runtime(ctx context.Context) (*service.Runtime, func(), error) {
	if o.open != nil {
		return o.open(ctx)
	}

	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("reading configuration: %w", err)
	}
	rt, err := service.Bootstrap(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return rt, func() { _ = rt.Close() }, nil
}
