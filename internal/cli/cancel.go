package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type CancelOptions struct {
	GlobalOptions
}

func DefaultCancelOptions() *CancelOptions {
	return &CancelOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdCancel() *cobra.Command {
	return newCmdCancel(DefaultCancelOptions())
}

func newCmdCancel(o *CancelOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel run/ID",
		Short: "Cancel a run and its unfinished jobs.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.Complete(cmd, args); err != nil {
				return err
			}
			if err := o.Validate(args); err != nil {
				return err
			}
			return o.Run(cmd.Context(), args)
		},
		SilenceUsage: true,
	}
	o.Bind(cmd.Flags())
	return cmd
}

func (o *CancelOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *CancelOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *CancelOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	_, id, err := parseAndValidateKindId(args[0], RunKind)
	if err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("a run id is required, e.g. run/1")
	}
	return nil
}

func (o *CancelOptions) Run(ctx context.Context, args []string) error {
	rt, release, err := o.Runtime(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, id, _ := parseAndValidateKindId(args[0], RunKind)
	run, err := rt.Runs.CancelRun(ctx, *id)
	if err != nil {
		return fmt.Errorf("cancelling run/%d: %w", *id, err)
	}
	return printResponse(o.out, "", run, func(w *tabwriter.Writer) { printRunsTable(w, *run) })
}
