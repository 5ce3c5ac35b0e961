package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type RecoverOptions struct {
	GlobalOptions

	Output string
}

func DefaultRecoverOptions() *RecoverOptions {
	return &RecoverOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdRecover() *cobra.Command {
	return newCmdRecover(DefaultRecoverOptions())
}

func newCmdRecover(o *RecoverOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "recover",
		Short: "Repair jobs left in progress by workers that went away.",
		Args:  cobra.NoArgs,
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

func (o *RecoverOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
}

func (o *RecoverOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *RecoverOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	return validateOutput(o.Output)
}

func (o *RecoverOptions) Run(ctx context.Context, args []string) error {
	rt, release, err := o.Runtime(ctx)
	if err != nil {
		return err
	}
	defer release()

	result, err := rt.Sweeper.Recover(ctx)
	if err != nil {
		return fmt.Errorf("recovering stale jobs: %w", err)
	}

	return printResponse(o.out, o.Output, result, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "FINISHED\tRESET\tFAILED")
		fmt.Fprintf(w, "%d\t%d\t%d\n", result.Finished, result.Reset, result.Failed)
	})
}
