package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type DeleteOptions struct {
	GlobalOptions
}

func DefaultDeleteOptions() *DeleteOptions {
	return &DeleteOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdDelete() *cobra.Command {
	return newCmdDelete(DefaultDeleteOptions())
}

func newCmdDelete(o *DeleteOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete run/ID",
		Short: "Delete a run with its jobs and tasks. An active run is cancelled first.",
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

func (o *DeleteOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)
}

func (o *DeleteOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *DeleteOptions) Validate(args []string) error {
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

func (o *DeleteOptions) Run(ctx context.Context, args []string) error {
	rt, release, err := o.Runtime(ctx)
	if err != nil {
		return err
	}
	defer release()

	_, id, _ := parseAndValidateKindId(args[0], RunKind)
	if err := rt.Runs.DeleteRun(ctx, *id); err != nil {
		return fmt.Errorf("deleting run/%d: %w", *id, err)
	}
	fmt.Fprintf(o.out, "run/%d deleted\n", *id)
	return nil
}
