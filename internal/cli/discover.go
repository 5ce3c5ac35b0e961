package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type DiscoverOptions struct {
	GlobalOptions

	Output string
	Cycles int
}

func DefaultDiscoverOptions() *DiscoverOptions {
	return &DiscoverOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Cycles:        1,
	}
}

func NewCmdDiscover() *cobra.Command {
	return newCmdDiscover(DefaultDiscoverOptions())
}

func newCmdDiscover(o *DiscoverOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Create jobs for source items missing a target language.",
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

func (o *DiscoverOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.IntVar(&o.Cycles, "cycles", o.Cycles, "Maximum number of discovery cycles. Stops early once everything is covered.")
}

func (o *DiscoverOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *DiscoverOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if o.Cycles < 1 {
		return fmt.Errorf("cycles must be at least 1")
	}
	return validateOutput(o.Output)
}

func (o *DiscoverOptions) Run(ctx context.Context, args []string) error {
	rt, release, err := o.Runtime(ctx)
	if err != nil {
		return err
	}
	defer release()

	results := make([]service.DiscoveryResult, 0, o.Cycles)
	for i := 0; i < o.Cycles; i++ {
		result, err := rt.Discovery.RunDiscoveryCycle(ctx)
		if err != nil {
			return fmt.Errorf("running discovery: %w", err)
		}
		results = append(results, result)
		if result.Created+result.PreCompleted == 0 && !result.Remaining {
			break
		}
	}

	return printResponse(o.out, o.Output, results, func(w *tabwriter.Writer) {
		fmt.Fprintln(w, "CYCLE\tSCANNED\tPROCESSED\tCREATED\tPRE-COMPLETED\tFAILED\tREMAINING")
		for i, r := range results {
			fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%d\t%d\t%t\n", i+1, r.Scanned, r.Processed, r.Created, r.PreCompleted, r.Failed, r.Remaining)
		}
	})
}
