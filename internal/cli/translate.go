package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type TranslateOptions struct {
	GlobalOptions

	Output  string
	Targets []string
	Process bool

	ref model.ItemRef
}

func DefaultTranslateOptions() *TranslateOptions {
	return &TranslateOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdTranslate() *cobra.Command {
	return newCmdTranslate(DefaultTranslateOptions())
}

func newCmdTranslate(o *TranslateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "translate TYPE/ID",
		Short: "Schedule the translation of one item outside of any run.",
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

func (o *TranslateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.StringSliceVar(&o.Targets, "target", o.Targets, "Target languages.")
	fs.BoolVar(&o.Process, "process", o.Process, "Translate in this process instead of leaving the jobs to the workers.")
}

func (o *TranslateOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}
	ref, err := parseItemRef(args[0])
	if err != nil {
		return err
	}
	o.ref = ref
	return nil
}

func (o *TranslateOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if len(o.Targets) == 0 {
		return fmt.Errorf("at least one target language is required")
	}
	return validateOutput(o.Output)
}

func (o *TranslateOptions) Run(ctx context.Context, args []string) error {
	rt, release, err := o.Runtime(ctx)
	if err != nil {
		return err
	}
	defer release()

	jobs, err := rt.Jobs.TranslateItem(ctx, o.ref, o.Targets)
	if err != nil {
		return fmt.Errorf("translating %s/%d: %w", o.ref.Type, o.ref.ID, err)
	}

	if o.Process {
		if _, err := rt.Dispatcher.Drain(ctx); err != nil {
			return err
		}
		for i, j := range jobs {
			current, err := rt.Jobs.GetJob(ctx, j.ID)
			if err != nil {
				return err
			}
			jobs[i] = *current
		}
	}

	return printResponse(o.out, o.Output, jobs, func(w *tabwriter.Writer) { printJobsTable(w, jobs...) })
}
