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

type CreateOptions struct {
	GlobalOptions

	Output        string
	Source        string
	Targets       []string
	DocumentKinds []string
	TermGroups    []string
	Items         []string
	Force         bool
	Instructions  string
	Limit         int
	Process       bool

	items []model.ItemRef
}

func DefaultCreateOptions() *CreateOptions {
	return &CreateOptions{
		GlobalOptions: DefaultGlobalOptions(),
	}
}

func NewCmdCreate() *cobra.Command {
	return newCmdCreate(DefaultCreateOptions())
}

func newCmdCreate(o *CreateOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create run",
		Short: "Create a run and connect the matching jobs to it.",
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

func (o *CreateOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.StringVar(&o.Source, "source", o.Source, "Source language. Defaults to the configured one.")
	fs.StringSliceVar(&o.Targets, "target", o.Targets, "Target languages. Defaults to the configured ones.")
	fs.StringSliceVar(&o.DocumentKinds, "document-kind", o.DocumentKinds, "Only translate documents of these kinds.")
	fs.StringSliceVar(&o.TermGroups, "term-group", o.TermGroups, "Only translate terms of these groups.")
	fs.StringSliceVar(&o.Items, "item", o.Items, "Only translate these items, as TYPE/ID.")
	fs.BoolVar(&o.Force, "force", o.Force, "Translate again items that were already translated.")
	fs.StringVar(&o.Instructions, "instructions", o.Instructions, "Extra instructions given to the translator.")
	fs.IntVar(&o.Limit, "limit", o.Limit, "Maximum number of jobs connected to the run. 0 means no limit.")
	fs.BoolVar(&o.Process, "process", o.Process, "Process the run in this process until it is done.")
}

func (o *CreateOptions) Complete(cmd *cobra.Command, args []string) error {
	if err := o.GlobalOptions.Complete(cmd, args); err != nil {
		return err
	}

	o.items = make([]model.ItemRef, 0, len(o.Items))
	for _, raw := range o.Items {
		ref, err := parseItemRef(raw)
		if err != nil {
			return err
		}
		o.items = append(o.items, ref)
	}
	return nil
}

func (o *CreateOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}
	if _, _, err := parseAndValidateKindId(args[0], RunKind); err != nil {
		return err
	}
	if o.Limit < 0 {
		return fmt.Errorf("limit must not be negative")
	}
	return validateOutput(o.Output)
}

func (o *CreateOptions) Run(ctx context.Context, args []string) error {
	rt, release, err := o.Runtime(ctx)
	if err != nil {
		return err
	}
	defer release()

	run, err := rt.Runs.CreateRun(ctx, model.RunConfig{
		SourceLanguage:  o.Source,
		TargetLanguages: o.Targets,
		DocumentKinds:   o.DocumentKinds,
		TermGroups:      o.TermGroups,
		SpecificItems:   o.items,
		Force:           o.Force,
		Instructions:    o.Instructions,
		Limit:           o.Limit,
	})
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	if o.Process {
		if _, err := rt.Dispatcher.Drain(ctx); err != nil {
			return fmt.Errorf("processing run %d: %w", run.ID, err)
		}
		if run, err = rt.Runs.GetRun(ctx, run.ID); err != nil {
			return err
		}
	}

	return printResponse(o.out, o.Output, run, func(w *tabwriter.Writer) { printRunsTable(w, *run) })
}
