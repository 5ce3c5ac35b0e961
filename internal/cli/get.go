package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type GetOptions struct {
	GlobalOptions

	Output   string
	RunID    int64
	Statuses []string
	Limit    int
}

func DefaultGetOptions() *GetOptions {
	return &GetOptions{
		GlobalOptions: DefaultGlobalOptions(),
		Limit:         100,
	}
}

func NewCmdGet() *cobra.Command {
	return newCmdGet(DefaultGetOptions())
}

func newCmdGet(o *GetOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get (TYPE | TYPE/ID)",
		Short: "Display runs, jobs or the progress of a run.",
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

func (o *GetOptions) Bind(fs *pflag.FlagSet) {
	o.GlobalOptions.Bind(fs)

	fs.StringVarP(&o.Output, "output", "o", o.Output, fmt.Sprintf("Output format. One of: (%s).", strings.Join(legalOutputTypes, ", ")))
	fs.Int64Var(&o.RunID, "run", o.RunID, "Only list the jobs of this run.")
	fs.StringSliceVar(&o.Statuses, "status", o.Statuses, "Only list resources in these statuses.")
	fs.IntVar(&o.Limit, "limit", o.Limit, "Maximum number of jobs listed.")
}

func (o *GetOptions) Complete(cmd *cobra.Command, args []string) error {
	return o.GlobalOptions.Complete(cmd, args)
}

func (o *GetOptions) Validate(args []string) error {
	if err := o.GlobalOptions.Validate(args); err != nil {
		return err
	}

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}
	if kind == ProgressKind && id == nil {
		return fmt.Errorf("%s needs a run id, e.g. progress/1", kind)
	}
	return validateOutput(o.Output)
}

func (o *GetOptions) Run(ctx context.Context, args []string) error {
	rt, release, err := o.Runtime(ctx)
	if err != nil {
		return err
	}
	defer release()

	kind, id, err := parseAndValidateKindId(args[0])
	if err != nil {
		return err
	}

	errorPrefix := fmt.Sprintf("reading %s/%d", kind, deref(id))
	if id == nil {
		errorPrefix = fmt.Sprintf("listing %s", plural(kind))
	}

	switch {
	case kind == RunKind && id != nil:
		run, err := rt.Runs.GetRun(ctx, *id)
		if err != nil {
			return fmt.Errorf("%s: %w", errorPrefix, err)
		}
		return printResponse(o.out, o.Output, run, func(w *tabwriter.Writer) { printRunsTable(w, *run) })
	case kind == RunKind:
		statuses := make([]model.RunStatus, 0, len(o.Statuses))
		for _, s := range o.Statuses {
			st := model.RunStatus(s)
			if !st.Valid() {
				return fmt.Errorf("unknown run status %q", s)
			}
			statuses = append(statuses, st)
		}
		runs, err := rt.Runs.ListRuns(ctx, statuses...)
		if err != nil {
			return fmt.Errorf("%s: %w", errorPrefix, err)
		}
		return printResponse(o.out, o.Output, runs, func(w *tabwriter.Writer) { printRunsTable(w, runs...) })
	case kind == JobKind && id != nil:
		job, err := rt.Jobs.GetJob(ctx, *id)
		if err != nil {
			return fmt.Errorf("%s: %w", errorPrefix, err)
		}
		return printResponse(o.out, o.Output, job, func(w *tabwriter.Writer) { printJobsTable(w, *job) })
	case kind == JobKind:
		filter := store.NewJobQueryFilter()
		if o.RunID > 0 {
			filter = filter.ByRunID(o.RunID)
		}
		if len(o.Statuses) > 0 {
			statuses := make([]model.JobStatus, 0, len(o.Statuses))
			for _, s := range o.Statuses {
				st, err := model.ParseJobStatus(s)
				if err != nil {
					return err
				}
				statuses = append(statuses, st)
			}
			filter = filter.ByStatus(statuses...)
		}
		jobs, err := rt.Jobs.ListJobs(ctx, filter, store.NewJobQueryOptions().WithSortOrder(store.SortByID).WithLimit(o.Limit))
		if err != nil {
			return fmt.Errorf("%s: %w", errorPrefix, err)
		}
		return printResponse(o.out, o.Output, jobs, func(w *tabwriter.Writer) { printJobsTable(w, jobs...) })
	case kind == ProgressKind:
		progress, err := rt.Runs.GetRunProgress(ctx, *id)
		if err != nil {
			return fmt.Errorf("%s: %w", errorPrefix, err)
		}
		return printResponse(o.out, o.Output, progressView(progress), func(w *tabwriter.Writer) { printProgressTable(w, progress) })
	default:
		return fmt.Errorf("unsupported resource kind: %s", kind)
	}
}

type progressResponse struct {
	RunID        int64            `json:"run_id"`
	Status       model.RunStatus  `json:"status"`
	Total        int64            `json:"total"`
	Jobs         map[string]int64 `json:"jobs"`
	QueuePending int64            `json:"queue_pending"`
	QueueRunning int64            `json:"queue_running"`
}

func progressView(p *service.RunProgress) progressResponse {
	jobs := map[string]int64{}
	for _, s := range model.AllJobStatuses {
		jobs[string(s)] = p.Count(s)
	}
	return progressResponse{
		RunID:        p.Run.ID,
		Status:       p.Run.Status,
		Total:        p.Total,
		Jobs:         jobs,
		QueuePending: p.QueuePending,
		QueueRunning: p.QueueRunning,
	}
}

func printProgressTable(w *tabwriter.Writer, p *service.RunProgress) {
	header := []string{"RUN", "STATUS"}
	row := []string{fmt.Sprint(p.Run.ID), string(p.Run.Status)}
	for _, s := range model.AllJobStatuses {
		header = append(header, strings.ToUpper(string(s)))
		row = append(row, fmt.Sprint(p.Count(s)))
	}
	header = slices.Concat(header, []string{"TOTAL", "QUEUED"})
	row = slices.Concat(row, []string{fmt.Sprint(p.Total), fmt.Sprint(p.QueuePending)})

	fmt.Fprintln(w, strings.Join(header, "\t"))
	fmt.Fprintln(w, strings.Join(row, "\t"))
}

func deref(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
