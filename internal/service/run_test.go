package service_test

import (
	"context"
	"errors"

	"github.com/epicwp/translation-orchestrator/internal/scheduler"
	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("run service", func() {
	var (
		env *testEnv
		ctx = context.TODO()
	)

	BeforeEach(func() {
		env = newTestEnv()
	})

	AfterEach(func() {
		env.close()
	})

	discover := func() {
		_, err := env.orch.Discovery.RunDiscoveryCycle(ctx)
		Expect(err).To(BeNil())
	}

	queued := func(runID int64) int64 {
		n, err := env.sched.CountPending(ctx, scheduler.RunGroup(runID))
		Expect(err).To(BeNil())
		return n
	}

	Context("configuration", func() {
		DescribeTable("rejects invalid configurations",
			func(rc model.RunConfig) {
				_, err := env.orch.Runs.CreateRun(ctx, rc)
				var invalid *service.ErrInvalidRunConfig
				Expect(errors.As(err, &invalid)).To(BeTrue())
				Expect(env.orch.Runs.ListRuns(ctx)).To(BeEmpty())
			},
			Entry("target equals source", model.RunConfig{TargetLanguages: []string{"fr", "EN"}}),
			Entry("malformed language", model.RunConfig{TargetLanguages: []string{"not a language"}}),
			Entry("negative limit", model.RunConfig{Limit: -1}),
			Entry("unknown item type", model.RunConfig{SpecificItems: []model.ItemRef{{Type: "comment", ID: 1}}}),
			Entry("invalid item id", model.RunConfig{SpecificItems: []model.ItemRef{{Type: model.JobTypeDocument, ID: 0}}}),
		)

		It("snapshots a normalized configuration", func() {
			run, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{
				TargetLanguages: []string{"FR", "fr", "pt-br"},
				DocumentKinds:   []string{"post", "post"},
				Instructions:    "Keep it formal",
			})
			Expect(err).To(BeNil())

			rc := run.Configuration()
			Expect(rc.SourceLanguage).To(Equal("en"))
			Expect(rc.TargetLanguages).To(Equal([]string{"fr", "pt-BR"}))
			Expect(rc.DocumentKinds).To(Equal([]string{"post"}))
			Expect(rc.Instructions).To(Equal("Keep it formal"))
		})

		It("uses the configured languages by default", func() {
			run, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{})
			Expect(err).To(BeNil())
			Expect(run.Configuration().TargetLanguages).To(Equal([]string{"fr", "de"}))
		})
	})

	Context("connection", func() {
		BeforeEach(func() {
			env.newPost("One")
			env.newPost("Two")
			env.newItem(model.JobTypeDocument, "page", "en", map[string]any{"title": "About"})
			env.newItem(model.JobTypeTerm, "category", "en", map[string]any{"name": "News"})
			discover()
		})

		It("completes a run without jobs at once", func() {
			run, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{TargetLanguages: []string{"it"}})
			Expect(err).To(BeNil())
			Expect(run.Status).To(Equal(model.RunStatusCompleted))
		})

		It("connects every pending job and enqueues a ticket per job", func() {
			run, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{})
			Expect(err).To(BeNil())
			Expect(env.jobs(store.NewJobQueryFilter().ByRunID(run.ID))).To(HaveLen(8))
			Expect(queued(run.ID)).To(Equal(int64(8)))

			progress, err := env.orch.Runs.GetRunProgress(ctx, run.ID)
			Expect(err).To(BeNil())
			Expect(progress.Count(model.JobStatusPending)).To(Equal(int64(8)))
			Expect(progress.QueuePending).To(Equal(int64(8)))
		})

		It("filters by document kind", func() {
			run, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{DocumentKinds: []string{"page"}})
			Expect(err).To(BeNil())

			jobs := env.jobs(store.NewJobQueryFilter().ByRunID(run.ID))
			Expect(jobs).To(HaveLen(2))
			for _, j := range jobs {
				Expect(j.Subtype).To(Equal("page"))
			}
		})

		It("filters by term group", func() {
			run, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{TermGroups: []string{"category"}, TargetLanguages: []string{"fr"}})
			Expect(err).To(BeNil())

			jobs := env.jobs(store.NewJobQueryFilter().ByRunID(run.ID))
			Expect(jobs).To(HaveLen(1))
			Expect(jobs[0].Type).To(Equal(model.JobTypeTerm))
		})

		It("stops at the item limit", func() {
			run, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{Limit: 3})
			Expect(err).To(BeNil())
			Expect(env.jobs(store.NewJobQueryFilter().ByRunID(run.ID))).To(HaveLen(3))
			Expect(queued(run.ID)).To(Equal(int64(3)))
		})

		It("does not take the jobs of another run", func() {
			first, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{})
			Expect(err).To(BeNil())
			second, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{})
			Expect(err).To(BeNil())

			Expect(env.jobs(store.NewJobQueryFilter().ByRunID(first.ID))).To(HaveLen(8))
			Expect(second.Status).To(Equal(model.RunStatusCompleted))
		})

		It("reopens finished jobs with force", func() {
			first, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{})
			Expect(err).To(BeNil())
			_, err = env.orch.Dispatcher.Drain(ctx)
			Expect(err).To(BeNil())
			Expect(env.run(first.ID).Status).To(Equal(model.RunStatusCompleted))

			forced, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{Force: true})
			Expect(err).To(BeNil())
			Expect(forced.Status).To(Equal(model.RunStatusRunning))

			jobs := env.jobs(store.NewJobQueryFilter().ByRunID(forced.ID))
			Expect(jobs).To(HaveLen(8))
			for _, j := range jobs {
				Expect(j.Status).To(Equal(model.JobStatusPending))
				Expect(j.CompletedAt).To(BeNil())
				for _, t := range env.tasks(j.ID) {
					Expect(t.Status).To(Equal(model.TaskStatusPending))
					Expect(t.Translation).To(BeNil())
					Expect(t.Attempts).To(Equal(0))
				}
			}

			// the finished run still reports the jobs matching its configuration
			progress, err := env.orch.Runs.GetRunProgress(ctx, first.ID)
			Expect(err).To(BeNil())
			Expect(progress.Total).To(Equal(int64(8)))
			Expect(progress.Count(model.JobStatusPending)).To(Equal(int64(8)))
		})

		It("creates the jobs of specific items", func() {
			fresh := env.newPost("Three")
			run, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{
				SpecificItems: []model.ItemRef{{Type: model.JobTypeDocument, ID: fresh.ID}},
			})
			Expect(err).To(BeNil())

			jobs := env.jobs(store.NewJobQueryFilter().ByRunID(run.ID))
			Expect(jobs).To(HaveLen(2))
			for _, j := range jobs {
				Expect(j.SourceID).To(Equal(fresh.ID))
			}
		})
	})

	Context("cancel", func() {
		var run *model.Run

		BeforeEach(func() {
			env.newPost("One")
			discover()
			var err error
			run, err = env.orch.Runs.CreateRun(ctx, model.RunConfig{})
			Expect(err).To(BeNil())
			job, err := env.orch.Jobs.ClaimNextJob(ctx, run.ID)
			Expect(err).To(BeNil())
			Expect(job).NotTo(BeNil())
		})

		It("cancels the run with its active jobs and tickets", func() {
			cancelled, err := env.orch.Runs.CancelRun(ctx, run.ID)
			Expect(err).To(BeNil())
			Expect(cancelled.Status).To(Equal(model.RunStatusCancelled))

			for _, j := range env.jobs(store.NewJobQueryFilter().ByRunID(run.ID)) {
				Expect(j.Status).To(Equal(model.JobStatusCancelled))
			}
			Expect(queued(run.ID)).To(Equal(int64(0)))
		})

		It("refuses to cancel twice", func() {
			_, err := env.orch.Runs.CancelRun(ctx, run.ID)
			Expect(err).To(BeNil())

			_, err = env.orch.Runs.CancelRun(ctx, run.ID)
			var terminal *service.ErrRunAlreadyTerminal
			Expect(errors.As(err, &terminal)).To(BeTrue())
		})

		It("deletes an active run with its jobs", func() {
			Expect(env.orch.Runs.DeleteRun(ctx, run.ID)).To(Succeed())

			_, err := env.orch.Runs.GetRun(ctx, run.ID)
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(env.allJobs()).To(BeEmpty())
		})

		It("lists runs by status", func() {
			_, err := env.orch.Runs.CancelRun(ctx, run.ID)
			Expect(err).To(BeNil())

			runs, err := env.orch.Runs.ListRuns(ctx, model.RunStatusCancelled)
			Expect(err).To(BeNil())
			Expect(runs).To(HaveLen(1))

			runs, err = env.orch.Runs.ListRuns(ctx, model.RunStatusRunning)
			Expect(err).To(BeNil())
			Expect(runs).To(BeEmpty())
		})
	})

	It("restores lost claim tickets", func() {
		env.newPost("One")
		discover()
		run, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{})
		Expect(err).To(BeNil())

		_, err = env.sched.CancelAll(ctx, scheduler.RunGroup(run.ID))
		Expect(err).To(BeNil())

		restored, err := env.orch.Runs.EnsureTickets(ctx, run.ID)
		Expect(err).To(BeNil())
		Expect(restored).To(Equal(int64(2)))

		restored, err = env.orch.Runs.EnsureTickets(ctx, run.ID)
		Expect(err).To(BeNil())
		Expect(restored).To(Equal(int64(0)))
	})

	It("notifies run transitions", func() {
		_, err := env.orch.Runs.CreateRun(ctx, model.RunConfig{})
		Expect(err).To(BeNil())

		transitions := []string{}
		for _, e := range env.events.of(service.RunEventKind) {
			transitions = append(transitions, e.To)
		}
		Expect(transitions).To(Equal([]string{"pending", "running", "completed"}))
	})
})
