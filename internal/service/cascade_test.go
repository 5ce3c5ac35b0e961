package service_test

import (
	"context"
	"errors"

	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("cascade", func() {
	var (
		env *testEnv
		ctx = context.TODO()
	)

	AfterEach(func() {
		env.close()
	})

	Context("with a working content store", func() {
		BeforeEach(func() {
			env = newTestEnv()
		})

		It("moves a pending job to in progress on the first outcome", func() {
			post := env.newPost("Hello")
			job, created, err := env.orch.Jobs.CreateJob(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: post.ID}, "post", "en", "fr")
			Expect(err).To(BeNil())
			Expect(created).To(BeTrue())

			tasks := env.tasks(job.ID)
			Expect(tasks).To(HaveLen(2))

			_, err = env.orch.Jobs.SaveTaskOutcome(ctx, tasks[0].ID, "Bonjour", nil)
			Expect(err).To(BeNil())
			Expect(env.job(job.ID).Status).To(Equal(model.JobStatusInProgress))
		})

		It("completes a job with the id of the materialized item", func() {
			post := env.newPost("Hello")
			job, _, err := env.orch.Jobs.CreateJob(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: post.ID}, "post", "en", "fr")
			Expect(err).To(BeNil())

			env.completeJob(job.ID)

			done := env.job(job.ID)
			Expect(done.Status).To(Equal(model.JobStatusCompleted))
			Expect(done.TargetID).NotTo(BeNil())

			fields, err := env.content.GetFields(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: *done.TargetID})
			Expect(err).To(BeNil())
			Expect(fields).To(HaveKeyWithValue("title", "translated title"))

			jobEvents := env.events.of(service.JobEventKind)
			Expect(jobEvents[len(jobEvents)-1].To).To(Equal(string(model.JobStatusCompleted)))
		})

		It("completes a job without tasks", func() {
			empty := env.newItem(model.JobTypeTerm, "category", "en", map[string]any{})
			job, _, err := env.orch.Jobs.CreateJob(ctx, model.ItemRef{Type: model.JobTypeTerm, ID: empty.ID}, "category", "en", "fr")
			Expect(err).To(BeNil())
			Expect(env.tasks(job.ID)).To(BeEmpty())

			recomputed, err := env.orch.Cascade.RecomputeJob(ctx, job.ID)
			Expect(err).To(BeNil())
			Expect(recomputed.Status).To(Equal(model.JobStatusCompleted))
		})

		It("leaves a terminal job alone", func() {
			post := env.newPost("Hello")
			job, _, err := env.orch.Jobs.CreateJob(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: post.ID}, "post", "en", "fr")
			Expect(err).To(BeNil())
			Expect(env.db.Exec("UPDATE jobs SET status = 'cancelled' WHERE id = ?", job.ID).Error).To(BeNil())

			before := len(env.events.of(service.JobEventKind))
			env.completeJob(job.ID)

			Expect(env.job(job.ID).Status).To(Equal(model.JobStatusCancelled))
			Expect(env.events.of(service.JobEventKind)).To(HaveLen(before))
		})

		It("reports an unknown job", func() {
			_, err := env.orch.Cascade.RecomputeJob(ctx, 404)
			var notFound *service.ErrResourceNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
		})
	})

	Context("with a failing content store", func() {
		BeforeEach(func() {
			env = newTestEnv(withProvider(func(cs *content.Store) service.ContentProvider {
				return brokenProvider{Store: cs}
			}))
		})

		It("fails the job instead of completing it", func() {
			post := env.newPost("Hello")
			job, _, err := env.orch.Jobs.CreateJob(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: post.ID}, "post", "en", "fr")
			Expect(err).To(BeNil())

			env.completeJob(job.ID)

			failed := env.job(job.ID)
			Expect(failed.Status).To(Equal(model.JobStatusFailed))
			Expect(failed.TargetID).To(BeNil())
			Expect(env.tasks(job.ID).Stats().Completed).To(Equal(2))
		})
	})
})
