package cli

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
)

type jobView struct {
	ID         int64
	Status     string
	TargetLang string
}

var _ = Describe("orchestratorctl", func() {
	var (
		ctx    = context.TODO()
		rt     *service.Runtime
		opener Opener
	)

	BeforeEach(func() {
		var err error
		rt, err = service.Bootstrap(ctx, config.NewDefault())
		Expect(err).To(BeNil())
		opener = func(context.Context) (*service.Runtime, func(), error) {
			return rt, func() {}, nil
		}

		_, err = rt.Content.Create(ctx, content.ContentItem{
			Type:     model.JobTypeDocument,
			Subtype:  "post",
			Language: "en",
			Fields:   map[string]any{"title": "Hello"},
		})
		Expect(err).To(BeNil())
	})

	AfterEach(func() {
		Expect(rt.Close()).To(Succeed())
	})

	execute := func(cmd *cobra.Command, args ...string) (string, error) {
		out := &bytes.Buffer{}
		cmd.SetOut(out)
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(args)
		err := cmd.ExecuteContext(ctx)
		return out.String(), err
	}

	get := func(args ...string) (string, error) {
		o := DefaultGetOptions()
		o.open = opener
		return execute(newCmdGet(o), args...)
	}

	discover := func() {
		o := DefaultDiscoverOptions()
		o.open = opener
		out, err := execute(newCmdDiscover(o))
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("CREATED"))
	}

	createRun := func(args ...string) (string, error) {
		o := DefaultCreateOptions()
		o.open = opener
		return execute(newCmdCreate(o), append([]string{"run"}, args...)...)
	}

	It("discovers, runs and reports progress", func() {
		discover()

		out, err := createRun("--process", "-o", "json")
		Expect(err).To(BeNil())
		var run struct {
			ID     int64
			Status string
		}
		Expect(json.Unmarshal([]byte(out), &run)).To(Succeed())
		Expect(run.Status).To(Equal("completed"))

		out, err = get("progress/1", "-o", "yaml")
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("completed: 2"))
		Expect(out).To(ContainSubstring("status: completed"))

		out, err = get("jobs", "--status", "completed", "--run", "1", "-o", "json")
		Expect(err).To(BeNil())
		var jobs []jobView
		Expect(json.Unmarshal([]byte(out), &jobs)).To(Succeed())
		Expect(jobs).To(HaveLen(2))

		out, err = get("runs")
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("STATUS"))
		Expect(out).To(ContainSubstring("completed"))
	})

	It("cancels and deletes a run", func() {
		discover()
		_, err := createRun("--target", "fr")
		Expect(err).To(BeNil())

		o := DefaultCancelOptions()
		o.open = opener
		out, err := execute(newCmdCancel(o), "run/1")
		Expect(err).To(BeNil())
		Expect(out).To(ContainSubstring("cancelled"))

		d := DefaultDeleteOptions()
		d.open = opener
		out, err = execute(newCmdDelete(d), "run/1")
		Expect(err).To(BeNil())
		Expect(out).To(Equal("run/1 deleted\n"))

		_, err = get("run/1")
		Expect(err).NotTo(BeNil())
	})

	It("translates a single item", func() {
		o := DefaultTranslateOptions()
		o.open = opener
		out, err := execute(newCmdTranslate(o), "document/1", "--target", "fr", "--process", "-o", "json")
		Expect(err).To(BeNil())

		var jobs []jobView
		Expect(json.Unmarshal([]byte(out), &jobs)).To(Succeed())
		Expect(jobs).To(HaveLen(1))
		Expect(jobs[0].Status).To(Equal("completed"))
		Expect(jobs[0].TargetLang).To(Equal("fr"))
	})

	It("reports recovery results", func() {
		o := DefaultRecoverOptions()
		o.open = opener
		out, err := execute(newCmdRecover(o), "-o", "json")
		Expect(err).To(BeNil())
		Expect(out).To(MatchJSON(`{"Finished":0,"Reset":0,"Failed":0}`))
	})

	DescribeTable("rejects invalid arguments",
		func(build func() *cobra.Command, args ...string) {
			_, err := execute(build(), args...)
			Expect(err).NotTo(BeNil())
		},
		Entry("unknown kind", func() *cobra.Command { return newCmdGet(DefaultGetOptions()) }, "widgets"),
		Entry("progress without id", func() *cobra.Command { return newCmdGet(DefaultGetOptions()) }, "progress"),
		Entry("unknown output", func() *cobra.Command { return newCmdGet(DefaultGetOptions()) }, "runs", "-o", "xml"),
		Entry("negative limit", func() *cobra.Command { return newCmdCreate(DefaultCreateOptions()) }, "run", "--limit", "-1"),
		Entry("create a job", func() *cobra.Command { return newCmdCreate(DefaultCreateOptions()) }, "job"),
		Entry("cancel without id", func() *cobra.Command { return newCmdCancel(DefaultCancelOptions()) }, "run"),
		Entry("malformed item", func() *cobra.Command { return newCmdTranslate(DefaultTranslateOptions()) }, "document/x", "--target", "fr"),
		Entry("translate without targets", func() *cobra.Command { return newCmdTranslate(DefaultTranslateOptions()) }, "document/1"),
	)
})
