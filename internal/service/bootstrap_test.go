package service_test

import (
	"context"
	"sync"

	cloudevents "github.com/cloudevents/sdk-go/v2"
	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/events"
	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type captureWriter struct {
	mu     sync.Mutex
	events []cloudevents.Event
}

func (c *captureWriter) Write(_ context.Context, _ string, e cloudevents.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureWriter) Close(context.Context) error { return nil }

func (c *captureWriter) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []string{}
	for _, e := range c.events {
		out = append(out, e.Type())
	}
	return out
}

var _ = Describe("bootstrap", func() {
	It("builds a working orchestrator and forwards lifecycle events", func() {
		ctx := context.TODO()
		writer := &captureWriter{}

		rt, err := service.Bootstrap(ctx, config.NewDefault(), service.WithEventWriter(writer))
		Expect(err).To(BeNil())

		_, err = rt.Content.Create(ctx, newPostItem("One"))
		Expect(err).To(BeNil())
		result, err := rt.Discovery.RunDiscoveryCycle(ctx)
		Expect(err).To(BeNil())
		Expect(result.Created).To(Equal(2))

		run, err := rt.Runs.CreateRun(ctx, model.RunConfig{})
		Expect(err).To(BeNil())
		_, err = rt.Dispatcher.Drain(ctx)
		Expect(err).To(BeNil())

		run, err = rt.Runs.GetRun(ctx, run.ID)
		Expect(err).To(BeNil())
		Expect(run.Status).To(Equal(model.RunStatusCompleted))

		Expect(rt.Close()).To(Succeed())
		Expect(writer.types()).To(ContainElements(events.RunMessageKind, events.JobMessageKind, events.TaskMessageKind))
	})
})
