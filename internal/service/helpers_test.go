package service_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/scheduler"
	"github.com/epicwp/translation-orchestrator/internal/service"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/epicwp/translation-orchestrator/internal/translator"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

// testEnv is an orchestrator over a fresh in-memory database.
type testEnv struct {
	cfg     *config.Config
	db      *gorm.DB
	store   store.Store
	content *content.Store
	sched   *scheduler.MemoryScheduler
	events  *recorder
	orch    *service.Orchestrator
}

type envOption func(*envSetup)

type envSetup struct {
	cfg        *config.Config
	translator translator.Translator
	provider   func(*content.Store) service.ContentProvider
}

func withConfig(fn func(*config.Config)) envOption {
	return func(s *envSetup) { fn(s.cfg) }
}

func withTranslator(t translator.Translator) envOption {
	return func(s *envSetup) { s.translator = t }
}

func withProvider(fn func(*content.Store) service.ContentProvider) envOption {
	return func(s *envSetup) { s.provider = fn }
}

func newTestEnv(opts ...envOption) *testEnv {
	setup := &envSetup{
		cfg:        config.NewDefault(),
		translator: translator.Echo{},
		provider:   func(cs *content.Store) service.ContentProvider { return cs },
	}
	for _, o := range opts {
		o(setup)
	}

	db, err := store.InitDB(setup.cfg)
	Expect(err).To(BeNil())

	s := store.NewStore(db)
	Expect(s.InitialMigration(context.TODO())).To(Succeed())

	cs := content.NewStore(db)
	Expect(cs.Migrate(context.TODO())).To(Succeed())

	sched := scheduler.NewMemoryScheduler()
	events := &recorder{}
	registry := service.NewRegistry(events.listen)

	return &testEnv{
		cfg:     setup.cfg,
		db:      db,
		store:   s,
		content: cs,
		sched:   sched,
		events:  events,
		orch:    service.NewOrchestrator(setup.cfg, s, setup.provider(cs), sched, setup.translator, registry),
	}
}

func (e *testEnv) close() {
	_ = e.store.Close()
}

func (e *testEnv) newItem(jobType model.JobType, subtype, lang string, fields map[string]any) *content.ContentItem {
	item, err := e.content.Create(context.TODO(), content.ContentItem{
		Type:     jobType,
		Subtype:  subtype,
		Language: lang,
		Fields:   fields,
	})
	Expect(err).To(BeNil())
	return item
}

func (e *testEnv) newPost(title string) *content.ContentItem {
	item, err := e.content.Create(context.TODO(), newPostItem(title))
	Expect(err).To(BeNil())
	return item
}

// newPostItem is an english post with a title and a body field.
func newPostItem(title string) content.ContentItem {
	return content.ContentItem{
		Type:     model.JobTypeDocument,
		Subtype:  "post",
		Language: "en",
		Fields:   map[string]any{"title": title, "body": title + " body"},
	}
}

// newTranslation adds an item to the translation group of source.
func (e *testEnv) newTranslation(source *content.ContentItem, lang string) *content.ContentItem {
	item, err := e.content.Create(context.TODO(), content.ContentItem{
		Type:             source.Type,
		Subtype:          source.Subtype,
		Language:         lang,
		TranslationGroup: source.TranslationGroup,
		Fields:           map[string]any{"title": "translated"},
	})
	Expect(err).To(BeNil())
	return item
}

func (e *testEnv) jobs(filter *store.JobQueryFilter) model.JobList {
	jobs, err := e.store.Job().List(context.TODO(), filter, nil)
	Expect(err).To(BeNil())
	return jobs
}

func (e *testEnv) allJobs() model.JobList {
	return e.jobs(store.NewJobQueryFilter())
}

func (e *testEnv) tasks(jobID int64) model.TaskList {
	tasks, err := e.store.Task().ListByJob(context.TODO(), jobID)
	Expect(err).To(BeNil())
	return tasks
}

func (e *testEnv) job(id int64) *model.Job {
	job, err := e.store.Job().Get(context.TODO(), id)
	Expect(err).To(BeNil())
	return job
}

func (e *testEnv) run(id int64) *model.Run {
	run, err := e.store.Run().Get(context.TODO(), id)
	Expect(err).To(BeNil())
	return run
}

// completeJob saves a successful outcome for every task of the job.
func (e *testEnv) completeJob(jobID int64) {
	for _, t := range e.tasks(jobID) {
		_, err := e.orch.Jobs.SaveTaskOutcome(context.TODO(), t.ID, "translated "+t.Reference, nil)
		Expect(err).To(BeNil())
	}
}

// makeStale moves the job to in progress long enough ago to be recovered.
func (e *testEnv) makeStale(jobID int64) {
	Expect(e.db.Exec("UPDATE jobs SET status = 'in_progress', started_at = ? WHERE id = ?", time.Now().Add(-24*time.Hour), jobID).Error).To(BeNil())
}

// recorder keeps every event it is notified of.
type recorder struct {
	mu     sync.Mutex
	events []service.Event
}

func (r *recorder) listen(_ context.Context, e service.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) of(kind service.EventKind) []service.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []service.Event{}
	for _, e := range r.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// scriptedTranslator echoes text unless it contains FAIL (transient error)
// or REJECT (permanent error). onCall runs before every translation.
type scriptedTranslator struct {
	mu       sync.Mutex
	calls    int
	contexts []translator.Context
	onCall   func(ctx context.Context)
}

func (s *scriptedTranslator) Translate(ctx context.Context, text, _, targetLang string, tc translator.Context) (string, error) {
	s.mu.Lock()
	s.calls++
	s.contexts = append(s.contexts, tc)
	hook := s.onCall
	s.mu.Unlock()

	if hook != nil {
		hook(ctx)
	}

	switch {
	case strings.Contains(text, "REJECT"):
		return "", fmt.Errorf("%w: model refused the request", translator.ErrPermanent)
	case strings.Contains(text, "FAIL"):
		return "", errors.New("upstream timeout")
	}
	return fmt.Sprintf("[%s] %s", targetLang, text), nil
}

func (s *scriptedTranslator) Contexts() []translator.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]translator.Context(nil), s.contexts...)
}

func (s *scriptedTranslator) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// brokenProvider fails every materialization.
type brokenProvider struct {
	*content.Store
}

func (brokenProvider) MaterializeTranslation(context.Context, model.ItemRef, string, map[string]string) (int64, error) {
	return 0, errors.New("content store is read only")
}
