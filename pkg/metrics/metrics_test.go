package metrics_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/pkg/metrics"
	"github.com/go-chi/chi/v5"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gorm.io/gorm"
)

var _ = Describe("metrics", Ordered, func() {
	var (
		s      store.Store
		gormdb *gorm.DB
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())
		s = store.NewStore(db)
		gormdb = db
		Expect(s.InitialMigration(context.TODO())).To(Succeed())
	})

	AfterAll(func() {
		s.Close()
	})

	It("exports jobs by status and active runs", func() {
		Expect(gormdb.Exec("INSERT INTO runs (id, status, config, created_at) VALUES (1, 'running', '{}', CURRENT_TIMESTAMP);").Error).To(BeNil())
		Expect(gormdb.Exec("INSERT INTO jobs (id, type, source_id, source_lang, target_lang, status, run_id, created_at) VALUES (1, 'document', 1, 'en', 'fr', 'pending', 1, CURRENT_TIMESTAMP);").Error).To(BeNil())
		Expect(gormdb.Exec("INSERT INTO jobs (id, type, source_id, source_lang, target_lang, status, run_id, created_at) VALUES (2, 'document', 2, 'en', 'fr', 'completed', 1, CURRENT_TIMESTAMP);").Error).To(BeNil())

		collector := metrics.NewJobStatsCollector(s)
		expected := `
# HELP translation_orchestrator_active_runs Number of pending or running runs.
# TYPE translation_orchestrator_active_runs gauge
translation_orchestrator_active_runs 1
`
		Expect(testutil.CollectAndCompare(collector, strings.NewReader(expected), "translation_orchestrator_active_runs")).To(Succeed())
		Expect(testutil.CollectAndCount(collector, "translation_orchestrator_jobs")).To(Equal(5))
	})

	It("counts requests by route pattern", func() {
		m := metrics.NewMiddleware("ops")
		reg := prometheus.NewRegistry()
		Expect(m.Register(reg)).To(Succeed())

		router := chi.NewRouter()
		router.Use(m.Handler)
		router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		for i := 0; i < 3; i++ {
			router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))
		}

		families, err := reg.Gather()
		Expect(err).To(BeNil())
		var requests float64
		for _, f := range families {
			if f.GetName() == "translation_orchestrator_"+metrics.RequestsCollectorName {
				requests = f.GetMetric()[0].GetCounter().GetValue()
			}
		}
		Expect(requests).To(Equal(float64(3)))
	})

	It("counts each busy worker once", func() {
		metrics.BusyWorkers.Start("a")
		metrics.BusyWorkers.Start("a")
		metrics.BusyWorkers.Start("b")
		Expect(metrics.BusyWorkers.Count()).To(Equal(2))

		metrics.BusyWorkers.Stop("a")
		metrics.BusyWorkers.Stop("b")
		Expect(metrics.BusyWorkers.Count()).To(Equal(0))
	})
})
