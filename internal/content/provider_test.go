package content_test

import (
	"context"
	"errors"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("content store", Ordered, func() {
	var (
		cs     *content.Store
		gormdb *gorm.DB
		ctx    = context.TODO()
	)

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())
		gormdb = db
		cs = content.NewStore(db)
		Expect(cs.Migrate(ctx)).To(Succeed())
		Expect(store.NewStore(db).InitialMigration(ctx)).To(Succeed())
	})

	AfterAll(func() {
		sqlDB, _ := gormdb.DB()
		sqlDB.Close()
	})

	AfterEach(func() {
		gormdb.Exec("DELETE FROM jobs;")
		gormdb.Exec("DELETE FROM content_items;")
	})

	newPost := func(lang string, fields map[string]any) *content.ContentItem {
		item, err := cs.Create(ctx, content.ContentItem{
			Type:     model.JobTypeDocument,
			Subtype:  "post",
			Language: lang,
			Fields:   fields,
		})
		Expect(err).To(BeNil())
		return item
	}

	It("flattens nested fields into references", func() {
		post := newPost("en", map[string]any{
			"title":   "Hello",
			"content": "World",
			"meta":    map[string]any{"excerpt": "Short", "views": 3},
			"slug":    "",
		})

		fields, err := cs.GetFields(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: post.ID})
		Expect(err).To(BeNil())
		Expect(fields).To(Equal(map[string]string{
			"title":        "Hello",
			"content":      "World",
			"meta.excerpt": "Short",
		}))
	})

	It("lists items in one language after a cursor", func() {
		first := newPost("en", map[string]any{"title": "one"})
		second := newPost("en", map[string]any{"title": "two"})
		newPost("fr", map[string]any{"title": "trois"})

		items, err := cs.ListItems(ctx, content.Query{Language: "en", Type: model.JobTypeDocument})
		Expect(err).To(BeNil())
		Expect(items).To(HaveLen(2))

		items, err = cs.ListItems(ctx, content.Query{Language: "en", Type: model.JobTypeDocument, AfterID: first.ID, Limit: 10})
		Expect(err).To(BeNil())
		Expect(items).To(HaveLen(1))
		Expect(items[0].Ref.ID).To(Equal(second.ID))

		items, err = cs.ListItems(ctx, content.Query{Language: "en", Type: model.JobTypeDocument, Subtypes: []string{"page"}})
		Expect(err).To(BeNil())
		Expect(items).To(BeEmpty())
	})

	It("lists items missing a covered target language", func() {
		covered := newPost("en", map[string]any{"title": "one"})
		failed := newPost("en", map[string]any{"title": "two"})
		fresh := newPost("en", map[string]any{"title": "three"})
		newPost("fr", map[string]any{"title": "quatre"})

		insertJob := func(sourceID int64, lang string, status model.JobStatus) {
			tx := gormdb.Exec("INSERT INTO jobs (type, subtype, source_id, source_lang, target_lang, status, created_at) VALUES (?, 'post', ?, 'en', ?, ?, CURRENT_TIMESTAMP);",
				string(model.JobTypeDocument), sourceID, lang, string(status))
			Expect(tx.Error).To(BeNil())
		}
		insertJob(covered.ID, "fr", model.JobStatusCompleted)
		insertJob(covered.ID, "de", model.JobStatusPending)
		insertJob(failed.ID, "fr", model.JobStatusCompleted)
		insertJob(failed.ID, "de", model.JobStatusFailed)

		q := content.UncoveredQuery{Language: "en", Type: model.JobTypeDocument, Targets: []string{"fr", "de"}}
		items, err := cs.ListUncovered(ctx, q)
		Expect(err).To(BeNil())
		Expect(items).To(HaveLen(2))
		Expect(items[0].Ref.ID).To(Equal(failed.ID))
		Expect(items[1].Ref.ID).To(Equal(fresh.ID))

		q.Limit = 1
		items, err = cs.ListUncovered(ctx, q)
		Expect(err).To(BeNil())
		Expect(items).To(HaveLen(1))
		Expect(items[0].Ref.ID).To(Equal(failed.ID))

		q.Targets = []string{"fr"}
		q.Limit = 0
		items, err = cs.ListUncovered(ctx, q)
		Expect(err).To(BeNil())
		Expect(items).To(HaveLen(1))
		Expect(items[0].Ref.ID).To(Equal(fresh.ID))
	})

	It("materializes a new translation in the group", func() {
		post := newPost("en", map[string]any{"title": "Hello", "meta": map[string]any{"excerpt": "Short"}, "views": 3})
		ref := model.ItemRef{Type: model.JobTypeDocument, ID: post.ID}

		link, err := cs.GetTranslationLink(ctx, ref, "fr")
		Expect(err).To(BeNil())
		Expect(link).To(BeNil())

		id, err := cs.MaterializeTranslation(ctx, ref, "fr", map[string]string{"title": "Bonjour", "meta.excerpt": "Court"})
		Expect(err).To(BeNil())

		link, err = cs.GetTranslationLink(ctx, ref, "fr")
		Expect(err).To(BeNil())
		Expect(*link).To(Equal(id))

		lang, err := cs.GetLanguage(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: id})
		Expect(err).To(BeNil())
		Expect(lang).To(Equal("fr"))

		fields, err := cs.GetFields(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: id})
		Expect(err).To(BeNil())
		Expect(fields).To(HaveKeyWithValue("title", "Bonjour"))
		Expect(fields).To(HaveKeyWithValue("meta.excerpt", "Court"))
	})

	It("updates an existing translation in place", func() {
		post := newPost("en", map[string]any{"title": "Hello", "content": "World"})
		ref := model.ItemRef{Type: model.JobTypeDocument, ID: post.ID}

		first, err := cs.MaterializeTranslation(ctx, ref, "de", map[string]string{"title": "Hallo"})
		Expect(err).To(BeNil())
		second, err := cs.MaterializeTranslation(ctx, ref, "de", map[string]string{"content": "Welt"})
		Expect(err).To(BeNil())
		Expect(second).To(Equal(first))

		fields, err := cs.GetFields(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: first})
		Expect(err).To(BeNil())
		Expect(fields).To(Equal(map[string]string{"title": "Hallo", "content": "Welt"}))
	})

	It("fails to materialize into a scalar field", func() {
		post := newPost("en", map[string]any{"title": "Hello"})

		_, err := cs.MaterializeTranslation(ctx, model.ItemRef{Type: model.JobTypeDocument, ID: post.ID}, "fr", map[string]string{"title.sub": "x"})
		Expect(err).NotTo(BeNil())
	})

	It("reports unknown items", func() {
		_, err := cs.GetFields(ctx, model.ItemRef{Type: model.JobTypeTerm, ID: 404})
		Expect(errors.Is(err, content.ErrItemNotFound)).To(BeTrue())
	})
})
