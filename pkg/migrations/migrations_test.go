package migrations_test

import (
	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/pkg/migrations"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

var _ = Describe("migrations", Ordered, func() {
	var gormdb *gorm.DB

	BeforeAll(func() {
		db, err := store.InitDB(config.NewDefault())
		Expect(err).To(BeNil())
		gormdb = db
	})

	AfterAll(func() {
		sqlDB, _ := gormdb.DB()
		sqlDB.Close()
	})

	It("embeds the schema in apply order", func() {
		files, err := migrations.Files()
		Expect(err).To(BeNil())
		Expect(files).To(Equal([]string{
			"20250101000000_orchestrator_schema.sql",
			"20250101000100_content_items.sql",
		}))
	})

	It("refuses a non postgres database", func() {
		err := migrations.MigrateStore(gormdb, config.NewDefault())
		Expect(err).NotTo(BeNil())
		Expect(err.Error()).To(ContainSubstring("postgres"))
	})
})
