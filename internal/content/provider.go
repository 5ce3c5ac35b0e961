package content

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrItemNotFound = stderrors.New("content item not found")

// Store implements the content provider port over the content_items table.
// Reads and writes join the orchestrator transaction found in the context.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.db.WithContext(ctx).AutoMigrate(&ContentItem{})
}

// Create adds an item. A new translation group is started when none is set.
func (s *Store) Create(ctx context.Context, item ContentItem) (*ContentItem, error) {
	if item.TranslationGroup == "" {
		item.TranslationGroup = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now()
	}
	if err := s.getDB(ctx).Create(&item).Error; err != nil {
		return nil, errors.Wrap(err, "failed to create content item")
	}
	return &item, nil
}

func (s *Store) ListItems(ctx context.Context, q Query) ([]Item, error) {
	tx := s.getDB(ctx).Model(&ContentItem{}).
		Where("type = ? AND language = ?", string(q.Type), q.Language).
		Where("id > ?", q.AfterID).
		Order("id")
	if len(q.Subtypes) > 0 {
		tx = tx.Where("subtype IN ?", q.Subtypes)
	}
	if q.IDs != nil {
		tx = tx.Where("id IN ?", q.IDs)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var rows []ContentItem
	if err := tx.Find(&rows).Error; err != nil {
		return nil, errors.Wrap(err, "failed to list content items")
	}

	items := make([]Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, r.toItem())
	}
	return items, nil
}

// ListUncovered returns up to q.Limit items, by ascending id, for which fewer
// than len(q.Targets) target languages carry a job in a coverage status. The
// jobs table lives in the same database.
func (s *Store) ListUncovered(ctx context.Context, q UncoveredQuery) ([]Item, error) {
	if len(q.Targets) == 0 {
		return nil, nil
	}

	tx := s.getDB(ctx).Model(&ContentItem{}).
		Select("content_items.id").
		Joins("LEFT JOIN jobs ON jobs.type = content_items.type AND jobs.source_id = content_items.id"+
			" AND jobs.source_lang = content_items.language AND jobs.target_lang IN ? AND jobs.status IN ?",
			q.Targets, model.JobStatusStrings(model.CoverageJobStatuses)).
		Where("content_items.type = ? AND content_items.language = ?", string(q.Type), q.Language).
		Group("content_items.id").
		Having("COUNT(DISTINCT jobs.target_lang) < ?", len(q.Targets)).
		Order("content_items.id")
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}

	var ids []int64
	if err := tx.Scan(&ids).Error; err != nil {
		return nil, errors.Wrap(err, "failed to find uncovered content items")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return s.ListItems(ctx, Query{Language: q.Language, Type: q.Type, IDs: ids})
}

func (s *Store) GetItem(ctx context.Context, ref model.ItemRef) (*Item, error) {
	row, err := s.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	item := row.toItem()
	return &item, nil
}

func (s *Store) GetLanguage(ctx context.Context, ref model.ItemRef) (string, error) {
	row, err := s.get(ctx, ref)
	if err != nil {
		return "", err
	}
	return row.Language, nil
}

// GetTranslationLink returns the id of the item translating ref into lang, or
// nil when there is none.
func (s *Store) GetTranslationLink(ctx context.Context, ref model.ItemRef, lang string) (*int64, error) {
	row, err := s.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	linked, err := s.findInGroup(ctx, row, lang)
	if err != nil || linked == nil {
		return nil, err
	}
	return &linked.ID, nil
}

func (s *Store) GetFields(ctx context.Context, ref model.ItemRef) (map[string]string, error) {
	row, err := s.get(ctx, ref)
	if err != nil {
		return nil, err
	}
	return Flatten(row.Fields), nil
}

// MaterializeTranslation writes translations into the item of ref's group in
// lang, creating it from the source fields when it does not exist yet.
func (s *Store) MaterializeTranslation(ctx context.Context, ref model.ItemRef, lang string, translations map[string]string) (int64, error) {
	source, err := s.get(ctx, ref)
	if err != nil {
		return 0, err
	}

	target, err := s.findInGroup(ctx, source, lang)
	if err != nil {
		return 0, err
	}

	base := map[string]any(source.Fields)
	if target != nil {
		base = target.Fields
	}
	fields, err := Overlay(base, translations)
	if err != nil {
		return 0, errors.Wrapf(err, "failed to apply translations to %s %d", ref.Type, ref.ID)
	}

	if target != nil {
		err := s.getDB(ctx).Model(&ContentItem{}).Where("id = ?", target.ID).Updates(map[string]any{
			"fields":     datatypes.JSONMap(fields),
			"updated_at": time.Now(),
		}).Error
		if err != nil {
			return 0, errors.Wrap(err, "failed to update translated item")
		}
		zap.S().Named("content").Debugw("translation updated", "source_id", ref.ID, "target_id", target.ID, "lang", lang)
		return target.ID, nil
	}

	created, err := s.Create(ctx, ContentItem{
		Type:             source.Type,
		Subtype:          source.Subtype,
		Language:         lang,
		TranslationGroup: source.TranslationGroup,
		Fields:           fields,
	})
	if err != nil {
		return 0, err
	}
	zap.S().Named("content").Debugw("translation created", "source_id", ref.ID, "target_id", created.ID, "lang", lang)
	return created.ID, nil
}

func (s *Store) get(ctx context.Context, ref model.ItemRef) (*ContentItem, error) {
	var row ContentItem
	err := s.getDB(ctx).Where("id = ? AND type = ?", ref.ID, string(ref.Type)).First(&row).Error
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.Wrapf(ErrItemNotFound, "%s %d", ref.Type, ref.ID)
		}
		return nil, errors.Wrap(err, "failed to read content item")
	}
	return &row, nil
}

func (s *Store) findInGroup(ctx context.Context, source *ContentItem, lang string) (*ContentItem, error) {
	var rows []ContentItem
	err := s.getDB(ctx).
		Where("translation_group = ? AND type = ? AND language = ? AND id <> ?", source.TranslationGroup, string(source.Type), lang, source.ID).
		Order("id").Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up translation")
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (s *Store) getDB(ctx context.Context) *gorm.DB {
	if tx := store.FromContext(ctx); tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}
