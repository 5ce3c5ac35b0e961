package service

import (
	"context"

	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
)

// ContentProvider is the host content store as seen by the orchestrator.
// MaterializeTranslation may fail, in which case the job is failed.
type ContentProvider interface {
	ListUncovered(ctx context.Context, q content.UncoveredQuery) ([]content.Item, error)
	GetItem(ctx context.Context, ref model.ItemRef) (*content.Item, error)
	GetLanguage(ctx context.Context, ref model.ItemRef) (string, error)
	GetTranslationLink(ctx context.Context, ref model.ItemRef, lang string) (*int64, error)
	GetFields(ctx context.Context, ref model.ItemRef) (map[string]string, error)
	MaterializeTranslation(ctx context.Context, ref model.ItemRef, lang string, translations map[string]string) (int64, error)
}

var _ ContentProvider = (*content.Store)(nil)
