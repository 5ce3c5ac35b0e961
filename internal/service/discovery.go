package service

import (
	"context"
	"errors"

	"github.com/epicwp/translation-orchestrator/internal/config"
	"github.com/epicwp/translation-orchestrator/internal/content"
	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/internal/store/model"
	"github.com/epicwp/translation-orchestrator/pkg/metrics"
	"github.com/thoas/go-funk"
	"go.uber.org/zap"
)

var discoveredTypes = []model.JobType{model.JobTypeDocument, model.JobTypeTerm}

// DiscoveryResult summarises one discovery cycle. Remaining is set when the
// cycle ran out of time before handling every item it collected.
type DiscoveryResult struct {
	Scanned      int
	Processed    int
	Created      int
	PreCompleted int
	Failed       int
	Remaining    bool
}

type uncoveredItem struct {
	item    content.Item
	missing []string
}

// Discovery seeds jobs for source language items missing a target language.
type Discovery struct {
	store   store.Store
	content ContentProvider
	jobs    *JobService
	cfg     *config.Config
}

func NewDiscovery(cfg *config.Config, s store.Store, content ContentProvider, jobs *JobService) *Discovery {
	return &Discovery{store: s, content: content, jobs: jobs, cfg: cfg}
}

// RunDiscoveryCycle checks cheaply whether any item lacks coverage, then
// handles up to the configured batch of such items within the cycle timeout.
// Items left over are picked up by the next cycle.
func (d *Discovery) RunDiscoveryCycle(ctx context.Context) (DiscoveryResult, error) {
	var result DiscoveryResult
	logger := zap.S().Named("discovery")

	source, targets, err := d.languages()
	if err != nil {
		return result, err
	}
	if len(targets) == 0 {
		return result, nil
	}

	cycleCtx := ctx
	if timeout := d.cfg.Orchestrator.DiscoveryTimeout; timeout > 0 {
		var cancel context.CancelFunc
		cycleCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	probe, err := d.findUncovered(cycleCtx, source, targets, 1)
	if err != nil {
		return d.interrupted(cycleCtx, result, err)
	}
	if len(probe) == 0 {
		logger.Debug("all items covered")
		return result, nil
	}

	batch := d.cfg.Orchestrator.DiscoveryBatchSize
	if batch <= 0 {
		batch = 50
	}
	items, err := d.findUncovered(cycleCtx, source, targets, batch)
	if err != nil {
		return d.interrupted(cycleCtx, result, err)
	}
	result.Scanned = len(items)

	for _, u := range items {
		if cycleCtx.Err() != nil {
			result.Remaining = true
			break
		}

		seeded, err := d.jobs.SeedItem(cycleCtx, u.item, u.missing)
		result.Created += seeded.Created
		result.PreCompleted += seeded.PreCompleted
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				result.Remaining = true
				break
			}
			result.Failed++
			logger.Errorw("failed to seed item", "type", u.item.Ref.Type, "id", u.item.Ref.ID, "error", err)
			continue
		}
		result.Processed++
	}

	metrics.IncreaseDiscoveryJobsMetric("created", result.Created)
	metrics.IncreaseDiscoveryJobsMetric("pre_completed", result.PreCompleted)
	logger.Infow("discovery cycle done",
		"scanned", result.Scanned,
		"processed", result.Processed,
		"created", result.Created,
		"pre_completed", result.PreCompleted,
		"failed", result.Failed,
		"remaining", result.Remaining)
	return result, nil
}

func (d *Discovery) languages() (string, []string, error) {
	source, err := NormalizeLanguage(d.cfg.Orchestrator.SourceLanguage)
	if err != nil {
		return "", nil, err
	}
	targets, err := NormalizeLanguages(d.cfg.Orchestrator.TargetLanguages)
	if err != nil {
		return "", nil, err
	}
	return source, funk.SubtractString(targets, []string{source}), nil
}

// interrupted turns a lookup cut short by the cycle timeout into a partial
// result. Other errors are returned as they are.
func (d *Discovery) interrupted(cycleCtx context.Context, result DiscoveryResult, err error) (DiscoveryResult, error) {
	if cycleCtx.Err() != nil {
		result.Remaining = true
		zap.S().Named("discovery").Info("discovery cycle ran out of time while looking up items")
		return result, nil
	}
	return result, err
}

// findUncovered returns up to limit source language items with the target
// languages they miss. Failed and cancelled jobs do not cover a language.
func (d *Discovery) findUncovered(ctx context.Context, source string, targets []string, limit int) ([]uncoveredItem, error) {
	var found []uncoveredItem
	for _, t := range discoveredTypes {
		if len(found) >= limit {
			break
		}
		items, err := d.content.ListUncovered(ctx, content.UncoveredQuery{
			Language: source,
			Type:     t,
			Targets:  targets,
			Limit:    limit - len(found),
		})
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			continue
		}

		ids := make([]int64, 0, len(items))
		for _, it := range items {
			ids = append(ids, it.Ref.ID)
		}
		coverage, err := d.store.Job().Coverage(ctx, t, ids, source, targets)
		if err != nil {
			return nil, err
		}
		for _, it := range items {
			missing := funk.SubtractString(targets, coverage[it.Ref.ID])
			if len(missing) == 0 {
				continue
			}
			found = append(found, uncoveredItem{item: it, missing: missing})
		}
	}
	return found, nil
}
