package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/quotehub-backend/pkg/logger"
)

const (
	defaultStaleDraftBatch = 100
	maxStaleDraftBatches   = 50
)

type staleDraftExpirer interface {
	ExpireStaleDrafts(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

type StaleDraftJobParams struct {
	Logger    *logger.Logger
	Drafts    staleDraftExpirer
	TTL       time.Duration
	BatchSize int
}

// NewStaleDraftJob cancels open consolidated drafts nobody has touched within TTL.
func NewStaleDraftJob(params StaleDraftJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Drafts == nil {
		return nil, fmt.Errorf("draft service required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("stale draft ttl must be positive")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultStaleDraftBatch
	}
	return &staleDraftJob{
		logg:   params.Logger,
		drafts: params.Drafts,
		ttl:    params.TTL,
		batch:  batch,
		now:    time.Now,
	}, nil
}

type staleDraftJob struct {
	logg   *logger.Logger
	drafts staleDraftExpirer
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *staleDraftJob) Name() string { return "consolidated-draft-expiry" }

func (j *staleDraftJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	total := 0
	batches := 0
	for batches < maxStaleDraftBatches {
		if err := ctx.Err(); err != nil {
			return err
		}
		expired, err := j.drafts.ExpireStaleDrafts(ctx, cutoff, j.batch)
		total += expired
		batches++
		if err != nil {
			return fmt.Errorf("expire stale drafts: %w", err)
		}
		// a short batch means the backlog is drained
		if expired < j.batch {
			break
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":           cutoff,
		"batches":          batches,
		"drafts_cancelled": total,
	})
	j.logg.Info(logCtx, "stale consolidated drafts expired")
	return nil
}
