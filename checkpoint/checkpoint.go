// Package checkpoint persists the job marker and the append-only visited log
// that let an interrupted crawl resume without refetching URLs.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"

	"github.com/aluiziolira/go-scrape-catalog/config"
)

// ErrNoJob is returned by LoadJob when no job marker has been written yet.
var ErrNoJob = errors.New("checkpoint: no job marker")

// Job is the durable marker of one crawl job.
type Job struct {
	ID         string     `json:"id"`
	StartURL   string     `json:"start_url"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Items      int        `json:"items"`
	Runs       int        `json:"runs"`
}

// Finished reports whether the job ran to completion.
func (j *Job) Finished() bool {
	return j != nil && j.FinishedAt != nil
}

// Store is a checkpoint backend.
type Store interface {
	LoadJob(ctx context.Context) (*Job, error)
	SaveJob(ctx context.Context, job *Job) error
	Visited(ctx context.Context) ([]string, error)
	Append(ctx context.Context, url string) error
	Reset(ctx context.Context) error
	Close() error
}

// NewJob creates a marker for a fresh job.
func NewJob(startURL string) *Job {
	return &Job{
		ID:        uuid.NewString(),
		StartURL:  startURL,
		StartedAt: time.Now().UTC(),
		Runs:      1,
	}
}

// JobName returns cfg.JobID, or a slug derived from the start URL host and path.
func JobName(cfg *config.Config) string {
	if cfg.JobID != "" {
		return slug.Make(cfg.JobID)
	}
	u, err := url.Parse(cfg.StartURL)
	if err != nil || u.Host == "" {
		return "crawl"
	}
	name := slug.Make(u.Host + " " + strings.ReplaceAll(u.Path, "/", " "))
	if name == "" {
		return "crawl"
	}
	return name
}

// Open builds the store selected by cfg.CheckpointBackend. It returns a nil
// store when checkpointing is disabled.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	name := JobName(cfg)
	switch cfg.CheckpointBackend {
	case config.CheckpointNone, "":
		return nil, nil
	case config.CheckpointFile:
		store, err := OpenFileStore(filepath.Join(cfg.CheckpointDir, name))
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.CheckpointSQLite:
		store, err := OpenSQLiteStore(ctx, filepath.Join(cfg.CheckpointDir, name+".db"))
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.CheckpointRedis:
		store, err := OpenRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Job:      name,
		})
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.CheckpointBackend)
	}
}

// Resume loads the job marker and visited log from store, or starts a new job
// when none exists or the previous one finished. resumed is true when the
// visited URLs come from an unfinished earlier run.
func Resume(ctx context.Context, store Store, startURL string) (job *Job, visited []string, resumed bool, err error) {
	job, err = store.LoadJob(ctx)
	switch {
	case errors.Is(err, ErrNoJob):
		job = NewJob(startURL)
	case err != nil:
		return nil, nil, false, fmt.Errorf("load job marker: %w", err)
	case job.Finished() || job.StartURL != startURL:
		if err := store.Reset(ctx); err != nil {
			return nil, nil, false, fmt.Errorf("reset visited log: %w", err)
		}
		job = NewJob(startURL)
	default:
		visited, err = store.Visited(ctx)
		if err != nil {
			return nil, nil, false, fmt.Errorf("load visited log: %w", err)
		}
		job.Runs++
		resumed = true
	}

	if err := store.SaveJob(ctx, job); err != nil {
		return nil, nil, false, fmt.Errorf("save job marker: %w", err)
	}
	return job, visited, resumed, nil
}

// Finish stamps the job as completed with the number of items emitted.
func Finish(ctx context.Context, store Store, job *Job, items int) error {
	now := time.Now().UTC()
	job.FinishedAt = &now
	job.Items += items
	return store.SaveJob(ctx, job)
}
