// Package detect decides whether a feed has a new newest entry since the
// last notified run.
package detect

import (
	"context"

	"go.uber.org/zap"

	"github.com/robertmeta/feed-push/model"
	"github.com/robertmeta/feed-push/store"
)

// Source fetches the entries of one feed, newest first.
type Source interface {
	Fetch(ctx context.Context, url string) ([]model.Entry, error)
}

// Result is the outcome of one check.
type Result struct {
	ShouldPush bool
	FirstRun   bool
	LatestLink string
	Entries    []model.Entry // every fetched entry when ShouldPush, nil otherwise
}

// Detector compares the newest fetched link with the stored one.
type Detector struct {
	source  Source
	state   store.StateStore
	feedURL string
	log     *zap.Logger
}

// New creates a Detector for one feed.
func New(source Source, state store.StateStore, feedURL string, log *zap.Logger) *Detector {
	if log == nil {
		log = zap.NewNop()
	}
	return &Detector{source: source, state: state, feedURL: feedURL, log: log}
}

// Check fetches the feed and reports whether a notification is due.
//
// The first entry is taken to be the newest; feed order is not verified, so
// a feed that reorders its items can cause missed or duplicate pushes.
//
// Fetch failures, empty feeds and a newest entry without a link are
// logged and yield no push. A state read
// failure is logged and treated as a first run. Only a failure to save the
// new link is returned.
func (d *Detector) Check(ctx context.Context) (Result, error) {
	lastLink, found, err := d.state.LastLink()
	if err != nil {
		d.log.Warn("failed to read stored link, treating as first run", zap.Error(err))
		found = false
	}

	entries, err := d.source.Fetch(ctx, d.feedURL)
	if err != nil {
		d.log.Error("feed fetch failed", zap.String("url", d.feedURL), zap.Error(err))
		return Result{}, nil
	}
	if len(entries) == 0 {
		d.log.Info("feed returned no entries", zap.String("url", d.feedURL))
		return Result{}, nil
	}

	latest := entries[0].Link
	if latest == "" {
		d.log.Warn("newest entry has no link, skipping push", zap.String("url", d.feedURL))
		return Result{}, nil
	}
	d.log.Info("fetched feed", zap.Int("entries", len(entries)), zap.String("latest", latest))

	if found && latest == lastLink {
		d.log.Info("no new entries, skipping push")
		return Result{LatestLink: latest}, nil
	}

	if err := d.state.SaveLastLink(latest); err != nil {
		return Result{}, err
	}
	d.log.Info("new entries detected", zap.Bool("first_run", !found))
	return Result{
		ShouldPush: true,
		FirstRun:   !found,
		LatestLink: latest,
		Entries:    entries,
	}, nil
}
