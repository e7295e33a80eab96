// Package pipeline runs one poll: detect new entries, render the digest and
// mail it.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/robertmeta/feed-push/detect"
	"github.com/robertmeta/feed-push/digest"
	"github.com/robertmeta/feed-push/mail"
	"github.com/robertmeta/feed-push/model"
	"github.com/robertmeta/feed-push/store"
)

const clockLayout = "2006-01-02 15:04:05"

// Sender delivers a rendered digest. *mail.Notifier implements it.
type Sender interface {
	Deliver(ctx context.Context, subject, html string, now time.Time) (mail.Report, error)
}

// Outcome summarises one run.
type Outcome struct {
	Pushed   bool   // a digest was rendered and handed to the sender
	FirstRun bool   // no link was stored before this run
	Skipped  string // why delivery did not happen, empty otherwise
	Fetched  int
	Rendered int
	Subject  string
	Report   mail.Report
}

// Runner wires the detector, renderer and sender for one profile.
type Runner struct {
	profile  model.Profile
	detector *detect.Detector
	renderer *digest.Renderer
	sender   Sender
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// New creates a Runner. The profile must be valid.
func New(p model.Profile, source detect.Source, state store.StateStore, sender Sender, log *zap.Logger, opts ...Option) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}
	p = p.WithDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("invalid profile %q: %w", p.Name, err)
	}
	renderer, err := digest.New(p)
	if err != nil {
		return nil, err
	}

	log = log.With(zap.String("profile", p.Name))
	r := &Runner{
		profile:  p,
		detector: detect.New(source, state, p.FeedURL, log),
		renderer: renderer,
		sender:   sender,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Run performs one poll.
//
// Fetch failures, state read failures, missing mail configuration and
// rejected credentials are logged and end the run successfully. Failing to
// save state, render or deliver to every recipient is returned.
func (r *Runner) Run(ctx context.Context) (Outcome, error) {
	now := r.now()
	r.log.Info("run started",
		zap.String("utc", now.UTC().Format(clockLayout)),
		zap.String("utc+8", now.In(mail.LocalZone).Format(clockLayout)),
		zap.String("feed", r.profile.FeedURL),
	)

	out, err := r.run(ctx, now)
	if err != nil {
		r.log.Error("run failed", zap.Error(err))
		return out, err
	}
	r.log.Info("run complete", zap.Bool("pushed", out.Pushed), zap.String("skipped", out.Skipped))
	return out, nil
}

func (r *Runner) run(ctx context.Context, now time.Time) (Outcome, error) {
	var out Outcome

	res, err := r.detector.Check(ctx)
	if err != nil {
		return out, fmt.Errorf("failed to save last link: %w", err)
	}
	out.FirstRun = res.FirstRun
	out.Fetched = len(res.Entries)
	if !res.ShouldPush {
		out.Skipped = "no new entries"
		return out, nil
	}

	items := r.renderer.Items(res.Entries)
	html, err := r.renderer.RenderItems(items)
	if err != nil {
		return out, err
	}
	subject, err := mail.RenderSubject(r.profile.SubjectTemplate, r.profile.Name, now, len(items))
	if err != nil {
		return out, err
	}
	out.Pushed = true
	out.Rendered = len(items)
	out.Subject = subject

	report, err := r.sender.Deliver(ctx, subject, html, now)
	out.Report = report
	switch {
	case errors.Is(err, mail.ErrNotConfigured):
		r.log.Warn("mail credentials or recipients not set, skipping delivery")
		out.Skipped = "mail not configured"
	case errors.Is(err, mail.ErrNoRecipients):
		r.log.Error("recipient list is malformed, separate addresses with commas")
		out.Skipped = "no recipients"
	case errors.Is(err, mail.ErrAuth):
		r.log.Error("smtp login rejected, check the sender address and password, that two-step verification is on and that the app password is still valid",
			zap.Error(err))
		out.Skipped = "authentication failed"
	case err != nil:
		return out, err
	default:
		r.log.Info("digest delivered", zap.Int("recipients", len(report.Sent)), zap.Int("items", len(items)))
	}
	return out, nil
}
