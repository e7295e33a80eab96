package pipeline

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/robertmeta/feed-push/config"
	"github.com/robertmeta/feed-push/feed"
	"github.com/robertmeta/feed-push/mail"
	"github.com/robertmeta/feed-push/store"
)

// FromConfig wires the production fetcher, state store and SMTP notifier.
// The caller must Close the returned store once the run is over.
func FromConfig(cfg *config.Config, log *zap.Logger, opts ...Option) (*Runner, store.StateStore, error) {
	state, err := store.Open(cfg.State.Backend, cfg.State.Path, cfg.Profile.Name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open state: %w", err)
	}

	fetcher := feed.NewFetcher(cfg.FetchTimeout)
	notifier := mail.NewNotifier(cfg.Mail, mail.DialTLS, log)

	r, err := New(cfg.Profile, fetcher, state, notifier, log, opts...)
	if err != nil {
		state.Close()
		return nil, nil, err
	}
	return r, state, nil
}
