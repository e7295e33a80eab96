// Package config assembles the run configuration from the environment, an
// optional YAML profiles file and command-line overrides. It is built once
// at process start and passed into every component.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robertmeta/feed-push/feed"
	"github.com/robertmeta/feed-push/logging"
	"github.com/robertmeta/feed-push/mail"
	"github.com/robertmeta/feed-push/model"
	"github.com/robertmeta/feed-push/store"
)

// Environment variables read for mail credentials. The GMAIL_ names are
// accepted as fallbacks.
const (
	EnvSenderEmail    = "SENDER_EMAIL"
	EnvSenderPassword = "SENDER_APP_PASSWORD"
	EnvRecipients     = "RECEIVER_EMAILS"

	envLegacySenderEmail    = "GMAIL_EMAIL"
	envLegacySenderPassword = "GMAIL_APP_PASSWORD"
)

// DefaultProfile is used when no profile is named.
const DefaultProfile = "trumpstruth"

// Lookup resolves an environment variable. os.LookupEnv satisfies it.
type Lookup func(key string) (string, bool)

// File is the YAML document accepted by --profiles.
type File struct {
	Profiles []model.Profile `yaml:"profiles,omitempty"`
	Fetch    FetchConfig     `yaml:"fetch,omitempty"`
	SMTP     SMTPConfig      `yaml:"smtp,omitempty"`
	State    StateConfig     `yaml:"state,omitempty"`
	Log      logging.Config  `yaml:"log,omitempty"`
}

// FetchConfig bounds the feed request.
type FetchConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

// SMTPConfig overrides the mail transport endpoint.
type SMTPConfig struct {
	Host    string        `yaml:"host"`
	Port    int           `yaml:"port"`
	Timeout time.Duration `yaml:"timeout"`
}

// StateConfig selects where the last-seen link is kept.
type StateConfig struct {
	Backend string `yaml:"backend"`
	Path    string `yaml:"path"`
}

// Config is everything one run needs.
type Config struct {
	Profile      model.Profile
	Mail         mail.Config
	FetchTimeout time.Duration
	State        StateConfig
	Log          logging.Config
}

// Overrides carries command-line flags. Empty fields leave the file or
// default value in place. StateDir, when set and no state path is
// configured, holds the backend's default state file.
type Overrides struct {
	ProfilesFile string
	Profile      string
	StateBackend string
	StatePath    string
	StateDir     string
	LogLevel     string
	LogFile      string
}

// Load builds the run configuration.
func Load(o Overrides, lookup Lookup) (*Config, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	f := &File{}
	if o.ProfilesFile != "" {
		var err error
		if f, err = LoadFile(o.ProfilesFile, lookup); err != nil {
			return nil, err
		}
	}

	if o.StateBackend != "" {
		f.State.Backend = o.StateBackend
	}
	if o.StatePath != "" {
		f.State.Path = o.StatePath
	}
	if f.State.Path == "" && o.StateDir != "" {
		f.State.Path = filepath.Join(o.StateDir, store.DefaultPathFor(f.State.Backend))
	}
	if o.LogLevel != "" {
		f.Log.Level = o.LogLevel
	}
	if o.LogFile != "" {
		f.Log.File = o.LogFile
	}
	setDefaults(f)

	profile, err := f.SelectProfile(o.Profile)
	if err != nil {
		return nil, err
	}
	if err := validate(f, profile); err != nil {
		return nil, err
	}

	cfg := &Config{
		Profile:      profile,
		Mail:         MailFromEnv(lookup),
		FetchTimeout: f.Fetch.Timeout,
		State:        f.State,
		Log:          f.Log,
	}
	cfg.Mail.Nickname = profile.Nickname
	cfg.Mail.Host = f.SMTP.Host
	cfg.Mail.Port = f.SMTP.Port
	cfg.Mail.Timeout = f.SMTP.Timeout
	return cfg, nil
}

// LoadFile reads a profiles document, expanding ${VAR} references first.
func LoadFile(path string, lookup Lookup) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	f, err := Parse(data, lookup)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes a profiles document.
func Parse(data []byte, lookup Lookup) (*File, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	expanded := os.Expand(string(data), func(key string) string {
		v, _ := lookup(key)
		return v
	})

	f := &File{}
	if err := yaml.Unmarshal([]byte(expanded), f); err != nil {
		return nil, err
	}
	return f, nil
}

// MailFromEnv reads the sender credentials and recipient list.
func MailFromEnv(lookup Lookup) mail.Config {
	get := func(keys ...string) string {
		for _, k := range keys {
			if v, ok := lookup(k); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	return mail.Config{
		SenderEmail:    get(EnvSenderEmail, envLegacySenderEmail),
		SenderPassword: get(EnvSenderPassword, envLegacySenderPassword),
		Recipients:     get(EnvRecipients),
	}
}

// SelectProfile finds a profile by name in the file, then among the
// built-in ones. With no name, a file holding exactly one profile selects
// it; otherwise DefaultProfile is used.
func (f *File) SelectProfile(name string) (model.Profile, error) {
	if name == "" {
		if len(f.Profiles) == 1 {
			return f.Profiles[0].WithDefaults(), nil
		}
		name = DefaultProfile
	}
	for _, p := range f.Profiles {
		if p.Name == name {
			return p.WithDefaults(), nil
		}
	}
	for _, p := range Builtin() {
		if p.Name == name {
			return p.WithDefaults(), nil
		}
	}
	return model.Profile{}, fmt.Errorf("profile %q not found", name)
}

// AllProfiles returns the file's profiles followed by built-in ones not
// shadowed by name.
func (f *File) AllProfiles() []model.Profile {
	seen := make(map[string]bool, len(f.Profiles))
	out := make([]model.Profile, 0, len(f.Profiles)+1)
	for _, p := range f.Profiles {
		seen[p.Name] = true
		out = append(out, p.WithDefaults())
	}
	for _, p := range Builtin() {
		if !seen[p.Name] {
			out = append(out, p.WithDefaults())
		}
	}
	return out
}

// setDefaults fills unset settings.
func setDefaults(f *File) {
	if f.Fetch.Timeout == 0 {
		f.Fetch.Timeout = feed.DefaultTimeout
	}
	if f.SMTP.Host == "" {
		f.SMTP.Host = mail.DefaultHost
	}
	if f.SMTP.Port == 0 {
		f.SMTP.Port = mail.DefaultPort
	}
	if f.SMTP.Timeout == 0 {
		f.SMTP.Timeout = mail.DefaultTimeout
	}
	if f.State.Backend == "" {
		f.State.Backend = store.BackendFile
	}
	if f.State.Path == "" {
		f.State.Path = store.DefaultPathFor(f.State.Backend)
	}
}

func validate(f *File, p model.Profile) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("profile %q: %w", p.Name, err)
	}
	if f.Fetch.Timeout < 0 {
		return errors.New("fetch timeout must not be negative")
	}
	if f.SMTP.Port < 0 || f.SMTP.Port > 65535 {
		return fmt.Errorf("invalid smtp port %d", f.SMTP.Port)
	}
	if f.SMTP.Timeout < 0 {
		return errors.New("smtp timeout must not be negative")
	}
	switch f.State.Backend {
	case store.BackendFile, store.BackendSQLite:
	default:
		return fmt.Errorf("unknown state backend %q", f.State.Backend)
	}
	if _, err := logging.ParseLevel(f.Log.Level); err != nil {
		return err
	}
	return nil
}
