// Package mail delivers rendered digests over an implicit-TLS SMTP session.
package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/mail"
	"net/smtp"
	"net/textproto"
	"strconv"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultHost    = "smtp.gmail.com"
	DefaultPort    = 465
	DefaultTimeout = 20 * time.Second
)

var (
	// ErrNotConfigured means sender, password or recipients are missing.
	ErrNotConfigured = errors.New("mail delivery is not configured")
	// ErrNoRecipients means the recipient list held no usable address.
	ErrNoRecipients = errors.New("recipient list contains no addresses")
	// ErrAuth means the SMTP server rejected the credentials.
	ErrAuth = errors.New("smtp authentication failed")
)

// Config holds the sender identity and transport settings.
type Config struct {
	SenderEmail    string
	SenderPassword string
	Recipients     string // comma-separated
	Nickname       string
	Host           string
	Port           int
	Timeout        time.Duration
}

// Configured reports whether all credentials are present.
func (c Config) Configured() bool {
	return c.SenderEmail != "" && c.SenderPassword != "" && c.Recipients != ""
}

func (c Config) addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Session is the part of *smtp.Client the notifier uses.
type Session interface {
	Auth(a smtp.Auth) error
	Mail(from string) error
	Rcpt(to string) error
	Data() (io.WriteCloser, error)
	Reset() error
	Quit() error
	Close() error
}

// Dialer opens a session to addr.
type Dialer func(ctx context.Context, host, addr string, timeout time.Duration) (Session, error)

// DialTLS connects with implicit TLS, the way port 465 expects. The timeout
// applies to each SMTP command, not to the session as a whole.
func DialTLS(ctx context.Context, host, addr string, timeout time.Duration) (Session, error) {
	d := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config:    &tls.Config{ServerName: host},
	}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		conn.Close()
		return nil, err
	}
	c, err := smtp.NewClient(conn, host)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to start smtp session: %w", err)
	}
	return newDeadlineSession(c, conn, timeout), nil
}

type deadliner interface {
	SetDeadline(t time.Time) error
}

// deadlineSession pushes the connection deadline forward before every
// command and every chunk of message data.
type deadlineSession struct {
	Session
	conn    deadliner
	timeout time.Duration
	now     func() time.Time
}

func newDeadlineSession(s Session, conn deadliner, timeout time.Duration) *deadlineSession {
	return &deadlineSession{Session: s, conn: conn, timeout: timeout, now: time.Now}
}

func (d *deadlineSession) extend() error {
	return d.conn.SetDeadline(d.now().Add(d.timeout))
}

func (d *deadlineSession) Auth(a smtp.Auth) error {
	if err := d.extend(); err != nil {
		return err
	}
	return d.Session.Auth(a)
}

func (d *deadlineSession) Mail(from string) error {
	if err := d.extend(); err != nil {
		return err
	}
	return d.Session.Mail(from)
}

func (d *deadlineSession) Rcpt(to string) error {
	if err := d.extend(); err != nil {
		return err
	}
	return d.Session.Rcpt(to)
}

func (d *deadlineSession) Data() (io.WriteCloser, error) {
	if err := d.extend(); err != nil {
		return nil, err
	}
	w, err := d.Session.Data()
	if err != nil {
		return nil, err
	}
	return &deadlineWriter{w: w, s: d}, nil
}

func (d *deadlineSession) Reset() error {
	if err := d.extend(); err != nil {
		return err
	}
	return d.Session.Reset()
}

func (d *deadlineSession) Quit() error {
	if err := d.extend(); err != nil {
		return err
	}
	return d.Session.Quit()
}

type deadlineWriter struct {
	w io.WriteCloser
	s *deadlineSession
}

func (w *deadlineWriter) Write(p []byte) (int, error) {
	if err := w.s.extend(); err != nil {
		return 0, err
	}
	return w.w.Write(p)
}

func (w *deadlineWriter) Close() error {
	if err := w.s.extend(); err != nil {
		return err
	}
	return w.w.Close()
}

// Report lists the outcome for each recipient.
type Report struct {
	Sent   []string
	Failed map[string]error
}

// DeliveryError is returned when at least one recipient failed.
type DeliveryError struct {
	Report Report
	err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery failed for %d of %d recipients: %v",
		len(e.Report.Failed), len(e.Report.Failed)+len(e.Report.Sent), e.err)
}

func (e *DeliveryError) Unwrap() error {
	return e.err
}

// Notifier sends a digest to every configured recipient.
type Notifier struct {
	cfg  Config
	dial Dialer
	log  *zap.Logger
}

// NewNotifier creates a Notifier. A nil dialer uses DialTLS.
func NewNotifier(cfg Config, dial Dialer, log *zap.Logger) *Notifier {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if dial == nil {
		dial = DialTLS
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Notifier{cfg: cfg, dial: dial, log: log}
}

// Deliver sends html with the given subject to each recipient as its own
// message, so recipients never see each other.
//
// Every recipient is attempted even if an earlier one failed. When any
// failed, the returned error is a *DeliveryError carrying the report.
func (n *Notifier) Deliver(ctx context.Context, subject, html string, now time.Time) (Report, error) {
	if !n.cfg.Configured() {
		return Report{}, ErrNotConfigured
	}
	recipients := ParseRecipients(n.cfg.Recipients)
	if len(recipients) == 0 {
		return Report{}, ErrNoRecipients
	}

	report := Report{Failed: map[string]error{}}
	err := n.withSession(ctx, func(s Session) error {
		auth := smtp.PlainAuth("", n.cfg.SenderEmail, n.cfg.SenderPassword, n.cfg.Host)
		if err := s.Auth(auth); err != nil {
			if isAuthError(err) {
				return fmt.Errorf("%w: %v", ErrAuth, err)
			}
			return fmt.Errorf("smtp auth: %w", err)
		}
		n.log.Info("smtp session ready", zap.String("host", n.cfg.Host), zap.Int("recipients", len(recipients)))

		from := mail.Address{Name: n.cfg.Nickname, Address: n.cfg.SenderEmail}
		for _, to := range recipients {
			if err := ctx.Err(); err != nil {
				report.Failed[to] = err
				continue
			}
			if err := n.sendOne(s, from, to, subject, html, now); err != nil {
				n.log.Error("failed to send", zap.String("to", to), zap.Error(err))
				report.Failed[to] = err
				// Clear the half-finished transaction before the next recipient
				_ = s.Reset()
				continue
			}
			n.log.Info("sent", zap.String("to", to))
			report.Sent = append(report.Sent, to)
		}
		return nil
	})
	if err != nil {
		return report, err
	}

	if len(report.Failed) > 0 {
		errs := make([]error, 0, len(report.Failed))
		for _, to := range recipients {
			if e, ok := report.Failed[to]; ok {
				errs = append(errs, fmt.Errorf("%s: %w", to, e))
			}
		}
		return report, &DeliveryError{Report: report, err: errors.Join(errs...)}
	}
	return report, nil
}

// withSession opens one session, runs fn and always releases the
// connection, whatever fn returns.
func (n *Notifier) withSession(ctx context.Context, fn func(Session) error) (err error) {
	s, err := n.dial(ctx, n.cfg.Host, n.cfg.addr(), n.cfg.Timeout)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			s.Close()
			return
		}
		if qerr := s.Quit(); qerr != nil {
			n.log.Warn("smtp quit failed", zap.Error(qerr))
			s.Close()
		}
	}()
	return fn(s)
}

func (n *Notifier) sendOne(s Session, from mail.Address, to, subject, html string, now time.Time) error {
	if err := s.Mail(from.Address); err != nil {
		return fmt.Errorf("MAIL FROM: %w", err)
	}
	if err := s.Rcpt(to); err != nil {
		return fmt.Errorf("RCPT TO: %w", err)
	}
	w, err := s.Data()
	if err != nil {
		return fmt.Errorf("DATA: %w", err)
	}
	if _, err := w.Write(buildMessage(from, to, subject, html, now)); err != nil {
		w.Close()
		return fmt.Errorf("write message: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("finish message: %w", err)
	}
	return nil
}

// isAuthError reports SMTP 530-539 replies, the authentication failures.
func isAuthError(err error) bool {
	var tpErr *textproto.Error
	if errors.As(err, &tpErr) {
		return tpErr.Code >= 530 && tpErr.Code <= 539
	}
	return false
}
