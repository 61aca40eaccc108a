// Package notify delivers account mail. Only the password-reset message is
// sent by this service.
package notify

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"agency-platform/internal/config"
)

var (
	ErrAPIKeyRequired     = errors.New("notify: provider api key is required")
	ErrNoProviders        = errors.New("notify: at least one provider is required")
	ErrInvalidRecipient   = errors.New("notify: invalid recipient address")
	ErrInvalidFromEmail   = errors.New("notify: invalid from address")
	ErrResetURLRequired   = errors.New("notify: reset url is required")
	ErrResetURLAbsolute   = errors.New("notify: reset url must be absolute http(s)")
	ErrAllProvidersFailed = errors.New("notify: all providers failed")
)

// Message is one outgoing email.
type Message struct {
	To      []string
	From    string
	Subject string
	HTML    string
	Text    string
}

// Provider sends a message and returns the provider's message id.
type Provider interface {
	Name() string
	Send(ctx context.Context, msg *Message) (string, error)
}

// PasswordReset is what the reset mail needs to know.
type PasswordReset struct {
	To        string
	Token     string
	ExpiresIn time.Duration
}

// Mailer tries its providers in order until one accepts the message.
type Mailer struct {
	providers []Provider
	from      string
	company   string
	resetURL  *url.URL
	log       *zap.Logger
}

type MailerConfig struct {
	Providers []Provider
	From      string
	Company   string
	ResetURL  string
	Logger    *zap.Logger
}

func NewMailer(cfg MailerConfig) (*Mailer, error) {
	if len(cfg.Providers) == 0 {
		return nil, ErrNoProviders
	}
	for _, p := range cfg.Providers {
		if p == nil {
			return nil, ErrNoProviders
		}
	}
	if _, err := mail.ParseAddress(cfg.From); err != nil {
		return nil, ErrInvalidFromEmail
	}

	resetURL, err := parseResetURL(cfg.ResetURL)
	if err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	company := cfg.Company
	if company == "" {
		company = "Agency Platform"
	}

	return &Mailer{
		providers: append([]Provider(nil), cfg.Providers...),
		from:      cfg.From,
		company:   company,
		resetURL:  resetURL,
		log:       log.Named("notify"),
	}, nil
}

// NewMailerFromConfig selects providers from MAIL_PROVIDER. "log" (and an
// empty value) writes messages to the log instead of sending them.
func NewMailerFromConfig(cfg config.MailConfig, serviceName string, log *zap.Logger) (*Mailer, error) {
	var providers []Provider
	for _, name := range strings.Split(cfg.Provider, ",") {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case ProviderResend:
			providers = append(providers, NewResendProvider(ResendConfig{APIKey: cfg.APIKey}))
		case ProviderSendGrid:
			providers = append(providers, NewSendGridProvider(SendGridConfig{APIKey: cfg.APIKey}))
		case ProviderLog, "":
			providers = append(providers, NewLogProvider(log))
		default:
			return nil, fmt.Errorf(errUnknownProviderFmt, name)
		}
	}
	return NewMailer(MailerConfig{
		Providers: providers,
		From:      cfg.From,
		Company:   serviceName,
		ResetURL:  cfg.ResetURL,
		Logger:    log,
	})
}

func parseResetURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrResetURLRequired
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf(errBuildResetURLFmt, err)
	}
	if !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrResetURLAbsolute
	}
	return u, nil
}

// SendPasswordReset renders and sends the reset mail. The token is carried
// as a query parameter of the configured reset URL.
func (m *Mailer) SendPasswordReset(ctx context.Context, in PasswordReset) error {
	if _, err := mail.ParseAddress(in.To); err != nil {
		return ErrInvalidRecipient
	}

	link := *m.resetURL
	q := link.Query()
	q.Set(resetTokenParam, in.Token)
	link.RawQuery = q.Encode()

	hours := int(in.ExpiresIn.Round(time.Hour) / time.Hour)
	if hours < 1 {
		hours = 1
	}
	html, text, err := renderPasswordReset(passwordResetData{
		Company:     m.company,
		ResetURL:    link.String(),
		ExpiryHours: hours,
	})
	if err != nil {
		return err
	}

	return m.Send(ctx, &Message{
		To:      []string{in.To},
		From:    m.from,
		Subject: subjectPasswordReset,
		HTML:    html,
		Text:    text,
	})
}

// Send delivers msg through the first provider that accepts it.
func (m *Mailer) Send(ctx context.Context, msg *Message) error {
	var failures []string
	for _, p := range m.providers {
		if err := ctx.Err(); err != nil {
			return err
		}
		id, err := p.Send(ctx, msg)
		if err == nil {
			m.log.Info("mail sent",
				zap.String("provider", p.Name()),
				zap.String("message_id", id),
				zap.String("subject", msg.Subject),
			)
			return nil
		}
		m.log.Warn("mail provider failed", zap.String("provider", p.Name()), zap.Error(err))
		failures = append(failures, fmt.Sprintf(errProviderFailedFmt, p.Name(), err))
	}
	return fmt.Errorf("%w: %s", ErrAllProvidersFailed, strings.Join(failures, messageSeparator))
}
