package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"agency-platform/internal/config"
)

type recordingProvider struct {
	name string
	err  error
	sent []*Message
}

func (p *recordingProvider) Name() string { return p.name }

func (p *recordingProvider) Send(_ context.Context, msg *Message) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	p.sent = append(p.sent, msg)
	return "msg-1", nil
}

func newTestMailer(t *testing.T, providers ...Provider) *Mailer {
	t.Helper()
	m, err := NewMailer(MailerConfig{
		Providers: providers,
		From:      "no-reply@example.test",
		Company:   "Acme Agencies",
		ResetURL:  "https://app.example.test/reset-password?src=mail",
	})
	require.NoError(t, err)
	return m
}

func TestNewMailer_Validation(t *testing.T) {
	p := &recordingProvider{name: "rec"}

	_, err := NewMailer(MailerConfig{From: "a@example.test", ResetURL: "https://x.test"})
	assert.ErrorIs(t, err, ErrNoProviders)

	_, err = NewMailer(MailerConfig{Providers: []Provider{p}, From: "nope", ResetURL: "https://x.test"})
	assert.ErrorIs(t, err, ErrInvalidFromEmail)

	_, err = NewMailer(MailerConfig{Providers: []Provider{p}, From: "a@example.test"})
	assert.ErrorIs(t, err, ErrResetURLRequired)

	_, err = NewMailer(MailerConfig{Providers: []Provider{p}, From: "a@example.test", ResetURL: "/reset"})
	assert.ErrorIs(t, err, ErrResetURLAbsolute)

	_, err = NewMailer(MailerConfig{Providers: []Provider{p}, From: "a@example.test", ResetURL: "javascript:alert(1)"})
	assert.ErrorIs(t, err, ErrResetURLAbsolute)
}

func TestSendPasswordReset_RendersLink(t *testing.T) {
	p := &recordingProvider{name: "rec"}
	m := newTestMailer(t, p)

	err := m.SendPasswordReset(context.Background(), PasswordReset{
		To:        "staff@example.test",
		Token:     "abc.def+ghi",
		ExpiresIn: time.Hour,
	})
	require.NoError(t, err)
	require.Len(t, p.sent, 1)

	msg := p.sent[0]
	assert.Equal(t, []string{"staff@example.test"}, msg.To)
	assert.Equal(t, "no-reply@example.test", msg.From)
	assert.Equal(t, subjectPasswordReset, msg.Subject)
	assert.Contains(t, msg.Text, "Acme Agencies")
	assert.Contains(t, msg.Text, "expires in 1 hour(s)")

	var link string
	for _, line := range strings.Split(msg.Text, "\n") {
		if strings.HasPrefix(line, "https://") {
			link = line
		}
	}
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "abc.def+ghi", u.Query().Get("token"))
	assert.Equal(t, "mail", u.Query().Get("src"))
	assert.Contains(t, msg.HTML, "Reset Password")
}

func TestSendPasswordReset_InvalidRecipient(t *testing.T) {
	p := &recordingProvider{name: "rec"}
	m := newTestMailer(t, p)

	err := m.SendPasswordReset(context.Background(), PasswordReset{To: "not-an-address", Token: "t"})
	assert.ErrorIs(t, err, ErrInvalidRecipient)
	assert.Empty(t, p.sent)
}

func TestMailer_FailsOverToNextProvider(t *testing.T) {
	broken := &recordingProvider{name: "broken", err: errors.New("503 from upstream")}
	backup := &recordingProvider{name: "backup"}
	m := newTestMailer(t, broken, backup)

	require.NoError(t, m.Send(context.Background(), &Message{To: []string{"a@example.test"}, Subject: "s"}))
	assert.Len(t, backup.sent, 1)
}

func TestMailer_AllProvidersFail(t *testing.T) {
	m := newTestMailer(t,
		&recordingProvider{name: "one", err: errors.New("down")},
		&recordingProvider{name: "two", err: errors.New("also down")},
	)

	err := m.Send(context.Background(), &Message{To: []string{"a@example.test"}})
	require.ErrorIs(t, err, ErrAllProvidersFailed)
	assert.Contains(t, err.Error(), "one: down")
	assert.Contains(t, err.Error(), "two: also down")
}

func TestResendProvider_Send(t *testing.T) {
	var got resendPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathResendEmails, r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get(headerAuthorization))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"id":"re-123"}`))
	}))
	defer srv.Close()

	p := NewResendProvider(ResendConfig{APIKey: "re_test", APIURL: srv.URL})
	id, err := p.Send(context.Background(), &Message{
		To: []string{"a@example.test"}, From: "b@example.test", Subject: "hi", HTML: "<p>x</p>",
	})
	require.NoError(t, err)
	assert.Equal(t, "re-123", id)
	assert.Equal(t, "hi", got.Subject)
	assert.Equal(t, []string{"a@example.test"}, got.To)
}

func TestResendProvider_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	p := NewResendProvider(ResendConfig{APIKey: "re_test", APIURL: srv.URL})
	_, err := p.Send(context.Background(), &Message{To: []string{"a@example.test"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "422")
}

func TestProviders_RequireAPIKey(t *testing.T) {
	_, err := NewResendProvider(ResendConfig{}).Send(context.Background(), &Message{})
	assert.ErrorIs(t, err, ErrAPIKeyRequired)

	_, err = NewSendGridProvider(SendGridConfig{}).Send(context.Background(), &Message{})
	assert.ErrorIs(t, err, ErrAPIKeyRequired)
}

func TestSendGridProvider_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, pathSendGridMailSend, r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set(headerMessageID, "sg-9")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	p := NewSendGridProvider(SendGridConfig{APIKey: "SG.test", APIURL: srv.URL})
	id, err := p.Send(context.Background(), &Message{
		To: []string{"a@example.test"}, From: "b@example.test", Subject: "hi", HTML: "<p>x</p>", Text: "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "sg-9", id)

	content := got["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, mimeTextPlain, content[0].(map[string]any)[jsonType])
}

func TestLogProvider_DoesNotLogBody(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogProvider(zap.New(core))

	_, err := p.Send(context.Background(), &Message{To: []string{"a@example.test"}, Subject: "s", Text: "secret-link"})
	require.NoError(t, err)

	require.Equal(t, 1, logs.Len())
	for _, v := range logs.All()[0].ContextMap() {
		assert.NotContains(t, v, "secret-link")
	}
}

func TestNewMailerFromConfig(t *testing.T) {
	cfg := config.MailConfig{
		Provider: "resend, log",
		APIKey:   "re_x",
		From:     "no-reply@example.test",
		ResetURL: "https://app.example.test/reset",
	}
	m, err := NewMailerFromConfig(cfg, "agency-platform", nil)
	require.NoError(t, err)
	require.Len(t, m.providers, 2)
	assert.Equal(t, ProviderResend, m.providers[0].Name())
	assert.Equal(t, ProviderLog, m.providers[1].Name())

	cfg.Provider = "pigeon"
	_, err = NewMailerFromConfig(cfg, "agency-platform", nil)
	assert.Error(t, err)
}
