package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"
)

type httpProvider struct {
	name   string
	apiKey string
	apiURL string
	client *http.Client
}

func newHTTPProvider(name, apiKey, apiURL, defaultURL string, client *http.Client) httpProvider {
	if apiURL == "" {
		apiURL = defaultURL
	}
	if client == nil {
		client = &http.Client{Timeout: defaultHTTPTimeout}
	}
	return httpProvider{name: name, apiKey: apiKey, apiURL: strings.TrimSuffix(apiURL, "/"), client: client}
}

func (p *httpProvider) Name() string {
	return p.name
}

// post sends payload as JSON and returns the response body of a 2xx reply.
func (p *httpProvider) post(ctx context.Context, path string, payload any) (*http.Response, []byte, error) {
	if p.apiKey == "" {
		return nil, nil, ErrAPIKeyRequired
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set(headerAuthorization, authBearerPrefix+p.apiKey)
	req.Header.Set(headerContentType, mimeApplicationJSON)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, nil, fmt.Errorf(errAPIStatusFmt, p.name, resp.StatusCode, string(respBody))
	}
	return resp, respBody, nil
}

// ResendProvider sends through the Resend HTTP API.
type ResendProvider struct {
	httpProvider
}

type ResendConfig struct {
	APIKey string
	APIURL string
	Client *http.Client
}

func NewResendProvider(cfg ResendConfig) *ResendProvider {
	return &ResendProvider{newHTTPProvider(ProviderResend, cfg.APIKey, cfg.APIURL, resendAPIURL, cfg.Client)}
}

type resendPayload struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Text    string   `json:"text,omitempty"`
}

func (p *ResendProvider) Send(ctx context.Context, msg *Message) (string, error) {
	_, body, err := p.post(ctx, pathResendEmails, resendPayload{
		From:    msg.From,
		To:      msg.To,
		Subject: msg.Subject,
		HTML:    msg.HTML,
		Text:    msg.Text,
	})
	if err != nil {
		return "", err
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return "", err
	}
	return result.ID, nil
}

// SendGridProvider sends through the SendGrid v3 API.
type SendGridProvider struct {
	httpProvider
}

type SendGridConfig struct {
	APIKey string
	APIURL string
	Client *http.Client
}

func NewSendGridProvider(cfg SendGridConfig) *SendGridProvider {
	return &SendGridProvider{newHTTPProvider(ProviderSendGrid, cfg.APIKey, cfg.APIURL, sendGridAPIURL, cfg.Client)}
}

func (p *SendGridProvider) Send(ctx context.Context, msg *Message) (string, error) {
	to := make([]map[string]string, len(msg.To))
	for i, addr := range msg.To {
		to[i] = map[string]string{jsonEmail: addr}
	}

	// SendGrid requires text/plain to precede text/html.
	var content []map[string]string
	if msg.Text != "" {
		content = append(content, map[string]string{jsonType: mimeTextPlain, jsonValue: msg.Text})
	}
	content = append(content, map[string]string{jsonType: mimeTextHTML, jsonValue: msg.HTML})

	payload := map[string]any{
		jsonPersonalizations: []map[string]any{{"to": to}},
		"from":               map[string]string{jsonEmail: msg.From},
		"subject":            msg.Subject,
		"content":            content,
	}

	resp, _, err := p.post(ctx, pathSendGridMailSend, payload)
	if err != nil {
		return "", err
	}
	return resp.Header.Get(headerMessageID), nil
}

// LogProvider writes messages to the log. It is meant for development; the
// body is not logged because it carries the reset link.
type LogProvider struct {
	log *zap.Logger
}

func NewLogProvider(log *zap.Logger) *LogProvider {
	if log == nil {
		log = zap.NewNop()
	}
	return &LogProvider{log: log.Named("mail")}
}

func (p *LogProvider) Name() string {
	return ProviderLog
}

func (p *LogProvider) Send(_ context.Context, msg *Message) (string, error) {
	p.log.Info("mail delivery skipped",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
	)
	return "", nil
}
