package notify

import "time"

const (
	ProviderResend   = "resend"
	ProviderSendGrid = "sendgrid"
	ProviderLog      = "log"
)

const (
	resendAPIURL   = "https://api.resend.com"
	sendGridAPIURL = "https://api.sendgrid.com"

	pathResendEmails     = "/emails"
	pathSendGridMailSend = "/v3/mail/send"

	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	headerMessageID     = "X-Message-Id"
	authBearerPrefix    = "Bearer "
	mimeApplicationJSON = "application/json"
	mimeTextHTML        = "text/html"
	mimeTextPlain       = "text/plain"

	jsonEmail            = "email"
	jsonPersonalizations = "personalizations"
	jsonType             = "type"
	jsonValue            = "value"

	defaultHTTPTimeout = 10 * time.Second
	maxErrorBodyBytes  = 4 << 10

	subjectPasswordReset = "Reset your password"
	resetTokenParam      = "token"
	messageSeparator     = "; "

	errAPIStatusFmt       = "%s API error: %d - %s"
	errProviderFailedFmt  = "%s: %v"
	errUnknownProviderFmt = "notify: unknown mail provider %q"
	errBuildResetURLFmt   = "notify: invalid reset url: %v"
	errRenderTemplateFmt  = "notify: render %s: %w"
)
