package notify

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
)

type passwordResetData struct {
	Company     string
	ResetURL    string
	ExpiryHours int
}

var passwordResetHTML = htmltemplate.Must(htmltemplate.New("password-reset_html").Parse(`<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<title>Reset Your Password</title>
</head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
	<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
		<h2>{{.Company}}</h2>
		<p>We received a request to reset the password of your {{.Company}} account.</p>
		<div style="text-align: center; margin: 30px 0;">
			<a href="{{.ResetURL}}" style="background-color: #1d4ed8; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">
				Reset Password
			</a>
		</div>
		<p>Or copy and paste this link into your browser:</p>
		<p style="word-break: break-all;">{{.ResetURL}}</p>
		<p>The link can be used once and expires in {{.ExpiryHours}} hour(s).</p>
		<p>If you did not request a password reset, you can ignore this email.</p>
	</div>
</body>
</html>
`))

var passwordResetText = texttemplate.Must(texttemplate.New("password-reset_text").Parse(`Reset Your Password

We received a request to reset the password of your {{.Company}} account.

Visit this link to choose a new password:
{{.ResetURL}}

The link can be used once and expires in {{.ExpiryHours}} hour(s).

If you did not request a password reset, you can ignore this email.
`))

func renderPasswordReset(data passwordResetData) (string, string, error) {
	var html, text bytes.Buffer
	if err := passwordResetHTML.Execute(&html, data); err != nil {
		return "", "", fmt.Errorf(errRenderTemplateFmt, "password reset html", err)
	}
	if err := passwordResetText.Execute(&text, data); err != nil {
		return "", "", fmt.Errorf(errRenderTemplateFmt, "password reset text", err)
	}
	return html.String(), text.String(), nil
}
