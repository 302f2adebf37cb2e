package engine

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"strings"
)

var emailLayout = template.Must(template.New("email").Parse(`<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
  </head>
  <body style="font-family: Arial, sans-serif; margin: 0; padding: 0; background-color: #f5f5f5;">
    <div style="max-width: 600px; margin: 0 auto; background-color: #ffffff;">
      <div style="background: linear-gradient(135deg, #2c5282 0%, #1a365d 100%); padding: 30px; text-align: center;">
        <h1 style="color: #ffffff; margin: 0; font-size: 24px;">🕌 {{.Title}}</h1>
      </div>
      <div style="padding: 30px; line-height: 1.6; color: #333333;">
        <div style="white-space: pre-wrap; font-size: 16px;">{{.Body}}</div>
      </div>
      <div style="background-color: #f9fafb; padding: 20px; text-align: center; border-top: 1px solid #e5e7eb;">
        <p style="color: #6b7280; font-size: 12px; margin: 0 0 10px 0;">
          Bu email The Canadian Turkish Islamic Trust tarafından gönderilmiştir.
        </p>
        {{- if .UnsubscribeURL}}
        <p style="color: #9ca3af; font-size: 11px; margin: 0;">
          Bu duyuruları almak istemiyorsanız,
          <a href="{{.UnsubscribeURL}}" style="color: #2563eb; text-decoration: underline;">buraya tıklayarak</a>
          abonelikten çıkabilirsiniz.
        </p>
        {{- end}}
      </div>
    </div>
  </body>
</html>
`))

// EmailContent is the data rendered into the announcement layout.
type EmailContent struct {
	Title          string
	Body           string
	UnsubscribeURL string
}

// RenderEmail renders the announcement layout. Title and body are escaped.
func RenderEmail(content EmailContent) (string, error) {
	var buf bytes.Buffer
	if err := emailLayout.Execute(&buf, content); err != nil {
		return "", fmt.Errorf("rendering email: %w", err)
	}
	return buf.String(), nil
}

// UnsubscribeURL builds the one-click unsubscribe link for email.
func UnsubscribeURL(siteURL, email string) string {
	return strings.TrimRight(siteURL, "/") + "/api/unsubscribe?email=" + url.QueryEscape(email)
}
