// internal/app/system/mailer/templates.go
package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

// DecisionEmailData fills the request-decision email.
type DecisionEmailData struct {
	SiteName      string
	RecipientName string
	KindLabel     string // 電子券 / 補點 / 會員異動
	Approved      bool
	Code          string // voucher code, approvals only
	ApproverName  string
}

// BuildDecisionEmail renders the email sent to a requester when their
// request is approved or rejected.
func BuildDecisionEmail(data DecisionEmailData) Email {
	verdict := "已駁回"
	if data.Approved {
		verdict = "已核准"
	}
	return Email{
		Subject:  fmt.Sprintf("[%s] 您的%s申請%s", data.SiteName, data.KindLabel, verdict),
		TextBody: buildDecisionText(data, verdict),
		HTMLBody: render(decisionHTML, struct {
			DecisionEmailData
			Verdict string
		}{data, verdict}),
	}
}

func buildDecisionText(data DecisionEmailData, verdict string) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s 您好：\n\n", data.RecipientName)
	fmt.Fprintf(&buf, "您的%s申請%s。\n", data.KindLabel, verdict)
	if data.Code != "" {
		fmt.Fprintf(&buf, "券號：%s\n", data.Code)
	}
	if data.ApproverName != "" {
		fmt.Fprintf(&buf, "審核人：%s\n", data.ApproverName)
	}
	return buf.String()
}

// BuildCustomEmail wraps an already-sanitized HTML body in the site layout.
func BuildCustomEmail(siteName, subject string, body template.HTML) Email {
	return Email{
		Subject: subject,
		HTMLBody: render(customHTML, struct {
			SiteName string
			Body     template.HTML
		}{siteName, body}),
	}
}

var (
	decisionHTML = template.Must(template.New("decision").Parse(layoutTop + `
              <p style="margin: 0 0 16px; font-size: 16px; color: #374151;">{{.RecipientName}} 您好：</p>
              <p style="margin: 0 0 16px; font-size: 16px; color: #374151;">您的{{.KindLabel}}申請<strong>{{.Verdict}}</strong>。</p>
              {{if .Code}}
              <div style="background-color: #f3f4f6; border-radius: 8px; padding: 24px; text-align: center; margin-bottom: 24px;">
                <span style="font-size: 28px; font-weight: 700; letter-spacing: 4px; color: #1f2937; font-family: 'Courier New', monospace;">{{.Code}}</span>
              </div>
              {{end}}
              {{if .ApproverName}}<p style="margin: 0; font-size: 14px; color: #6b7280;">審核人：{{.ApproverName}}</p>{{end}}` + layoutBottom))

	customHTML = template.Must(template.New("custom").Parse(layoutTop + `
              {{.Body}}` + layoutBottom))
)

func render(t *template.Template, data interface{}) string {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

const layoutTop = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, 'Noto Sans TC', Arial, sans-serif; background-color: #f3f4f6;">
  <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="background-color: #f3f4f6;">
    <tr>
      <td align="center" style="padding: 40px 20px;">
        <table role="presentation" width="100%" cellspacing="0" cellpadding="0" style="max-width: 520px; background-color: #ffffff; border-radius: 8px;">
          <tr>
            <td style="padding: 32px 32px 24px; text-align: center; border-bottom: 1px solid #e5e7eb;">
              <h1 style="margin: 0; font-size: 22px; font-weight: 600; color: #4f46e5;">{{.SiteName}}</h1>
            </td>
          </tr>
          <tr>
            <td style="padding: 32px;">`

const layoutBottom = `
            </td>
          </tr>
        </table>
      </td>
    </tr>
  </table>
</body>
</html>`
