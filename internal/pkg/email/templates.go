package email

import (
	"bytes"
	"html/template"
)

var templates = template.Must(template.New("email").Parse(`
{{define "header"}}<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px;">{{end}}

{{define "footer"}}<hr style="border: none; border-top: 1px solid #e5e7eb; margin: 20px 0;">
<p style="color: #6b7280; font-size: 12px;">HomeworkHelper</p>
</div>
</body>
</html>{{end}}

{{define "verification"}}{{template "header"}}
<h2 style="color: #2563eb;">Confirm your email</h2>
<p>Hi {{.Name}},</p>
<p>Your HomeworkHelper verification code is:</p>
<div style="background-color: #f3f4f6; padding: 15px; text-align: center; font-size: 24px; font-weight: bold; letter-spacing: 5px; margin: 20px 0;">{{.Code}}</div>
<p>Or open this link: <a href="{{.Link}}">{{.Link}}</a></p>
<p>The code expires in 24 hours.</p>
{{template "footer"}}{{end}}

{{define "reset"}}{{template "header"}}
<h2 style="color: #2563eb;">Reset your password</h2>
<p>We received a request to reset your password.</p>
<div style="text-align: center; margin: 30px 0;">
<a href="{{.Link}}" style="background-color: #2563eb; color: white; padding: 12px 30px; text-decoration: none; border-radius: 5px; display: inline-block;">Reset password</a>
</div>
<p style="background-color: #f3f4f6; padding: 10px; word-break: break-all;">{{.Link}}</p>
<p>The link expires in 30 minutes. If you did not ask for this, ignore this email.</p>
{{template "footer"}}{{end}}

{{define "contact_notify"}}{{template "header"}}
<h2>New contact message</h2>
<p><strong>From:</strong> {{.Name}} &lt;{{.Email}}&gt;</p>
<p><strong>Subject:</strong> {{.Subject}}</p>
<p style="white-space: pre-wrap; background-color: #f3f4f6; padding: 10px;">{{.Message}}</p>
{{template "footer"}}{{end}}

{{define "contact_reply"}}{{template "header"}}
<h2 style="color: #2563eb;">We got your message</h2>
<p>Hi {{.Name}},</p>
<p>Thanks for reaching out. Our team will get back to you shortly.</p>
<p style="white-space: pre-wrap; color: #6b7280;">{{.Message}}</p>
{{template "footer"}}{{end}}

{{define "receipt"}}{{template "header"}}
<h2 style="color: #16a34a;">Payment received</h2>
<p>Hi {{.Name}},</p>
<p>Your payment of <strong>{{.Currency}} {{printf "%.2f" .Amount}}</strong> for the <strong>{{.PlanName}}</strong> plan was successful.</p>
<p>Reference: {{.Reference}}</p>
{{if .ExpiresAt}}<p>Your plan is active until {{.ExpiresAt}}.</p>{{end}}
{{template "footer"}}{{end}}
`))

type VerificationData struct {
	Name string
	Code string
	Link string
}

type ResetData struct {
	Link string
}

type ContactData struct {
	Name    string
	Email   string
	Subject string
	Message string
}

type ReceiptData struct {
	Name      string
	Reference string
	PlanName  string
	Amount    float64
	Currency  string
	ExpiresAt string
}

func render(name string, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
