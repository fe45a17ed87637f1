package email

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/qs3c/homework_helper/config"
)

// Mailer 业务邮件，负责渲染模板并交给 Sender
type Mailer struct {
	sender       Sender
	appURL       string
	adminAddress string
}

func NewMailer(sender Sender, cfg config.EmailConfig, appURL string) *Mailer {
	return &Mailer{
		sender:       sender,
		appURL:       strings.TrimRight(appURL, "/"),
		adminAddress: cfg.AdminAddress,
	}
}

// Configured 是否能真正投递
func (m *Mailer) Configured() bool {
	_, noop := m.sender.(NoopSender)
	return !noop
}

// SendVerification 发送邮箱验证码
func (m *Mailer) SendVerification(ctx context.Context, to, name, code string) error {
	data := VerificationData{
		Name: name,
		Code: code,
		Link: m.appURL + "/verify-email?code=" + url.QueryEscape(code),
	}
	return m.send(ctx, "verification", data, Message{
		To:      to,
		ToName:  name,
		Subject: "Confirm your HomeworkHelper email",
		Text:    fmt.Sprintf("Your verification code is %s\n\n%s", code, data.Link),
	})
}

// SendPasswordReset 发送密码重置链接
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	data := ResetData{Link: m.appURL + "/reset-password?token=" + url.QueryEscape(token)}
	return m.send(ctx, "reset", data, Message{
		To:      to,
		Subject: "Reset your HomeworkHelper password",
		Text:    "Reset your password: " + data.Link,
	})
}

// SendContactNotification 通知管理员有新的联系表单
func (m *Mailer) SendContactNotification(ctx context.Context, c ContactData) error {
	if m.adminAddress == "" {
		return ErrNotConfigured
	}
	subject := "Contact form: " + c.Subject
	if c.Subject == "" {
		subject = "Contact form message from " + c.Name
	}
	return m.send(ctx, "contact_notify", c, Message{
		To:      m.adminAddress,
		ReplyTo: c.Email,
		Subject: subject,
		Text:    fmt.Sprintf("From: %s <%s>\n\n%s", c.Name, c.Email, c.Message),
	})
}

// SendContactAutoReply 给提交者的自动回复
func (m *Mailer) SendContactAutoReply(ctx context.Context, c ContactData) error {
	return m.send(ctx, "contact_reply", c, Message{
		To:      c.Email,
		ToName:  c.Name,
		Subject: "We received your message",
		Text:    "Thanks for reaching out to HomeworkHelper. We will get back to you shortly.",
	})
}

// SendPaymentReceipt 支付成功回执
func (m *Mailer) SendPaymentReceipt(ctx context.Context, to string, r ReceiptData) error {
	return m.send(ctx, "receipt", r, Message{
		To:      to,
		ToName:  r.Name,
		Subject: "Your HomeworkHelper payment receipt",
		Text: fmt.Sprintf("Payment of %s %.2f for the %s plan was successful. Reference: %s",
			r.Currency, r.Amount, r.PlanName, r.Reference),
	})
}

func (m *Mailer) send(ctx context.Context, tmpl string, data interface{}, msg Message) error {
	html, err := render(tmpl, data)
	if err != nil {
		return fmt.Errorf("render %s email: %w", tmpl, err)
	}
	msg.HTML = html

	if err := m.sender.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrNotConfigured) {
			return err
		}
		return fmt.Errorf("send %s email via %s: %w", tmpl, m.sender.Name(), err)
	}
	return nil
}
