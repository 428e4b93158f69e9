package mail

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	gomail "github.com/go-mail/mail/v2"

	"starter/internal/logs"
)

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
}

type Sender interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTP отправляет письма через go-mail с повтором при сбое соединения.
type SMTP struct {
	from     string
	dialer   *gomail.Dialer
	attempts int
	backoff  time.Duration
	send     func(*gomail.Message) error
}

func NewSMTP(cfg SMTPConfig) *SMTP {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.Timeout = 30 * time.Second

	switch cfg.Port {
	case 587:
		d.StartTLSPolicy = gomail.MandatoryStartTLS
	case 465:
		d.SSL = true
		d.StartTLSPolicy = gomail.NoStartTLS
	default:
		d.StartTLSPolicy = gomail.OpportunisticStartTLS
	}

	s := &SMTP{from: cfg.From, dialer: d, attempts: 3, backoff: time.Second}
	s.send = func(m *gomail.Message) error { return d.DialAndSend(m) }
	return s
}

func (s *SMTP) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		m.AddAlternative("text/html", msg.HTML)
	}

	var err error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err = s.send(m); err == nil {
			logs.Logger.Infof("mail: sent %q to %s", msg.Subject, msg.To)
			return nil
		}
		logs.Logger.Warnf("mail: attempt %d/%d to %s failed: %v", attempt, s.attempts, msg.To, err)
		if attempt == s.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.backoff):
		}
	}
	return fmt.Errorf("send mail after %d attempts: %w", s.attempts, err)
}

// LogSender пишет письмо в лог вместо отправки. Используется, когда SMTP не настроен.
type LogSender struct{}

func (LogSender) Send(_ context.Context, msg Message) error {
	logs.Logger.WithField("to", msg.To).Infof("mail (not sent): %s\n%s", msg.Subject, msg.Text)
	return nil
}

var resetHTML = template.Must(template.New("reset").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: Arial, sans-serif; color: #333; line-height: 1.6;">
  <p>Hello {{.Name}},</p>
  <p>A password reset was requested for your account.</p>
  <p><a href="{{.Link}}">Reset your password</a></p>
  <p>The link is valid for {{.TTL}}. If you did not request it, ignore this email.</p>
</body>
</html>`))

// PasswordReset собирает письмо со ссылкой сброса пароля.
func PasswordReset(to, name, link string, ttl time.Duration) (Message, error) {
	var b strings.Builder
	data := struct {
		Name, Link, TTL string
	}{name, link, ttl.String()}
	if err := resetHTML.Execute(&b, data); err != nil {
		return Message{}, err
	}
	return Message{
		To:      to,
		Subject: "Password reset",
		Text: fmt.Sprintf("Hello %s,\n\nA password reset was requested for your account.\nOpen this link to set a new password:\n%s\n\nThe link is valid for %s. If you did not request it, ignore this email.\n",
			name, link, ttl),
		HTML: b.String(),
	}, nil
}
