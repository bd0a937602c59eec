package services

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/wneessen/go-mail"

	"github.com/example/sitesnap/internal/config"
	"github.com/example/sitesnap/internal/logger"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// Message is one outbound notification.
type Message struct {
	Channel Channel
	To      string
	Subject string
	Body    string
}

// Dispatcher delivers messages to a destination.
type Dispatcher interface {
	Send(ctx context.Context, msg Message) error
}

// Router picks a sender by channel and falls back to the log sink for any
// channel without one.
type Router struct {
	Email Dispatcher
	SMS   Dispatcher
	Log   *LogDispatcher
}

func (r *Router) Send(ctx context.Context, msg Message) error {
	var target Dispatcher
	switch msg.Channel {
	case ChannelEmail:
		target = r.Email
	case ChannelSMS:
		target = r.SMS
	default:
		return fmt.Errorf("unknown channel %q", msg.Channel)
	}
	if target == nil {
		return r.Log.Send(ctx, msg)
	}
	return target.Send(ctx, msg)
}

// LogDispatcher writes messages to the log instead of delivering them.
type LogDispatcher struct {
	log *logger.Logger
}

func NewLogDispatcher(log *logger.Logger) *LogDispatcher {
	return &LogDispatcher{log: log}
}

func (d *LogDispatcher) Send(ctx context.Context, msg Message) error {
	if d == nil || d.log == nil {
		return nil
	}
	logCtx := d.log.WithFields(ctx, map[string]any{
		"channel": string(msg.Channel),
		"to":      msg.To,
		"subject": msg.Subject,
		"body":    msg.Body,
	})
	d.log.Warn(logCtx, "dispatch.console")
	return nil
}

// EmailSender delivers mail over SMTP.
type EmailSender struct {
	cfg     config.SMTPConfig
	timeout time.Duration
}

// NewEmailSender returns nil when no SMTP host is configured.
func NewEmailSender(cfg config.SMTPConfig) *EmailSender {
	if cfg.Host == "" {
		return nil
	}
	return &EmailSender{cfg: cfg, timeout: 15 * time.Second}
}

func (s *EmailSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return errors.Wrap(err, "email from")
	}
	if err := m.To(msg.To); err != nil {
		return errors.Wrap(err, "email to")
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.timeout),
		mail.WithTLSPortPolicy(mail.TLSOpportunistic),
	}
	if s.cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.cfg.Username),
			mail.WithPassword(s.cfg.Password),
		)
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return errors.Wrap(err, "email client")
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return errors.Wrapf(err, "email send to %s", msg.To)
	}
	return nil
}

func otpMessage(channel Channel, to, code string, ttl time.Duration) Message {
	minutes := int(ttl.Minutes())
	body := fmt.Sprintf("Your SiteSnap verification code is %s. It expires in %d minutes.", code, minutes)
	return Message{
		Channel: channel,
		To:      to,
		Subject: "Your SiteSnap verification code",
		Body:    body,
	}
}
