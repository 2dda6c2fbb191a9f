package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"

	"go.uber.org/zap"
)

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPDispatcher mails a plain-text rendering of each notification to
// the affiliate alias address. It never returns errors to callers.
type SMTPDispatcher struct {
	cfg SMTPConfig
	log *zap.Logger
}

func NewSMTP(cfg SMTPConfig, log *zap.Logger) *SMTPDispatcher {
	return &SMTPDispatcher{cfg: cfg, log: log.Named("notify.smtp")}
}

func (d *SMTPDispatcher) Dispatch(ctx context.Context, n Notification) {
	to := fmt.Sprintf("affiliate-%s@%s", n.AffiliateID, d.cfg.Host)
	subject := "Affina: " + n.Event
	body := renderPayload(n.Payload)

	auth := smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)
	addr := fmt.Sprintf("%s:%d", d.cfg.Host, d.cfg.Port)
	msg := []byte(fmt.Sprintf("To: %s\r\nSubject: %s\r\n\r\n%s", to, subject, body))

	if err := smtp.SendMail(addr, auth, d.cfg.From, []string{to}, msg); err != nil {
		d.log.Warn("notification delivery failed",
			zap.String("affiliate_id", n.AffiliateID),
			zap.String("event", n.Event),
			zap.Error(err),
		)
	}
}

func renderPayload(payload map[string]any) string {
	if len(payload) == 0 {
		return ""
	}
	keys := make([]string, 0, len(payload))
	for k := range payload {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %v\n", k, payload[k])
	}
	return b.String()
}

// LogDispatcher records notifications in the service log only. Used
// when SMTP is not configured.
type LogDispatcher struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *LogDispatcher {
	return &LogDispatcher{log: log.Named("notify")}
}

func (d *LogDispatcher) Dispatch(ctx context.Context, n Notification) {
	d.log.Info("notification",
		zap.String("affiliate_id", n.AffiliateID),
		zap.String("event", n.Event),
		zap.Any("payload", n.Payload),
	)
}
