package audit

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"log/slog"
	"strings"

	mail "github.com/go-mail/mail/v2"

	"github.com/warp/contribution-engine/generic"
)

// MailConfig holds SMTP settings. Zero Port means 587.
type MailConfig struct {
	Host          string
	Port          int
	User          string
	Pass          string
	From          string // e.g. "Research Office <no-reply@example.org>"
	To            []string
	SkipTLSVerify bool

	// Actions limits which entries are mailed. Empty means transitions only.
	Actions []generic.AuditAction
}

// Enabled reports whether enough is configured to send anything.
func (c MailConfig) Enabled() bool {
	return c.Host != "" && c.From != "" && len(c.To) > 0
}

// Sender delivers messages. *mail.Dialer satisfies it.
type Sender interface {
	DialAndSend(m ...*mail.Message) error
}

// MailSink e-mails audit entries to a fixed recipient list.
type MailSink struct {
	Config MailConfig
	Sender Sender
	Logger *slog.Logger
}

func NewMailSink(cfg MailConfig, logger *slog.Logger) *MailSink {
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	d := mail.NewDialer(cfg.Host, port, cfg.User, cfg.Pass)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	return &MailSink{Config: cfg, Sender: d, Logger: logger}
}

func (s *MailSink) Notify(_ context.Context, e generic.AuditEntry) {
	if !s.Config.Enabled() || !s.wants(e.Action) {
		return
	}
	if err := s.Sender.DialAndSend(s.Message(e)); err != nil {
		s.Logger.Error("failed to send audit mail", "id", e.ID, "contribution", e.ContributionID, "error", err)
	}
}

func (s *MailSink) wants(action generic.AuditAction) bool {
	if len(s.Config.Actions) == 0 {
		return action == generic.AuditTransition
	}
	for _, a := range s.Config.Actions {
		if a == action {
			return true
		}
	}
	return false
}

// Message renders an entry as an HTML mail.
func (s *MailSink) Message(e generic.AuditEntry) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.Config.From)
	m.SetHeader("To", s.Config.To...)
	m.SetHeader("Subject", subject(e))
	m.SetBody("text/html", body(e))
	return m
}

func subject(e generic.AuditEntry) string {
	if e.Action == generic.AuditTransition {
		return fmt.Sprintf("Contribution %s: %s → %s", e.ContributionID, e.FromStatus, e.ToStatus)
	}
	return fmt.Sprintf("Contribution %s: %s", e.ContributionID, e.Action)
}

func body(e generic.AuditEntry) string {
	var b strings.Builder
	b.WriteString("<table>")
	row := func(k, v string) {
		if v == "" {
			return
		}
		fmt.Fprintf(&b, "<tr><th align=\"left\">%s</th><td>%s</td></tr>", k, html.EscapeString(v))
	}
	row("Contribution", string(e.ContributionID))
	row("Action", string(e.Action))
	row("From", string(e.FromStatus))
	row("To", string(e.ToStatus))
	row("Actor", fmt.Sprintf("%s (%s)", e.ActorID, e.ActorRole))
	if e.Totals != nil {
		row("Pool amount", e.Totals.PoolAmount.String())
		row("Pool points", e.Totals.PoolPoints.String())
		row("Policy", string(e.Totals.PolicyID))
	}
	row("Comment", e.Comment)
	row("At", e.Timestamp.Format("2006-01-02 15:04:05 MST"))
	b.WriteString("</table>")
	return b.String()
}
