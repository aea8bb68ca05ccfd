package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ScreenRadar/pkg/model"
)

// maxListed matches listed in one alert body
const maxListed = 20

// Config SMTP settings. With Enabled false alerts are only logged.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Enabled  bool
}

// Message a plain text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Sender delivers one message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// ShouldSend decides whether a freshly evaluated watch emails its owner.
// Immediate watches alert whenever new symbols start matching; daily and
// weekly watches alert at most once per window while they have matches.
func ShouldSend(w *model.Watchlist, ev model.MatchEvent, now time.Time) bool {
	if !w.EmailAlerts || ev.Count == 0 {
		return false
	}
	if w.AlertFrequency == model.AlertImmediate {
		return len(ev.Added) > 0
	}
	if w.LastAlertSent == nil {
		return true
	}
	return now.Sub(*w.LastAlertSent) >= w.AlertFrequency.Window()
}

// ComposeAlert renders the alert mail for one watch.
func ComposeAlert(user *model.User, w *model.Watchlist, ev model.MatchEvent) Message {
	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", user.Username)
	fmt.Fprintf(&b, "Your watchlist %q (%s) has found %d matching stocks.\n", w.Name, w.Index, ev.Count)
	if len(ev.Added) > 0 {
		fmt.Fprintf(&b, "New since the last check: %s\n", strings.Join(ev.Added, ", "))
	}
	if len(ev.Removed) > 0 {
		fmt.Fprintf(&b, "No longer matching: %s\n", strings.Join(ev.Removed, ", "))
	}
	b.WriteString("\nMatching stocks:\n")
	for i, s := range ev.Matches {
		if i == maxListed {
			fmt.Fprintf(&b, "\n... and %d more stocks.\n", len(ev.Matches)-maxListed)
			break
		}
		sector := s.Sector
		if sector == "" {
			sector = "N/A"
		}
		price := "N/A"
		if s.Price != nil {
			price = fmt.Sprintf("$%.2f", *s.Price)
		}
		fmt.Fprintf(&b, "- %s: %s (%s)\n", s.Symbol, price, sector)
	}
	fmt.Fprintf(&b, "\nChecked at %s.\n", ev.CheckedAt.UTC().Format("2006-01-02 15:04 MST"))

	return Message{
		To:      user.Email,
		Subject: fmt.Sprintf("Stock Screener Alert: %s - %d Matches Found", w.Name, ev.Count),
		Body:    b.String(),
	}
}

// Notifier sends watch alerts through a Sender.
type Notifier struct {
	sender Sender
	log    zerolog.Logger
}

func New(cfg Config, log zerolog.Logger) *Notifier {
	log = log.With().Str("component", "notify").Logger()
	var sender Sender = logSender{log: log}
	if cfg.Enabled {
		sender = &SMTPSender{cfg: cfg}
	}
	return NewWithSender(sender, log)
}

func NewWithSender(sender Sender, log zerolog.Logger) *Notifier {
	return &Notifier{sender: sender, log: log}
}

// Alert emails the owner of w about ev.
func (n *Notifier) Alert(ctx context.Context, user *model.User, w *model.Watchlist, ev model.MatchEvent) error {
	if user.Email == "" {
		return fmt.Errorf("user %s has no email address", user.ID)
	}
	msg := ComposeAlert(user, w, ev)
	if err := n.sender.Send(ctx, msg); err != nil {
		return fmt.Errorf("send alert for watchlist %s: %w", w.ID, err)
	}
	n.log.Info().Str("watchlist", w.ID).Str("to", msg.To).Int("matches", ev.Count).Msg("alert sent")
	return nil
}

// SMTPSender delivers mail with net/smtp.
type SMTPSender struct {
	cfg Config
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	port := s.cfg.Port
	if port == 0 {
		port = 587
	}
	addr := s.cfg.Host + ":" + strconv.Itoa(port)

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	return smtp.SendMail(addr, auth, s.cfg.From, []string{msg.To}, encode(s.cfg.From, msg))
}

func encode(from string, msg Message) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

type logSender struct {
	log zerolog.Logger
}

func (l logSender) Send(_ context.Context, msg Message) error {
	l.log.Info().Str("to", msg.To).Str("subject", msg.Subject).Msg("smtp disabled, alert not delivered")
	return nil
}
