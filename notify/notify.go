// Package notify delivers contact-form submissions to the site owner.
package notify

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"inkblog/constants"

	"github.com/rs/zerolog"
)

// Message is one contact-form submission.
type Message struct {
	Name  string
	Email string
	Phone string
	Body  string
}

type Outcome int

const (
	Sent Outcome = iota
	Failed
)

func (o Outcome) String() string {
	if o == Sent {
		return "sent"
	}
	return "failed"
}

// Result reports whether a message left the process. Reason is set when Outcome is Failed.
type Result struct {
	Outcome Outcome
	Reason  string
}

func (r Result) OK() bool {
	return r.Outcome == Sent
}

func SentResult() Result {
	return Result{Outcome: Sent}
}

func FailedResult(reason string) Result {
	return Result{Outcome: Failed, Reason: reason}
}

type Sender interface {
	Send(ctx context.Context, msg Message) Result
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	To       string
	Timeout  time.Duration
}

// SMTPSender relays messages through an SMTP server. net/smtp upgrades the connection with
// STARTTLS whenever the server offers it.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail sendMailFunc
	log      zerolog.Logger
}

func NewSMTPSender(cfg SMTPConfig, log zerolog.Logger) *SMTPSender {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPSender{
		cfg:      cfg,
		sendMail: smtp.SendMail,
		log:      log.With().Str("component", "smtp").Logger(),
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) Result {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	addr := net.JoinHostPort(s.cfg.Host, s.cfg.Port)
	var auth smtp.Auth
	if s.cfg.Password != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}
	raw := buildMessage(s.cfg.Username, s.cfg.To, msg)

	done := make(chan error, 1)
	go func() {
		done <- s.sendMail(addr, auth, s.cfg.Username, []string{s.cfg.To}, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			s.log.Error().Err(err).Str("addr", addr).Msg("contact message not delivered")
			return FailedResult(err.Error())
		}
		s.log.Info().Str("addr", addr).Msg("contact message relayed")
		return SentResult()
	case <-ctx.Done():
		s.log.Error().Err(ctx.Err()).Str("addr", addr).Msg("contact message timed out")
		return FailedResult("timed out talking to the mail relay")
	}
}

// headerSafe drops CR and LF so user input cannot add headers.
func headerSafe(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(strings.TrimSpace(v))
}

func buildMessage(from, to string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", headerSafe(from))
	fmt.Fprintf(&b, "To: %s\r\n", headerSafe(to))
	if email := headerSafe(msg.Email); email != "" {
		fmt.Fprintf(&b, "Reply-To: %s\r\n", email)
	}
	fmt.Fprintf(&b, "Subject: %s\r\n", constants.CONTACT_SUBJECT)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "%s\r\n%s\r\n%s\r\n%s\r\n",
		headerSafe(msg.Name), headerSafe(msg.Email), headerSafe(msg.Phone), msg.Body)
	return []byte(b.String())
}

// LogSender writes messages to the log instead of mailing them; used when no relay is set.
type LogSender struct {
	log zerolog.Logger
}

func NewLogSender(log zerolog.Logger) *LogSender {
	return &LogSender{log: log.With().Str("component", "contact").Logger()}
}

func (s *LogSender) Send(_ context.Context, msg Message) Result {
	s.log.Warn().
		Str("name", msg.Name).
		Str("email", msg.Email).
		Str("phone", msg.Phone).
		Str("message", msg.Body).
		Msg("no SMTP relay configured, contact message only logged")
	return SentResult()
}
