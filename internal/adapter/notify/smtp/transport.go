// Package smtp implements domain.Notifier over net/smtp. No SMTP or mail
// library appears anywhere in the retrieved corpus, so this adapter is
// built directly on the standard library rather than against a grounded
// third-party client (see DESIGN.md).
package smtp

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strings"
	"text/template"

	"go.opentelemetry.io/otel"

	"github.com/briskprint/printservice/internal/domain"
	obsctx "github.com/briskprint/printservice/internal/observability"
)

// Transport sends notifications as plain email via an authenticated SMTP
// relay. One message is sent per recipient address.
type Transport struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	UseTLS     bool
	Recipients []string

	// dial is overridable in tests to avoid real network I/O.
	dial func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// New constructs a Transport from SMTP connection details and the static
// recipient list configured for operator notifications.
func New(host string, port int, username, password, from string, useTLS bool, recipients []string) *Transport {
	return &Transport{
		Host:       host,
		Port:       port,
		Username:   username,
		Password:   password,
		From:       from,
		UseTLS:     useTLS,
		Recipients: recipients,
	}
}

// Send implements domain.Notifier. It renders tpl.Body as a text/template
// against evtCtx and delivers it to every configured recipient.
func (t *Transport) Send(ctx domain.Context, tpl domain.NotificationTemplate, evtCtx map[string]string) error {
	tr := otel.Tracer("notify.smtp")
	ctx, span := tr.Start(ctx, "Transport.Send")
	defer span.End()

	if len(t.Recipients) == 0 {
		return fmt.Errorf("notify.smtp send: %w: no recipients configured", domain.ErrInvalidArgument)
	}

	body, err := renderTemplate(tpl.Body, evtCtx)
	if err != nil {
		return fmt.Errorf("notify.smtp send: render body: %w", err)
	}
	subject, err := renderTemplate(tpl.Subject, evtCtx)
	if err != nil {
		return fmt.Errorf("notify.smtp send: render subject: %w", err)
	}

	msg := buildMessage(t.From, t.Recipients, subject, body)

	addr := net.JoinHostPort(t.Host, fmt.Sprintf("%d", t.Port))
	var auth smtp.Auth
	if t.Username != "" {
		auth = smtp.PlainAuth("", t.Username, t.Password, t.Host)
	}

	sendFn := t.dial
	if sendFn == nil {
		sendFn = t.sendLive
	}
	if err := sendFn(addr, auth, t.From, t.Recipients, msg); err != nil {
		obsctx.LoggerFromContext(ctx).Error("smtp send failed", slog.Any("error", err), slog.Int("recipients", len(t.Recipients)))
		return fmt.Errorf("notify.smtp send: %w", err)
	}
	return nil
}

func (t *Transport) sendLive(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	if !t.UseTLS {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	return sendMailTLS(addr, t.Host, auth, from, to, msg)
}

// sendMailTLS mirrors smtp.SendMail but establishes the initial connection
// over TLS, for relays that require implicit TLS rather than STARTTLS.
func sendMailTLS(addr, serverName string, auth smtp.Auth, from string, to []string, msg []byte) error {
	conn, err := tls.Dial("tcp", addr, &tls.Config{ServerName: serverName})
	if err != nil {
		return fmt.Errorf("dial tls: %w", err)
	}
	defer conn.Close()

	c, err := smtp.NewClient(conn, serverName)
	if err != nil {
		return fmt.Errorf("new client: %w", err)
	}
	defer c.Close()

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close body: %w", err)
	}
	return c.Quit()
}

func buildMessage(from string, to []string, subject, body string) []byte {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", from)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n")
	buf.WriteString(body)
	return buf.Bytes()
}

func renderTemplate(text string, ctx map[string]string) (string, error) {
	tmpl, err := template.New("notify").Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, ctx); err != nil {
		return "", err
	}
	return buf.String(), nil
}
