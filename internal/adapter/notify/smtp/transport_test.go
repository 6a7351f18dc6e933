package smtp

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/briskprint/printservice/internal/domain"
)

func TestTransport_Send_NoRecipients(t *testing.T) {
	tr := New("smtp.example.com", 587, "", "", "alerts@example.com", false, nil)
	err := tr.Send(context.Background(), domain.NotificationTemplate{Subject: "s", Body: "b"}, nil)
	if !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestTransport_Send_RendersTemplateAndDials(t *testing.T) {
	tr := New("smtp.example.com", 587, "user", "pass", "alerts@example.com", false, []string{"ops@example.com"})

	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	tr.dial = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	tpl := domain.NotificationTemplate{
		Subject: "Printer offline: {{.printer}}",
		Body:    "The printer {{.printer}} went offline at {{.time}}.",
	}
	err := tr.Send(context.Background(), tpl, map[string]string{"printer": "kitchen-1", "time": "12:00"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAddr != "smtp.example.com:587" {
		t.Fatalf("unexpected addr: %s", gotAddr)
	}
	if gotFrom != "alerts@example.com" {
		t.Fatalf("unexpected from: %s", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Fatalf("unexpected recipients: %v", gotTo)
	}
	msg := string(gotMsg)
	if !strings.Contains(msg, "Subject: Printer offline: kitchen-1") {
		t.Fatalf("subject not rendered: %s", msg)
	}
	if !strings.Contains(msg, "The printer kitchen-1 went offline at 12:00.") {
		t.Fatalf("body not rendered: %s", msg)
	}
}

func TestTransport_Send_DialErrorIsWrapped(t *testing.T) {
	tr := New("smtp.example.com", 587, "", "", "alerts@example.com", false, []string{"ops@example.com"})
	boom := errors.New("connection refused")
	tr.dial = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return boom
	}
	err := tr.Send(context.Background(), domain.NotificationTemplate{Subject: "s", Body: "b"}, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped dial error, got %v", err)
	}
}
