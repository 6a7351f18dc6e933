package printer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/briskprint/printservice/internal/domain"
)

func TestNetwork_Status_OfflineWithoutConnection(t *testing.T) {
	n := NewNetwork("127.0.0.1", 9100, time.Millisecond)
	st, err := n.Status(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if st.Value != domain.PrinterStatusOffline {
		t.Fatalf("expected offline, got %v", st.Value)
	}
}

func TestNetwork_Connect_UnreachableHostFails(t *testing.T) {
	n := NewNetwork("203.0.113.1", 9100, 50*time.Millisecond)
	err := n.Connect(context.Background())
	if !errors.Is(err, domain.ErrPrinterNotReady) {
		t.Fatalf("expected ErrPrinterNotReady, got %v", err)
	}
}

func TestNetwork_Disconnect_NoopWithoutConnection(t *testing.T) {
	n := NewNetwork("127.0.0.1", 9100, time.Millisecond)
	if err := n.Disconnect(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
