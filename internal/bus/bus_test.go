package bus

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/crewforge/engine/internal/domain"
)

func newTestBus(t *testing.T, opts ...Option) *Bus {
	t.Helper()
	b := New(opts...)
	b.Register("orchestrator")
	b.Register("analyst")
	b.Register("architect")
	return b
}

func mustMessage(t *testing.T, from, to string, kind domain.Kind, content domain.Content) domain.Message {
	t.Helper()
	msg, err := domain.NewMessage(from, to, kind, content)
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	return msg
}

func TestBus_FIFO(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	m1 := mustMessage(t, "orchestrator", "analyst", domain.KindStatus, domain.Content{"status": "one"})
	m2 := mustMessage(t, "orchestrator", "analyst", domain.KindStatus, domain.Content{"status": "two"})

	if err := b.Send(m1); err != nil {
		t.Fatalf("Send m1: %v", err)
	}
	if err := b.Send(m2); err != nil {
		t.Fatalf("Send m2: %v", err)
	}

	got1, err := b.Receive(ctx, "analyst")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	got2, err := b.Receive(ctx, "analyst")
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}

	if got1.ID != m1.ID || got2.ID != m2.ID {
		t.Errorf("delivery order = %q, %q; want m1 then m2", got1.Content.String("status"), got2.Content.String("status"))
	}
}

func TestBus_UnknownRecipient(t *testing.T) {
	b := newTestBus(t)
	msg := mustMessage(t, "orchestrator", "analyst", domain.KindStatus, nil)
	msg.To = "nobody"

	err := b.Send(msg)
	if err == nil {
		t.Fatal("expected error sending to unregistered recipient, got nil")
	}
	ee, ok := err.(*domain.EngineError)
	if !ok || ee.Code != domain.ErrUnknownRecipient.Code {
		t.Errorf("error = %v, want ErrUnknownRecipient", err)
	}
}

func TestBus_QueueFull(t *testing.T) {
	b := New(WithQueueDepth(2))
	b.Register("analyst")

	for i := 0; i < 2; i++ {
		msg := mustMessage(t, "orchestrator", "analyst", domain.KindStatus, nil)
		if err := b.Send(msg); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}

	msg := mustMessage(t, "orchestrator", "analyst", domain.KindStatus, nil)
	err := b.Send(msg)
	if err == nil {
		t.Fatal("expected queue full error, got nil")
	}
	ee, ok := err.(*domain.EngineError)
	if !ok || ee.Code != domain.ErrQueueFull.Code {
		t.Errorf("error = %v, want ErrQueueFull", err)
	}
}

func TestBus_BroadcastExcludesSender(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	msg := mustMessage(t, "orchestrator", "broadcast", domain.KindStatus, domain.Content{"status": "state_change"})
	b.Broadcast(msg)

	for _, name := range []string{"analyst", "architect"} {
		got, err := b.Receive(ctx, name)
		if err != nil {
			t.Fatalf("Receive %s: %v", name, err)
		}
		if got.To != name {
			t.Errorf("broadcast copy To = %q, want %q", got.To, name)
		}
	}

	// The sender's own queue must stay empty.
	if depth := b.Stats().QueueDepths["orchestrator"]; depth != 0 {
		t.Errorf("orchestrator queue depth = %d after broadcast, want 0", depth)
	}
}

func TestBus_ReceiveSuspendsUntilSend(t *testing.T) {
	b := newTestBus(t)
	ctx := context.Background()

	done := make(chan domain.Message, 1)
	go func() {
		msg, err := b.Receive(ctx, "analyst")
		if err != nil {
			return
		}
		done <- msg
	}()

	time.Sleep(10 * time.Millisecond)
	sent := mustMessage(t, "orchestrator", "analyst", domain.KindStatus, nil)
	if err := b.Send(sent); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case got := <-done:
		if got.ID != sent.ID {
			t.Errorf("received %q, want %q", got.ID, sent.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Send")
	}
}

func TestBus_ReceiveContextCancel(t *testing.T) {
	b := newTestBus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := b.Receive(ctx, "analyst")
	if err != context.Canceled {
		t.Errorf("Receive on cancelled context = %v, want context.Canceled", err)
	}
}

func TestBus_HistoryRing(t *testing.T) {
	b := New(WithHistorySize(3))
	b.Register("analyst")

	for i := 0; i < 5; i++ {
		msg := mustMessage(t, "orchestrator", "analyst", domain.KindStatus,
			domain.Content{"status": fmt.Sprintf("m%d", i)})
		if err := b.Send(msg); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
		// Drain so the bounded queue never fills.
		if _, err := b.Receive(context.Background(), "analyst"); err != nil {
			t.Fatalf("Receive %d: %v", i, err)
		}
	}

	hist := b.History(0)
	if len(hist) != 3 {
		t.Fatalf("history length = %d, want 3 (oldest evicted)", len(hist))
	}
	want := []string{"m2", "m3", "m4"}
	for i, m := range hist {
		if m.Content.String("status") != want[i] {
			t.Errorf("history[%d] = %q, want %q", i, m.Content.String("status"), want[i])
		}
	}

	limited := b.History(2)
	if len(limited) != 2 || limited[0].Content.String("status") != "m3" {
		t.Errorf("History(2) = %v entries starting %q, want 2 starting m3",
			len(limited), limited[0].Content.String("status"))
	}
}

func TestBus_Stats(t *testing.T) {
	b := newTestBus(t)

	for i := 0; i < 3; i++ {
		msg := mustMessage(t, "orchestrator", "analyst", domain.KindStatus, nil)
		if err := b.Send(msg); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if _, err := b.Receive(context.Background(), "analyst"); err != nil {
		t.Fatalf("Receive: %v", err)
	}

	s := b.Stats()
	if s.TotalSent != 3 {
		t.Errorf("TotalSent = %d, want 3", s.TotalSent)
	}
	if s.TotalDelivered != 1 {
		t.Errorf("TotalDelivered = %d, want 1", s.TotalDelivered)
	}
	if s.QueueDepths["analyst"] != 2 {
		t.Errorf("analyst depth = %d, want 2", s.QueueDepths["analyst"])
	}
	if s.ByKind["status"] != 3 {
		t.Errorf("ByKind[status] = %d, want 3", s.ByKind["status"])
	}
	if s.BySender["orchestrator"] != 3 {
		t.Errorf("BySender[orchestrator] = %d, want 3", s.BySender["orchestrator"])
	}
}
