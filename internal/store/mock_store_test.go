// ABOUTME: Tests for MockStore behavior that other packages rely on
// ABOUTME: History limits, injected failures, and copy-on-read semantics

package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockStore_HistoryLimit(t *testing.T) {
	m := NewMockStore()
	ctx := context.Background()
	base := time.Now()

	for i, content := range []string{"a", "b", "c"} {
		if err := m.SaveChatMessage(ctx, &ChatMessage{Role: RoleUser, Content: content, Timestamp: base.Add(time.Duration(i) * time.Second)}); err != nil {
			t.Fatalf("SaveChatMessage failed: %v", err)
		}
	}

	history, err := m.GetChatHistory(ctx, DefaultSessionKey, 2)
	if err != nil {
		t.Fatalf("GetChatHistory failed: %v", err)
	}
	if len(history) != 2 || history[0].Content != "b" || history[1].Content != "c" {
		t.Fatalf("unexpected history: %+v", history)
	}

	history[0].Content = "mutated"
	if m.Messages()[1].Content != "b" {
		t.Error("GetChatHistory should return copies")
	}
}

func TestMockStore_Fail(t *testing.T) {
	m := NewMockStore()
	boom := errors.New("disk full")
	m.Fail = func(op string) error {
		if op == "SaveChatMessage" {
			return boom
		}
		return nil
	}

	err := m.SaveChatMessage(context.Background(), &ChatMessage{Role: RoleUser, Content: "x"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected error, got %v", err)
	}
	if err := m.LogActivity(context.Background(), ActivityChatMessage, "ok", ""); err != nil {
		t.Fatalf("LogActivity should not fail: %v", err)
	}
}
