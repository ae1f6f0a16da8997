package reqid

import (
	"context"
	"testing"
)

func TestContextRoundTrip(t *testing.T) {
	ctx, id := NewContext(context.Background())
	if id == "" {
		t.Fatal("expected a non-empty generated id")
	}
	got, ok := FromContext(ctx)
	if !ok || got != id {
		t.Fatalf("expected %q from context, got %q ok=%v", id, got, ok)
	}
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("unexpected id in empty context")
	}
}

func TestWithID(t *testing.T) {
	ctx := WithID(context.Background(), "req-123")
	got, ok := FromContext(ctx)
	if !ok || got != "req-123" {
		t.Fatalf("expected req-123, got %q ok=%v", got, ok)
	}
}
