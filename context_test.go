package authcore

import (
	"context"
	"testing"
)

func TestClientIPContext(t *testing.T) {
	if got := clientIPFromContext(context.Background()); got != "" {
		t.Fatalf("expected no IP on a bare context, got %q", got)
	}

	ctx := WithClientIP(context.Background(), "10.0.0.1")
	if got := clientIPFromContext(ctx); got != "10.0.0.1" {
		t.Fatalf("expected the attached IP, got %q", got)
	}
}
