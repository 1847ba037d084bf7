package httputil

import (
	"context"
	"testing"
)

func TestGenerateNonce(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		nonce := GenerateNonce()
		// 16 bytes base64url without padding.
		if len(nonce) != 22 {
			t.Fatalf("expected 22-character nonce, got %d: %q", len(nonce), nonce)
		}
		if seen[nonce] {
			t.Fatalf("nonce %q repeated", nonce)
		}
		seen[nonce] = true
	}
}

func TestNonceFromContext(t *testing.T) {
	if got := NonceFromContext(context.Background()); got != "" {
		t.Errorf("expected empty nonce without middleware, got %q", got)
	}
	ctx := ContextWithNonce(context.Background(), "abc")
	if got := NonceFromContext(ctx); got != "abc" {
		t.Errorf("expected %q, got %q", "abc", got)
	}
}
