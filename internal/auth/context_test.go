// ABOUTME: Unit tests for authentication context functions
// ABOUTME: Tests context propagation helpers

package auth

import (
	"context"
	"testing"
)

func TestWithAuth_FromContext(t *testing.T) {
	ctx := WithAuth(context.Background(), &AuthContext{Username: "richard"})

	got := FromContext(ctx)
	if got == nil || got.Username != "richard" {
		t.Fatalf("FromContext() = %+v", got)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %+v, want nil", got)
	}
}
