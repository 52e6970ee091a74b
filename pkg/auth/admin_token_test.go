package auth

import (
	"testing"
	"time"
)

func TestAdminTokenRoundTrip(t *testing.T) {
	manager := NewAdminTokenManager([]byte("test-secret"), time.Hour)

	token, err := manager.GenerateAdminToken("operator")
	if err != nil {
		t.Fatalf("GenerateAdminToken error: %v", err)
	}

	claims, err := manager.ValidateAdminToken(token)
	if err != nil {
		t.Fatalf("ValidateAdminToken error: %v", err)
	}
	if claims.Subject != "operator" {
		t.Fatalf("expected subject operator, got %q", claims.Subject)
	}
	if !claims.HasScope("sync") {
		t.Fatalf("expected sync scope")
	}
	if claims.HasScope("admin") {
		t.Fatalf("did not expect admin scope")
	}
}

func TestAdminTokenWrongKeyRejected(t *testing.T) {
	manager := NewAdminTokenManager([]byte("test-secret"), time.Hour)
	other := NewAdminTokenManager([]byte("other-secret"), time.Hour)

	token, err := manager.GenerateAdminToken("operator")
	if err != nil {
		t.Fatalf("GenerateAdminToken error: %v", err)
	}

	if _, err := other.ValidateAdminToken(token); err == nil {
		t.Fatalf("expected validation to fail with wrong key")
	}
}
