package auth

import (
	"errors"
	"testing"
	"time"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)

	token, expires, err := issuer.GenerateUserToken("user-456")
	if err != nil {
		t.Fatalf("GenerateUserToken failed: %v", err)
	}
	if time.Until(expires) < 59*time.Minute {
		t.Errorf("Unexpected expiry %v", expires)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.UserID != "user-456" || claims.Role != RoleUser {
		t.Errorf("Unexpected claims %+v", claims)
	}
}

func TestIssuer_Rejects(t *testing.T) {
	issuer := NewIssuer("test-secret", time.Hour)
	other := NewIssuer("other-secret", time.Hour)
	expired := NewIssuer("test-secret", -time.Minute)

	foreign, _, _ := other.GenerateUserToken("u1")
	stale, _, _ := expired.GenerateUserToken("u1")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"empty", "", ErrMissingToken},
		{"garbage", "not.a.token", ErrInvalidToken},
		{"wrong secret", foreign, ErrInvalidToken},
		{"expired", stale, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := issuer.ValidateToken(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, err)
			}
		})
	}

	if _, _, err := issuer.GenerateUserToken(""); err == nil {
		t.Error("Expected error for empty user id")
	}
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":  "abc",
		"bearer  xyz": "xyz",
		"Basic abc":   "",
		"Bearer ":     "",
		"":            "",
	}
	for header, want := range tests {
		if got := BearerToken(header); got != want {
			t.Errorf("BearerToken(%q) = %q, want %q", header, got, want)
		}
	}
}
