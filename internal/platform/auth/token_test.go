package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestTokenManager_RoundTrip(t *testing.T) {
	mgr := NewTokenManager(testSigningKey, "clinic-api", 72*time.Hour)
	id := &Identity{ID: uuid.New(), Email: "a@x.com", Name: "Ana", Role: RoleAdmin}

	token, issued, err := mgr.Issue(id)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	claims, err := mgr.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != id.ID.String() {
		t.Errorf("expected subject %s, got %s", id.ID, claims.Subject)
	}
	if claims.Email != "a@x.com" || claims.Role != RoleAdmin || claims.Name != "Ana" {
		t.Errorf("unexpected claims: %+v", claims)
	}
	if claims.Issuer != "clinic-api" {
		t.Errorf("expected issuer clinic-api, got %s", claims.Issuer)
	}
	if claims.ID == "" || claims.ID != issued.ID {
		t.Errorf("expected jti %q, got %q", issued.ID, claims.ID)
	}
	ttl := claims.ExpiresAt.Sub(claims.IssuedAt.Time)
	if ttl != 72*time.Hour {
		t.Errorf("expected 72h lifetime, got %s", ttl)
	}
}

func TestTokenManager_WrongKey(t *testing.T) {
	id := &Identity{ID: uuid.New(), Role: RoleDoctor}
	token, _, _ := NewTokenManager([]byte("another-key-another-key-another-k"), "clinic-api", time.Hour).Issue(id)

	if _, err := NewTokenManager(testSigningKey, "clinic-api", time.Hour).Parse(token); err == nil {
		t.Error("expected signature verification to fail")
	}
}

func TestTokenManager_Expired(t *testing.T) {
	mgr := NewTokenManager(testSigningKey, "clinic-api", time.Hour)
	mgr.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	token, _, _ := mgr.Issue(&Identity{ID: uuid.New(), Role: RoleDoctor})

	mgr.now = time.Now
	if _, err := mgr.Parse(token); err == nil {
		t.Error("expected expired token to be rejected")
	}
}

func TestResolveSigningKey(t *testing.T) {
	key, generated, err := ResolveSigningKey("configured-secret")
	if err != nil || generated || string(key) != "configured-secret" {
		t.Errorf("expected configured key, got %q generated=%v err=%v", key, generated, err)
	}

	key, generated, err = ResolveSigningKey("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !generated || len(key) != 32 {
		t.Errorf("expected generated 32-byte key, got %d bytes generated=%v", len(key), generated)
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret1")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if hash == "secret1" {
		t.Fatal("hash must not equal the plaintext")
	}
	if !CheckPassword(hash, "secret1") {
		t.Error("expected correct password to match")
	}
	if CheckPassword(hash, "secret2") {
		t.Error("expected wrong password to fail")
	}
	if CheckPassword("", "secret1") {
		t.Error("expected empty hash to fail")
	}
}
