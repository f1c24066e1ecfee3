package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestMemoryRevoke_and_IsRevoked(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()
	ctx := context.Background()

	jti := "token-abc-123"
	store.Revoke(ctx, jti, "user-1", time.Now().Add(1*time.Hour))

	revoked, err := store.IsRevoked(ctx, jti)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !revoked {
		t.Errorf("expected JTI %q to be revoked", jti)
	}

	revoked, _ = store.IsRevoked(ctx, "unknown-jti")
	if revoked {
		t.Error("expected unknown JTI to not be revoked")
	}
}

func TestMemoryRevokedForUser(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()
	ctx := context.Background()

	store.Revoke(ctx, "jti-1", "user-42", time.Now().Add(1*time.Hour))
	store.Revoke(ctx, "jti-2", "user-42", time.Now().Add(1*time.Hour))
	store.Revoke(ctx, "jti-3", "user-99", time.Now().Add(1*time.Hour))

	if got := store.RevokedForUser("user-42"); len(got) != 2 {
		t.Errorf("expected 2 JTIs for user-42, got %v", got)
	}
	if store.Count() != 3 {
		t.Errorf("expected 3 entries, got %d", store.Count())
	}
}

func TestMemoryCleanup_RemovesExpiredEntries(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()
	ctx := context.Background()

	store.Revoke(ctx, "expired-jti", "user-1", time.Now().Add(-1*time.Second))
	store.Revoke(ctx, "active-jti", "user-2", time.Now().Add(1*time.Hour))

	store.cleanup(time.Now())

	if store.Count() != 1 {
		t.Errorf("expected 1 entry after cleanup, got %d", store.Count())
	}
	if revoked, _ := store.IsRevoked(ctx, "expired-jti"); revoked {
		t.Error("expected expired JTI to be cleaned up")
	}
	if got := store.RevokedForUser("user-1"); len(got) != 0 {
		t.Errorf("expected user-1 mapping to be cleaned up, found %v", got)
	}
}

func TestMemoryConcurrentAccess(t *testing.T) {
	store := NewMemoryRevocationStore()
	defer store.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	const goroutines = 50
	wg.Add(goroutines * 2)

	for i := 0; i < goroutines; i++ {
		jti := "jti-" + string(rune('A'+i%26)) + time.Now().Format("150405.000000000")
		go func(jti string) {
			defer wg.Done()
			store.Revoke(ctx, jti, "", time.Now().Add(1*time.Hour))
		}(jti)
		go func(jti string) {
			defer wg.Done()
			store.IsRevoked(ctx, jti)
		}(jti)
	}
	wg.Wait()

	if store.Count() == 0 {
		t.Error("expected some entries after concurrent writes")
	}
}

func TestMemoryClose_Idempotent(t *testing.T) {
	store := NewMemoryRevocationStore()
	store.Close()
	store.Close()

	store.Revoke(context.Background(), "jti-after-close", "", time.Now().Add(1*time.Hour))
	if revoked, _ := store.IsRevoked(context.Background(), "jti-after-close"); !revoked {
		t.Error("expected store to still work after Close")
	}
}

func newTestRedisStore(t *testing.T) (*RedisRevocationStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisRevocationStoreFromClient(client), mr
}

func TestRedisRevoke_and_IsRevoked(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	if err := store.Revoke(ctx, "jti-1", "user-1", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}

	revoked, err := store.IsRevoked(ctx, "jti-1")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if !revoked {
		t.Error("expected jti-1 to be revoked")
	}

	revoked, err = store.IsRevoked(ctx, "jti-2")
	if err != nil {
		t.Fatalf("IsRevoked: %v", err)
	}
	if revoked {
		t.Error("expected jti-2 to not be revoked")
	}

	if ttl := mr.TTL(revokedKeyPrefix + "jti-1"); ttl <= 0 || ttl > time.Hour {
		t.Errorf("expected ttl within token lifetime, got %s", ttl)
	}
}

func TestRedisRevoke_ExpiresWithToken(t *testing.T) {
	store, mr := newTestRedisStore(t)
	ctx := context.Background()

	store.Revoke(ctx, "jti-1", "user-1", time.Now().Add(time.Minute))
	mr.FastForward(2 * time.Minute)

	if revoked, _ := store.IsRevoked(ctx, "jti-1"); revoked {
		t.Error("expected revocation to expire with the token")
	}
}

func TestRedisRevoke_AlreadyExpiredIsNoop(t *testing.T) {
	store, mr := newTestRedisStore(t)

	if err := store.Revoke(context.Background(), "jti-old", "user-1", time.Now().Add(-time.Minute)); err != nil {
		t.Fatalf("Revoke: %v", err)
	}
	if mr.Exists(revokedKeyPrefix + "jti-old") {
		t.Error("expected no key for an already expired token")
	}
}
