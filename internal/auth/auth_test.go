package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/hostwell/guildvault/internal/database"
)

func newTestStore(t *testing.T) *UserStore {
	t.Helper()

	db, err := database.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	if err := db.Migrate(); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserStore(db.DB)
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple", 10)
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}
	if err := VerifyPassword("correct horse battery staple", hash); err != nil {
		t.Errorf("valid password rejected: %v", err)
	}
	if err := VerifyPassword("wrong password", hash); err == nil {
		t.Error("wrong password accepted")
	}
}

func TestTokenPairRoundTrip(t *testing.T) {
	manager := NewJWTManager("test-secret-key-with-enough-entropy!", 15*time.Minute, 7*24*time.Hour)

	pair, tokenHash, err := manager.GenerateTokenPair(7, "admin")
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatal("empty tokens generated")
	}
	if manager.HashRefreshToken(pair.RefreshToken) != tokenHash {
		t.Error("refresh token hash mismatch")
	}

	claims, err := manager.ValidateAccessToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccessToken failed: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "admin" {
		t.Errorf("unexpected claims: %+v", claims)
	}
}

func TestValidateAccessTokenRejectsWrongKey(t *testing.T) {
	issuer := NewJWTManager("key-one-key-one-key-one-key-one!", time.Minute, time.Hour)
	verifier := NewJWTManager("key-two-key-two-key-two-key-two!", time.Minute, time.Hour)

	pair, _, err := issuer.GenerateTokenPair(1, "admin")
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}
	if _, err := verifier.ValidateAccessToken(pair.AccessToken); err == nil {
		t.Error("token signed with a different key accepted")
	}
}

func TestValidateAccessTokenRejectsExpired(t *testing.T) {
	manager := NewJWTManager("test-secret-key-with-enough-entropy!", -time.Minute, time.Hour)

	pair, _, err := manager.GenerateTokenPair(1, "admin")
	if err != nil {
		t.Fatalf("GenerateTokenPair failed: %v", err)
	}
	if _, err := manager.ValidateAccessToken(pair.AccessToken); err == nil {
		t.Error("expired token accepted")
	}
}

func TestUserStoreLifecycle(t *testing.T) {
	store := newTestStore(t)

	count, err := store.CountUsers()
	if err != nil {
		t.Fatalf("CountUsers failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty user table, got %d", count)
	}

	hash, _ := HashPassword("secret", 10)
	user, err := store.CreateUser("admin", hash)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.ID == 0 || user.Username != "admin" || !user.IsActive {
		t.Errorf("unexpected user: %+v", user)
	}

	loaded, err := store.GetUserByUsername("admin")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if loaded == nil || loaded.ID != user.ID {
		t.Errorf("lookup mismatch: %+v", loaded)
	}

	missing, err := store.GetUserByUsername("nobody")
	if err != nil {
		t.Fatalf("GetUserByUsername failed: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing user, got %+v", missing)
	}
}

func TestRefreshTokenConsumption(t *testing.T) {
	store := newTestStore(t)

	hash, _ := HashPassword("secret", 10)
	user, err := store.CreateUser("admin", hash)
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	if err := store.StoreRefreshToken("hash-valid", user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("StoreRefreshToken failed: %v", err)
	}

	userID, ok, err := store.ConsumeRefreshToken("hash-valid")
	if err != nil {
		t.Fatalf("ConsumeRefreshToken failed: %v", err)
	}
	if !ok || userID != user.ID {
		t.Fatalf("expected valid token for user %d, got %d/%v", user.ID, userID, ok)
	}

	// Tokens are single-use.
	_, ok, err = store.ConsumeRefreshToken("hash-valid")
	if err != nil {
		t.Fatalf("ConsumeRefreshToken failed: %v", err)
	}
	if ok {
		t.Error("refresh token accepted twice")
	}

	// Expired tokens are rejected and removed.
	if err := store.StoreRefreshToken("hash-expired", user.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("StoreRefreshToken failed: %v", err)
	}
	_, ok, err = store.ConsumeRefreshToken("hash-expired")
	if err != nil {
		t.Fatalf("ConsumeRefreshToken failed: %v", err)
	}
	if ok {
		t.Error("expired refresh token accepted")
	}
}
