package password

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"testing"

	"github.com/smallbiznis/parkvoucher/internal/config"
	"go.uber.org/zap/zaptest"
	"golang.org/x/crypto/argon2"
)

func TestBcryptRoundTrip(t *testing.T) {
	hash, err := Hash("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !Verify("s3cret", hash) {
		t.Fatal("expected password to verify")
	}
	if Verify("wrong", hash) {
		t.Fatal("expected wrong password to fail")
	}
}

func TestArgon2idHashesVerify(t *testing.T) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		t.Fatalf("salt: %v", err)
	}
	key := argon2.IDKey([]byte("s3cret"), salt, 1, 64*1024, 4, 32)
	encoded := fmt.Sprintf("$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s", 64*1024, 1, 4,
		base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(key))

	if !Verify("s3cret", encoded) {
		t.Fatal("expected argon2id hash to verify")
	}
	if Verify("nope", encoded) {
		t.Fatal("expected wrong password to fail")
	}
	if Verify("s3cret", "$argon2id$v=19$broken") {
		t.Fatal("expected malformed hash to fail")
	}
}

func TestNewVerifier(t *testing.T) {
	log := zaptest.NewLogger(t)

	v, err := NewVerifier(config.Config{AdminPassword: "from-env"}, log)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	if !v.Verify("from-env") || v.Verify("admin123") {
		t.Fatal("expected ADMIN_PASSWORD to be used")
	}

	hash, _ := Hash("hashed")
	v, err = NewVerifier(config.Config{AdminPassword: "ignored", AdminPasswordHash: hash}, log)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	if !v.Verify("hashed") || v.Verify("ignored") {
		t.Fatal("expected ADMIN_PASSWORD_HASH to take precedence")
	}

	if _, err := NewVerifier(config.Config{AdminPasswordHash: "plaintext"}, log); err == nil {
		t.Fatal("expected unrecognised hash to be rejected")
	}

	v, err = NewVerifier(config.Config{Environment: "development"}, log)
	if err != nil {
		t.Fatalf("verifier: %v", err)
	}
	if !v.Verify(developmentPassword) {
		t.Fatal("expected development password outside production")
	}

	if _, err := NewVerifier(config.Config{Environment: "production"}, log); err == nil {
		t.Fatal("expected production without a password to fail")
	}
}
