package password

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"

	"github.com/smallbiznis/parkvoucher/internal/config"
	"go.uber.org/zap"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/bcrypt"
)

const developmentPassword = "admin123"

// Verifier checks a candidate password against the configured admin secret.
type Verifier interface {
	Verify(password string) bool
}

type hashVerifier struct {
	encoded string
}

func (v hashVerifier) Verify(password string) bool {
	return Verify(password, v.encoded)
}

// NewVerifier uses ADMIN_PASSWORD_HASH when present and hashes ADMIN_PASSWORD
// otherwise. Outside production a development password is used as a last
// resort.
func NewVerifier(cfg config.Config, log *zap.Logger) (Verifier, error) {
	log = log.Named("auth.password")
	if hash := strings.TrimSpace(cfg.AdminPasswordHash); hash != "" {
		if !isBcrypt(hash) && !isArgon2id(hash) {
			return nil, errors.New("ADMIN_PASSWORD_HASH must be a bcrypt or argon2id hash")
		}
		return hashVerifier{encoded: hash}, nil
	}

	plain := cfg.AdminPassword
	if plain == "" {
		if cfg.IsProduction() {
			return nil, errors.New("ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required in production")
		}
		log.Warn("ADMIN_PASSWORD not set, using development password")
		plain = developmentPassword
	}
	hash, err := Hash(plain)
	if err != nil {
		return nil, err
	}
	return hashVerifier{encoded: hash}, nil
}

// Hash returns a bcrypt hash of password.
func Hash(password string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify checks password against a bcrypt or Argon2id encoded hash.
func Verify(password, encoded string) bool {
	switch {
	case isBcrypt(encoded):
		return bcrypt.CompareHashAndPassword([]byte(encoded), []byte(password)) == nil
	case isArgon2id(encoded):
		return verifyArgon2id(password, encoded)
	default:
		return false
	}
}

func isBcrypt(encoded string) bool {
	return strings.HasPrefix(encoded, "$2a$") ||
		strings.HasPrefix(encoded, "$2b$") ||
		strings.HasPrefix(encoded, "$2y$")
}

func isArgon2id(encoded string) bool {
	return strings.HasPrefix(encoded, "$argon2id$")
}

func verifyArgon2id(password, encoded string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" || parts[2] != "v=19" {
		return false
	}

	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return false
	}
	m, ok := strings.CutPrefix(params[0], "m=")
	if !ok {
		return false
	}
	t, ok := strings.CutPrefix(params[1], "t=")
	if !ok {
		return false
	}
	p, ok := strings.CutPrefix(params[2], "p=")
	if !ok {
		return false
	}

	memory, err := strconv.ParseUint(m, 10, 32)
	if err != nil {
		return false
	}
	timeCost, err := strconv.ParseUint(t, 10, 32)
	if err != nil {
		return false
	}
	threads, err := strconv.ParseUint(p, 10, 8)
	if err != nil {
		return false
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false
	}
	hash, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return false
	}

	check := argon2.IDKey([]byte(password), salt, uint32(timeCost), uint32(memory), uint8(threads), uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, check) == 1
}
