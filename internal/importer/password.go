package importer

import (
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// PasswordHasher hashes a raw password for local storage. The importer owns
// the only call site, so every stored hash goes through exactly one path.
type PasswordHasher interface {
	Hash(password string) (string, error)
}

// PasswordVerifier checks a submitted password against a stored hash.
type PasswordVerifier interface {
	Verify(hash, password string) bool
}

// RawPasswordSetter marks a record type that intercepts password writes and
// hashes on its own. The importer hands such types the raw value so the
// password is never hashed twice.
type RawPasswordSetter interface {
	SetRawPassword(password string)
}

// BcryptHasher is the default PasswordHasher and PasswordVerifier
type BcryptHasher struct {
	Cost int
}

// Hash hashes a password with bcrypt
func (h BcryptHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}

// Verify reports whether password matches the stored bcrypt hash.
func (h BcryptHasher) Verify(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// placeholderPassword returns a random value stored when password sync is
// off. It only has to be unguessable; nobody ever types it.
func placeholderPassword() string {
	return "nologin-" + uuid.New().String() + uuid.New().String()
}
