package auth

import (
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/bcrypt"

	"github.com/devmesh/backend/internal/models"
)

// MaxPasswordBytes is the longest password bcrypt accepts.
const MaxPasswordBytes = 72

// ErrMalformedHash is returned by Verify when the stored hash was not produced by Hash.
var ErrMalformedHash = errors.New("malformed password hash")

// Credentials hashes and verifies account passwords.
type Credentials interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) (bool, error)
	// Burn spends one comparison without a stored hash, so an unknown
	// username costs the same as a wrong password.
	Burn(plaintext string)
}

// BcryptCredentials implements Credentials with bcrypt.
type BcryptCredentials struct {
	cost int

	dummyOnce sync.Once
	dummy     []byte
}

// NewCredentials returns a bcrypt-backed Credentials. A cost outside bcrypt's
// accepted range falls back to bcrypt.DefaultCost.
func NewCredentials(cost int) *BcryptCredentials {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &BcryptCredentials{cost: cost}
}

var _ Credentials = (*BcryptCredentials)(nil)

// Hash returns a salted bcrypt hash. A password longer than MaxPasswordBytes
// is malformed input.
func (c *BcryptCredentials) Hash(plaintext string) (string, error) {
	if len(plaintext) > MaxPasswordBytes {
		return "", fmt.Errorf("%w: password exceeds %d bytes: %w", models.ErrInputMalformed, MaxPasswordBytes, bcrypt.ErrPasswordTooLong)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), c.cost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return "", fmt.Errorf("%w: %w", models.ErrInputMalformed, err)
	}
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// Verify reports whether plaintext matches hash. A mismatch is (false, nil);
// only an unparseable hash is an error.
func (c *BcryptCredentials) Verify(plaintext, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
}

func (c *BcryptCredentials) Burn(plaintext string) {
	c.dummyOnce.Do(func() {
		c.dummy, _ = bcrypt.GenerateFromPassword([]byte("unused-account-placeholder"), c.cost)
	})
	_ = bcrypt.CompareHashAndPassword(c.dummy, []byte(plaintext))
}
