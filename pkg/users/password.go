package users

import (
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// BcryptCost is the cost factor for bcrypt hashing.
const BcryptCost = 12

// unusablePasswordPrefix marks accounts created without a password. The
// prefix can never appear in a bcrypt hash, so such accounts can never
// authenticate.
const unusablePasswordPrefix = "!"

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", errors.WithStack(err)
	}
	return string(hash), nil
}

// CheckPassword compares a password with a hash. Unusable-password accounts
// always fail the check.
func CheckPassword(password, hash string) bool {
	if strings.HasPrefix(hash, unusablePasswordPrefix) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// unusablePassword returns a sentinel hash for accounts created without a
// password.
func unusablePassword() string {
	return unusablePasswordPrefix + uuid.NewString()
}
