package security

import "golang.org/x/crypto/bcrypt"

const bcryptCost = 12

// PasswordHasher is the one-way hash capability credential flows depend on.
// Verify must not leak timing information about the stored hash.
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain string, hash string) bool
}

type BcryptHasher struct{}

func (BcryptHasher) Hash(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func (BcryptHasher) Verify(plain string, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
