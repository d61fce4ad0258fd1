package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// dummyHash is a bcrypt hash of an unguessable throwaway value. Authenticate
// compares against it when the email does not resolve, so the lookup-miss
// path costs the same as a real password check.
const dummyHash = "$2a$12$8vPGwzA3Yqkg5fF8rKQxOe7sJmI1hQnTtF0mHf0dVxZDkXIY3S5iG"

// HashPassword hashes a plaintext password with bcrypt at the given cost.
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// burnPasswordCheck performs a bcrypt comparison that always fails, keeping
// the timing of unknown-email logins in line with wrong-password logins.
func burnPasswordCheck(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}
