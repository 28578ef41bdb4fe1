package service

import (
	"crypto/sha256"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidAPIKey = errors.New("invalid api key")

// AuthService checks API keys against a bcrypt hash. With no hash
// configured every request is allowed.
type AuthService struct {
	hash []byte

	mu       sync.Mutex
	verified map[[sha256.Size]byte]bool
}

func NewAuthService(apiKeyHash string) *AuthService {
	return &AuthService{
		hash:     []byte(apiKeyHash),
		verified: make(map[[sha256.Size]byte]bool),
	}
}

func (s *AuthService) Enabled() bool {
	return len(s.hash) > 0
}

// ValidateAPIKey compares key with the configured hash. Keys that matched
// once are remembered by digest so bcrypt runs once per key.
func (s *AuthService) ValidateAPIKey(key string) error {
	if !s.Enabled() {
		return nil
	}
	if key == "" {
		return ErrInvalidAPIKey
	}

	digest := sha256.Sum256([]byte(key))
	s.mu.Lock()
	ok := s.verified[digest]
	s.mu.Unlock()
	if ok {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(s.hash, []byte(key)); err != nil {
		return ErrInvalidAPIKey
	}

	s.mu.Lock()
	s.verified[digest] = true
	s.mu.Unlock()
	return nil
}

// HashAPIKey produces the value to configure as API_KEY_HASH.
func HashAPIKey(key string) (string, error) {
	if len(key) < 16 {
		return "", errors.New("api key must be at least 16 characters")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
