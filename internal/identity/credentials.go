package identity

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/matheus3301/chitchat/internal/auth"
)

// Claims is the persisted form of a signed-in identity.
type Claims struct {
	jwt.RegisteredClaims
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Picture string `json:"picture,omitempty"`
	Phone   string `json:"phone_number,omitempty"`
}

// CredentialStore keeps the signed-in identity as an HS256 token on disk.
type CredentialStore struct {
	path   string
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewCredentialStore stores credentials at path, signed with secret.
// A zero ttl means the credentials never expire.
func NewCredentialStore(path string, secret []byte, ttl time.Duration) (*CredentialStore, error) {
	if len(secret) == 0 {
		return nil, errors.New("credential store: empty signing secret")
	}
	return &CredentialStore{path: path, secret: secret, ttl: ttl, now: time.Now}, nil
}

// Save persists id.
func (s *CredentialStore) Save(id auth.Identity) error {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.ID,
			IssuedAt: jwt.NewNumericDate(now),
			Issuer:   "chitchatd",
		},
		Name:    id.DisplayName,
		Email:   id.Email,
		Picture: id.AvatarURL,
		Phone:   id.PhoneNumber,
	}
	if s.ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.ttl))
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return fmt.Errorf("sign credentials: %w", err)
	}
	if err := os.WriteFile(s.path, []byte(signed), 0600); err != nil {
		return fmt.Errorf("write credentials: %w", err)
	}
	return nil
}

// Load returns the persisted identity, or nil if there is none. Tokens that
// are expired or fail verification are removed and reported as nil.
func (s *CredentialStore) Load() (*auth.Identity, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(strings.TrimSpace(string(data)), claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid || claims.Subject == "" {
		_ = s.Clear()
		return nil, nil
	}

	return &auth.Identity{
		ID:          claims.Subject,
		DisplayName: claims.Name,
		Email:       claims.Email,
		AvatarURL:   claims.Picture,
		PhoneNumber: claims.Phone,
	}, nil
}

// Clear removes the persisted identity.
func (s *CredentialStore) Clear() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove credentials: %w", err)
	}
	return nil
}
