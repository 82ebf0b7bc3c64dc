package identity

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/matheus3301/chitchat/internal/auth"
)

var (
	ErrCodeMismatch    = errors.New("code does not match")
	ErrCodeExpired     = errors.New("code expired")
	ErrTooManyAttempts = errors.New("too many attempts")
	ErrNoVerification  = errors.New("no verification pending for this number")
)

// phoneNamespace derives stable identity ids from phone numbers.
var phoneNamespace = uuid.MustParse("0d5f8c3e-7a7e-4d0b-9c55-3f0f4a1b2c6d")

// PhoneIdentityID returns the identity id for an E.164 number.
func PhoneIdentityID(e164 string) string {
	return "phone|" + uuid.NewSHA1(phoneNamespace, []byte(e164)).String()
}

// CodeSender delivers verification codes.
type CodeSender interface {
	SendCode(ctx context.Context, e164, code string) error
}

// LogSender writes codes to the log. For development only.
type LogSender struct {
	Logger *zap.Logger
}

// SendCode implements CodeSender.
func (s LogSender) SendCode(_ context.Context, e164, code string) error {
	if s.Logger == nil {
		return errors.New("log sender has no logger")
	}
	s.Logger.Info("verification code", zap.String("phone", e164), zap.String("code", code))
	return nil
}

type pendingCode struct {
	hash      []byte
	expiresAt time.Time
	attempts  int
}

// PhoneVerifier issues and checks one-time phone codes. A code is discarded
// after a success, on expiry, or once maxAttempts wrong codes were tried.
type PhoneVerifier struct {
	sender      CodeSender
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
	newCode     func() (string, error)

	mu      sync.Mutex
	pending map[string]*pendingCode
}

// NewPhoneVerifier creates a verifier.
func NewPhoneVerifier(sender CodeSender, ttl time.Duration, maxAttempts int) *PhoneVerifier {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &PhoneVerifier{
		sender:      sender,
		ttl:         ttl,
		maxAttempts: maxAttempts,
		now:         time.Now,
		newCode:     randomCode,
		pending:     make(map[string]*pendingCode),
	}
}

// Begin sends a fresh code to e164, replacing any earlier one.
func (v *PhoneVerifier) Begin(ctx context.Context, e164 string) error {
	code, err := v.newCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	v.mu.Lock()
	v.pending[e164] = &pendingCode{hash: hash, expiresAt: v.now().Add(v.ttl)}
	v.mu.Unlock()

	if err := v.sender.SendCode(ctx, e164, code); err != nil {
		v.mu.Lock()
		delete(v.pending, e164)
		v.mu.Unlock()
		return fmt.Errorf("send code: %w", err)
	}
	return nil
}

// Confirm checks code for e164 and returns the phone identity on success.
func (v *PhoneVerifier) Confirm(_ context.Context, e164, code string) (*auth.Identity, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.pending[e164]
	if !ok {
		return nil, ErrNoVerification
	}
	if v.now().After(p.expiresAt) {
		delete(v.pending, e164)
		return nil, ErrCodeExpired
	}
	if err := bcrypt.CompareHashAndPassword(p.hash, []byte(code)); err != nil {
		p.attempts++
		if p.attempts >= v.maxAttempts {
			delete(v.pending, e164)
			return nil, ErrTooManyAttempts
		}
		return nil, ErrCodeMismatch
	}
	delete(v.pending, e164)

	return &auth.Identity{
		ID:          PhoneIdentityID(e164),
		DisplayName: e164,
		PhoneNumber: e164,
	}, nil
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
