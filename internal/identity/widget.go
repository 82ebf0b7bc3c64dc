package identity

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/matheus3301/chitchat/internal/auth"
)

var (
	ErrChallengeUnknown = errors.New("challenge unknown or already used")
	ErrChallengeExpired = errors.New("challenge expired")
	ErrChallengeInvalid = errors.New("challenge proof invalid")
)

// Challenge is a proof-of-work puzzle: find a counter such that
// sha256(nonce ":" counter) starts with Bits zero bits.
type Challenge struct {
	Nonce    string
	Bits     int
	IssuedAt time.Time
}

// Guard issues challenges and accepts each solved one once.
type Guard struct {
	bits int
	ttl  time.Duration
	now  func() time.Time

	mu     sync.Mutex
	issued map[string]time.Time
}

// NewGuard creates a guard requiring the given number of leading zero bits.
func NewGuard(difficulty int, ttl time.Duration) *Guard {
	if difficulty < 0 {
		difficulty = 0
	}
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Guard{bits: difficulty, ttl: ttl, now: time.Now, issued: make(map[string]time.Time)}
}

// Issue creates a new challenge.
func (g *Guard) Issue() (Challenge, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return Challenge{}, fmt.Errorf("challenge nonce: %w", err)
	}
	c := Challenge{Nonce: hex.EncodeToString(b), Bits: g.bits, IssuedAt: g.now()}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.sweep()
	g.issued[c.Nonce] = c.IssuedAt
	return c, nil
}

// Verify checks a token produced by a Widget and consumes its challenge.
func (g *Guard) Verify(token string) error {
	nonce, counter, ok := strings.Cut(token, ":")
	if !ok || nonce == "" || counter == "" {
		return ErrChallengeInvalid
	}

	g.mu.Lock()
	issuedAt, known := g.issued[nonce]
	delete(g.issued, nonce)
	g.mu.Unlock()

	if !known {
		return ErrChallengeUnknown
	}
	if g.now().Sub(issuedAt) > g.ttl {
		return ErrChallengeExpired
	}
	if leadingZeroBits(nonce, counter) < g.bits {
		return ErrChallengeInvalid
	}
	return nil
}

func (g *Guard) sweep() {
	now := g.now()
	for n, at := range g.issued {
		if now.Sub(at) > g.ttl {
			delete(g.issued, n)
		}
	}
}

func leadingZeroBits(nonce, counter string) int {
	sum := sha256.Sum256([]byte(nonce + ":" + counter))
	n := 0
	for _, b := range sum {
		if b == 0 {
			n += 8
			continue
		}
		return n + bits.LeadingZeros8(b)
	}
	return n
}

// Widget is the client half of the challenge. It holds one unsolved challenge
// at a time and fetches the next as soon as a token is produced.
type Widget struct {
	guard *Guard

	mu      sync.Mutex
	current *Challenge
}

var _ auth.ChallengeWidget = (*Widget)(nil)

// NewWidget creates a widget bound to guard.
func NewWidget(g *Guard) *Widget {
	return &Widget{guard: g}
}

// Render fetches a challenge.
func (w *Widget) Render(context.Context) error {
	c, err := w.guard.Issue()
	if err != nil {
		return err
	}
	w.mu.Lock()
	w.current = &c
	w.mu.Unlock()
	return nil
}

// Ready reports whether a challenge is loaded.
func (w *Widget) Ready() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current != nil
}

// Token solves the loaded challenge.
func (w *Widget) Token(ctx context.Context) (string, error) {
	w.mu.Lock()
	c := w.current
	w.current = nil
	w.mu.Unlock()
	if c == nil {
		return "", auth.ErrChallengeNotReady
	}

	counter, err := solve(ctx, *c)
	if err != nil {
		return "", err
	}
	if err := w.Render(ctx); err != nil {
		return "", err
	}
	return c.Nonce + ":" + counter, nil
}

func solve(ctx context.Context, c Challenge) (string, error) {
	for i := uint64(0); ; i++ {
		if i%4096 == 0 {
			if err := ctx.Err(); err != nil {
				return "", err
			}
		}
		counter := strconv.FormatUint(i, 36)
		if leadingZeroBits(c.Nonce, counter) >= c.Bits {
			return counter, nil
		}
	}
}
