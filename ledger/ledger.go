// Package ledger persists single-use coupon codes. Every backend guarantees that
// at most one Claim succeeds per code regardless of how many callers race.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"starkvoucher/crypto"
)

// Supported backend drivers.
const (
	DriverMemory  = "memory"
	DriverBolt    = "bolt"
	DriverLevelDB = "leveldb"
	DriverSQL     = "sql"
)

var (
	// ErrNotFound is returned when the coupon code was never provisioned.
	ErrNotFound = errors.New("ledger: coupon not found")
	// ErrAlreadyUsed is returned when the coupon has already been claimed.
	ErrAlreadyUsed = errors.New("ledger: coupon already used")
	// ErrUnknownDriver is returned by Open for unsupported drivers.
	ErrUnknownDriver = errors.New("ledger: unknown driver")
	// ErrPathRequired is returned when a file-backed driver has no path.
	ErrPathRequired = errors.New("ledger: storage path must be configured")
	// ErrEmptyCode is returned for blank coupon codes.
	ErrEmptyCode = errors.New("ledger: empty coupon code")
)

// Redemption is the voucher recorded alongside a successful claim.
type Redemption struct {
	ID           uuid.UUID   `json:"id"`
	Address      crypto.Felt `json:"address"`
	Domain       string      `json:"domain"`
	EncodedLabel crypto.Felt `json:"encodedLabel"`
	R            crypto.Felt `json:"r"`
	S            crypto.Felt `json:"s"`
	ClaimedAt    time.Time   `json:"claimedAt"`
}

// Coupon is the persisted state of a single code.
type Coupon struct {
	Code       string      `json:"code"`
	Used       bool        `json:"used"`
	CreatedAt  time.Time   `json:"createdAt"`
	Redemption *Redemption `json:"redemption,omitempty"`
}

func (c Coupon) clone() Coupon {
	if c.Redemption != nil {
		r := *c.Redemption
		c.Redemption = &r
	}
	return c
}

// Ledger is the surface the voucher service depends on.
type Ledger interface {
	// Lookup returns the current state of code without mutating it.
	Lookup(ctx context.Context, code string) (Coupon, error)
	// Claim atomically flips used from false to true and records the
	// redemption. It returns ErrNotFound or ErrAlreadyUsed without mutating
	// state when the transition is not possible.
	Claim(ctx context.Context, code string, redemption Redemption) (Coupon, error)
}

// Store is a Ledger with provisioning and lifecycle management.
type Store interface {
	Ledger
	// Provision inserts unused coupons and reports how many were new. Existing
	// codes are left untouched.
	Provision(ctx context.Context, codes ...string) (int, error)
	Close() error
}

// Config selects and parameterises a backend.
type Config struct {
	Driver  string `yaml:"driver" toml:"driver"`
	Path    string `yaml:"path" toml:"path"`
	DSN     string `yaml:"dsn" toml:"dsn"`
	Dialect string `yaml:"dialect" toml:"dialect"`
}

// Open constructs the backend named by cfg.Driver.
func Open(cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverBolt:
		store, err := OpenBolt(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverLevelDB:
		store, err := OpenLevelDB(cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	case DriverSQL:
		store, err := OpenSQL(cfg.Dialect, cfg.DSN, cfg.Path)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func checkCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return ErrEmptyCode
	}
	return nil
}

// normalizeCodes trims and de-duplicates provisioning input, preserving order.
func normalizeCodes(codes []string) ([]string, error) {
	seen := make(map[string]struct{}, len(codes))
	out := make([]string, 0, len(codes))
	for _, code := range codes {
		trimmed := strings.TrimSpace(code)
		if trimmed == "" {
			return nil, ErrEmptyCode
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out, nil
}

func prepareRedemption(r Redemption, now time.Time) Redemption {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	if r.ClaimedAt.IsZero() {
		r.ClaimedAt = now
	}
	r.ClaimedAt = r.ClaimedAt.UTC()
	return r
}
