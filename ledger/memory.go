package ledger

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps coupons in process memory. Used for tests and local runs.
type MemoryStore struct {
	mu      sync.Mutex
	coupons map[string]Coupon
	nowFn   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		coupons: make(map[string]Coupon),
		nowFn:   time.Now,
	}
}

func (m *MemoryStore) Lookup(ctx context.Context, code string) (Coupon, error) {
	if err := checkCode(code); err != nil {
		return Coupon{}, err
	}
	if err := ctx.Err(); err != nil {
		return Coupon{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	coupon, ok := m.coupons[code]
	if !ok {
		return Coupon{}, ErrNotFound
	}
	return coupon.clone(), nil
}

func (m *MemoryStore) Claim(ctx context.Context, code string, redemption Redemption) (Coupon, error) {
	if err := checkCode(code); err != nil {
		return Coupon{}, err
	}
	if err := ctx.Err(); err != nil {
		return Coupon{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	coupon, ok := m.coupons[code]
	if !ok {
		return Coupon{}, ErrNotFound
	}
	if coupon.Used {
		return Coupon{}, ErrAlreadyUsed
	}
	r := prepareRedemption(redemption, m.nowFn())
	coupon.Used = true
	coupon.Redemption = &r
	m.coupons[code] = coupon
	return coupon.clone(), nil
}

func (m *MemoryStore) Provision(ctx context.Context, codes ...string) (int, error) {
	normalized, err := normalizeCodes(codes)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFn().UTC()
	added := 0
	for _, code := range normalized {
		if _, exists := m.coupons[code]; exists {
			continue
		}
		m.coupons[code] = Coupon{Code: code, CreatedAt: now}
		added++
	}
	return added, nil
}

func (m *MemoryStore) Close() error { return nil }
