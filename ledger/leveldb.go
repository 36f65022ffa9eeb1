package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
)

const couponKeyPrefix = "coupon:"

// LevelDBStore persists coupons as JSON values under a prefixed key.
type LevelDBStore struct {
	db    *leveldb.DB
	nowFn func() time.Time
}

// OpenLevelDB opens (or creates) a LevelDB database at path.
func OpenLevelDB(path string) (*LevelDBStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	abs, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve leveldb ledger path: %w", err)
	}
	db, err := leveldb.OpenFile(abs, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb ledger: %w", err)
	}
	return &LevelDBStore{db: db, nowFn: time.Now}, nil
}

func (s *LevelDBStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func couponKey(code string) []byte {
	return []byte(couponKeyPrefix + code)
}

func (s *LevelDBStore) Lookup(ctx context.Context, code string) (Coupon, error) {
	if err := checkCode(code); err != nil {
		return Coupon{}, err
	}
	if err := ctx.Err(); err != nil {
		return Coupon{}, err
	}
	raw, err := s.db.Get(couponKey(code), nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return Coupon{}, ErrNotFound
	case err != nil:
		return Coupon{}, fmt.Errorf("load coupon: %w", err)
	}
	var coupon Coupon
	if err := json.Unmarshal(raw, &coupon); err != nil {
		return Coupon{}, fmt.Errorf("decode coupon: %w", err)
	}
	return coupon, nil
}

// Claim runs inside an exclusive LevelDB transaction; concurrent writers block
// until it commits or is discarded.
func (s *LevelDBStore) Claim(ctx context.Context, code string, redemption Redemption) (Coupon, error) {
	if err := checkCode(code); err != nil {
		return Coupon{}, err
	}
	if err := ctx.Err(); err != nil {
		return Coupon{}, err
	}
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return Coupon{}, fmt.Errorf("open transaction: %w", err)
	}
	defer tr.Discard()

	key := couponKey(code)
	raw, err := tr.Get(key, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		return Coupon{}, ErrNotFound
	case err != nil:
		return Coupon{}, fmt.Errorf("load coupon: %w", err)
	}
	var coupon Coupon
	if err := json.Unmarshal(raw, &coupon); err != nil {
		return Coupon{}, fmt.Errorf("decode coupon: %w", err)
	}
	if coupon.Used {
		return Coupon{}, ErrAlreadyUsed
	}
	r := prepareRedemption(redemption, s.nowFn())
	coupon.Used = true
	coupon.Redemption = &r
	encoded, err := json.Marshal(coupon)
	if err != nil {
		return Coupon{}, err
	}
	if err := tr.Put(key, encoded, nil); err != nil {
		return Coupon{}, fmt.Errorf("claim coupon: %w", err)
	}
	if err := tr.Commit(); err != nil {
		return Coupon{}, fmt.Errorf("commit claim: %w", err)
	}
	return coupon, nil
}

func (s *LevelDBStore) Provision(ctx context.Context, codes ...string) (int, error) {
	normalized, err := normalizeCodes(codes)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tr, err := s.db.OpenTransaction()
	if err != nil {
		return 0, fmt.Errorf("open transaction: %w", err)
	}
	defer tr.Discard()

	now := s.nowFn().UTC()
	added := 0
	for _, code := range normalized {
		key := couponKey(code)
		exists, err := tr.Has(key, nil)
		if err != nil {
			return 0, fmt.Errorf("check coupon: %w", err)
		}
		if exists {
			continue
		}
		encoded, err := json.Marshal(Coupon{Code: code, CreatedAt: now})
		if err != nil {
			return 0, err
		}
		if err := tr.Put(key, encoded, nil); err != nil {
			return 0, fmt.Errorf("provision coupon: %w", err)
		}
		added++
	}
	if err := tr.Commit(); err != nil {
		return 0, fmt.Errorf("commit provision: %w", err)
	}
	return added, nil
}
