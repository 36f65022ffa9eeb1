package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketCoupons = []byte("coupons")

// BoltStore persists coupons in a single BoltDB bucket keyed by code.
type BoltStore struct {
	db    *bolt.DB
	nowFn func() time.Time
}

// OpenBolt opens (and migrates) the Bolt database at path.
func OpenBolt(path string) (*BoltStore, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, ErrPathRequired
	}
	db, err := bolt.Open(trimmed, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt ledger: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCoupons)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &BoltStore{db: db, nowFn: time.Now}, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *BoltStore) Lookup(ctx context.Context, code string) (Coupon, error) {
	if err := checkCode(code); err != nil {
		return Coupon{}, err
	}
	if err := ctx.Err(); err != nil {
		return Coupon{}, err
	}
	var coupon Coupon
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCoupons).Get([]byte(code))
		if raw == nil {
			return ErrNotFound
		}
		return json.Unmarshal(raw, &coupon)
	})
	if err != nil {
		return Coupon{}, err
	}
	return coupon, nil
}

// Claim performs the used check and the write inside one read-write
// transaction. Bolt serialises writers, so the check cannot go stale.
func (s *BoltStore) Claim(ctx context.Context, code string, redemption Redemption) (Coupon, error) {
	if err := checkCode(code); err != nil {
		return Coupon{}, err
	}
	if err := ctx.Err(); err != nil {
		return Coupon{}, err
	}
	var result Coupon
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCoupons)
		raw := bucket.Get([]byte(code))
		if raw == nil {
			return ErrNotFound
		}
		var coupon Coupon
		if err := json.Unmarshal(raw, &coupon); err != nil {
			return err
		}
		if coupon.Used {
			return ErrAlreadyUsed
		}
		r := prepareRedemption(redemption, s.nowFn())
		coupon.Used = true
		coupon.Redemption = &r
		encoded, err := json.Marshal(coupon)
		if err != nil {
			return err
		}
		if err := bucket.Put([]byte(code), encoded); err != nil {
			return err
		}
		result = coupon
		return nil
	})
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrAlreadyUsed) {
		return Coupon{}, err
	}
	if err != nil {
		return Coupon{}, fmt.Errorf("claim coupon: %w", err)
	}
	return result, nil
}

func (s *BoltStore) Provision(ctx context.Context, codes ...string) (int, error) {
	normalized, err := normalizeCodes(codes)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	added := 0
	now := s.nowFn().UTC()
	err = s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCoupons)
		for _, code := range normalized {
			if bucket.Get([]byte(code)) != nil {
				continue
			}
			encoded, err := json.Marshal(Coupon{Code: code, CreatedAt: now})
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(code), encoded); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("provision coupons: %w", err)
	}
	return added, nil
}
