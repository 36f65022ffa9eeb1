package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"starkvoucher/crypto"
)

// SQL dialects accepted by OpenSQL.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const provisionBatchSize = 500

// couponRow is the relational layout of a coupon and its redemption.
type couponRow struct {
	Code         string  `gorm:"primaryKey;size:96"`
	Used         bool    `gorm:"not null;index"`
	RedemptionID *string `gorm:"size:36;uniqueIndex"`
	Address      string  `gorm:"size:80"`
	Domain       string  `gorm:"size:255"`
	EncodedLabel string  `gorm:"size:80"`
	SigR         string  `gorm:"size:80"`
	SigS         string  `gorm:"size:80"`
	ClaimedAt    *time.Time
	CreatedAt    time.Time
}

func (couponRow) TableName() string { return "coupons" }

func (r couponRow) coupon() (Coupon, error) {
	c := Coupon{Code: r.Code, Used: r.Used, CreatedAt: r.CreatedAt.UTC()}
	if r.RedemptionID == nil {
		return c, nil
	}
	id, err := uuid.Parse(*r.RedemptionID)
	if err != nil {
		return Coupon{}, fmt.Errorf("decode redemption id: %w", err)
	}
	red := Redemption{ID: id, Domain: r.Domain}
	for _, f := range []struct {
		dst *crypto.Felt
		raw string
	}{
		{&red.Address, r.Address},
		{&red.EncodedLabel, r.EncodedLabel},
		{&red.R, r.SigR},
		{&red.S, r.SigS},
	} {
		v, err := crypto.ParseFelt(f.raw)
		if err != nil {
			return Coupon{}, fmt.Errorf("decode redemption: %w", err)
		}
		*f.dst = v
	}
	if r.ClaimedAt != nil {
		red.ClaimedAt = r.ClaimedAt.UTC()
	}
	c.Redemption = &red
	return c, nil
}

// SQLStore persists coupons through gorm. The claim is a conditional UPDATE,
// so the database engine provides the atomicity.
type SQLStore struct {
	db    *gorm.DB
	nowFn func() time.Time
}

// OpenSQL connects using the named dialect. For sqlite the DSN falls back to
// path so a plain file location can be configured.
func OpenSQL(dialect, dsn, path string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(dialect)) {
	case DialectPostgres:
		if dsn == "" {
			return nil, fmt.Errorf("ledger: postgres dsn must be configured")
		}
		dialector = postgres.Open(dsn)
	case "", DialectSQLite:
		if dsn == "" {
			dsn = strings.TrimSpace(path)
		}
		if dsn == "" {
			return nil, ErrPathRequired
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: sql dialect %q", ErrUnknownDriver, dialect)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sql ledger: %w", err)
	}
	if dialector.Name() == DialectSQLite {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		// sqlite allows a single writer; queue callers on one connection.
		sqlDB.SetMaxOpenConns(1)
	}
	return NewSQLStore(db)
}

// NewSQLStore wraps an existing gorm handle and migrates the coupons table.
func NewSQLStore(db *gorm.DB) (*SQLStore, error) {
	if db == nil {
		return nil, errors.New("ledger: nil database handle")
	}
	if err := db.AutoMigrate(&couponRow{}); err != nil {
		return nil, fmt.Errorf("migrate coupons: %w", err)
	}
	return &SQLStore{db: db, nowFn: time.Now}, nil
}

func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLStore) Lookup(ctx context.Context, code string) (Coupon, error) {
	if err := checkCode(code); err != nil {
		return Coupon{}, err
	}
	var row couponRow
	err := s.db.WithContext(ctx).Where("code = ?", code).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Coupon{}, ErrNotFound
	}
	if err != nil {
		return Coupon{}, fmt.Errorf("load coupon: %w", err)
	}
	return row.coupon()
}

var errNotClaimed = errors.New("coupon not claimable")

// Claim flips used and stores the redemption with one conditional UPDATE. The
// row is read back inside the same transaction, so a failed read rolls the
// claim back instead of leaving a spent coupon behind an error.
func (s *SQLStore) Claim(ctx context.Context, code string, redemption Redemption) (Coupon, error) {
	if err := checkCode(code); err != nil {
		return Coupon{}, err
	}
	r := prepareRedemption(redemption, s.nowFn())
	id := r.ID.String()
	var claimed Coupon
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&couponRow{}).
			Where("code = ? AND used = ?", code, false).
			Updates(map[string]any{
				"used":          true,
				"redemption_id": id,
				"address":       r.Address.Hex(),
				"domain":        r.Domain,
				"encoded_label": r.EncodedLabel.Hex(),
				"sig_r":         r.R.Hex(),
				"sig_s":         r.S.Hex(),
				"claimed_at":    r.ClaimedAt,
			})
		if res.Error != nil {
			return fmt.Errorf("claim coupon: %w", res.Error)
		}
		if res.RowsAffected != 1 {
			return errNotClaimed
		}
		var row couponRow
		if err := tx.Where("code = ?", code).Take(&row).Error; err != nil {
			return fmt.Errorf("load claimed coupon: %w", err)
		}
		c, err := row.coupon()
		if err != nil {
			return err
		}
		claimed = c
		return nil
	})
	switch {
	case err == nil:
		return claimed, nil
	case !errors.Is(err, errNotClaimed):
		return Coupon{}, err
	}
	// Nothing matched: distinguish a missing code from one already spent.
	if _, err := s.Lookup(ctx, code); err != nil {
		return Coupon{}, err
	}
	return Coupon{}, ErrAlreadyUsed
}

func (s *SQLStore) Provision(ctx context.Context, codes ...string) (int, error) {
	normalized, err := normalizeCodes(codes)
	if err != nil {
		return 0, err
	}
	if len(normalized) == 0 {
		return 0, nil
	}
	now := s.nowFn().UTC()
	rows := make([]couponRow, 0, len(normalized))
	for _, code := range normalized {
		rows = append(rows, couponRow{Code: code, CreatedAt: now})
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		CreateInBatches(&rows, provisionBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("provision coupons: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}
