// Package voucher issues signed free-domain vouchers in exchange for
// single-use coupon codes.
package voucher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"starkvoucher/crypto"
	"starkvoucher/ledger"
	"starkvoucher/observability/logging"
)

// DefaultMinLabelLength is the shortest label eligible for a free domain.
const DefaultMinLabelLength = 5

// DefaultCampaignConstant is the short string "free domain registration"
// packed into a field element.
var DefaultCampaignConstant = crypto.MustFelt("2511989689804727759073888271181282305524144280507626647406")

// Encoder maps a domain label to its field encoding.
type Encoder func(label string) (crypto.Felt, error)

// Signer produces Stark signatures over a message hash. *crypto.Signer
// satisfies it.
type Signer interface {
	Sign(msg crypto.Felt) (crypto.Signature, error)
}

// Config carries the campaign policy. Times are unix seconds and the window is
// inclusive at both ends. A zero CampaignConstant or MinLabelLength selects the
// default; a constant of zero cannot be configured.
type Config struct {
	StartTime        int64
	EndTime          int64
	CampaignConstant crypto.Felt
	MinLabelLength   int
}

// Request is a single voucher request.
type Request struct {
	Address crypto.Felt
	Domain  string
	Code    string
}

// Voucher is the artifact a registrar contract verifies.
type Voucher struct {
	R             crypto.Felt `json:"r"`
	S             crypto.Felt `json:"s"`
	Code          string      `json:"code"`
	DomainEncoded crypto.Felt `json:"domain_encoded"`
	RedemptionID  uuid.UUID   `json:"-"`
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// WithLogger sets the logger used for issuance events.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Service orchestrates validation, signing and the coupon claim.
type Service struct {
	cfg    Config
	ledger ledger.Ledger
	encode Encoder
	signer Signer
	nowFn  func() time.Time
	logger *slog.Logger
}

// New validates cfg and wires the collaborators.
func New(cfg Config, store ledger.Ledger, encode Encoder, signer Signer, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("voucher: ledger required")
	}
	if encode == nil {
		return nil, errors.New("voucher: encoder required")
	}
	if signer == nil {
		return nil, errors.New("voucher: signer required")
	}
	if cfg.EndTime < cfg.StartTime {
		return nil, fmt.Errorf("voucher: campaign ends (%d) before it starts (%d)", cfg.EndTime, cfg.StartTime)
	}
	if cfg.MinLabelLength <= 0 {
		cfg.MinLabelLength = DefaultMinLabelLength
	}
	if cfg.CampaignConstant.IsZero() {
		cfg.CampaignConstant = DefaultCampaignConstant
	}
	s := &Service{
		cfg:    cfg,
		ledger: store,
		encode: encode,
		signer: signer,
		nowFn:  time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the effective campaign policy.
func (s *Service) Config() Config {
	return s.cfg
}

// Issue validates the request, signs the voucher and then claims the coupon.
// The claim stores the voucher in the same atomic write, so a coupon is only
// ever spent together with a recorded signature.
func (s *Service) Issue(ctx context.Context, req Request) (Voucher, error) {
	now := s.nowFn()
	if unix := now.Unix(); unix < s.cfg.StartTime || unix > s.cfg.EndTime {
		return Voucher{}, newError(KindCampaignInactive, nil)
	}

	domain, label, err := SplitDomain(req.Domain, s.cfg.MinLabelLength)
	if err != nil {
		return Voucher{}, err
	}

	code, err := crypto.FeltFromCoupon(req.Code)
	if err != nil {
		return Voucher{}, newError(KindInvalidCoupon, err)
	}

	coupon, err := s.ledger.Lookup(ctx, req.Code)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return Voucher{}, newError(KindCouponNotFound, nil)
	case err != nil:
		return Voucher{}, s.fail(newError(KindLedgerReadFailed, err), req.Code)
	case coupon.Used:
		return Voucher{}, newError(KindCouponAlreadyUsed, nil)
	}

	encoded, err := s.encode(label)
	if err != nil {
		return Voucher{}, s.fail(newError(KindLabelEncodingFailed, err), req.Code)
	}

	msg := crypto.HashChain(req.Address, encoded, code, s.cfg.CampaignConstant)
	sig, err := s.signer.Sign(msg)
	if err != nil {
		return Voucher{}, s.fail(newError(KindSignatureFailed, err), req.Code)
	}

	redemption := ledger.Redemption{
		ID:           uuid.New(),
		Address:      req.Address,
		Domain:       domain,
		EncodedLabel: encoded,
		R:            sig.R,
		S:            sig.S,
		ClaimedAt:    now,
	}
	if _, err := s.ledger.Claim(ctx, req.Code, redemption); err != nil {
		switch {
		case errors.Is(err, ledger.ErrAlreadyUsed):
			return Voucher{}, newError(KindCouponAlreadyUsed, nil)
		case errors.Is(err, ledger.ErrNotFound):
			return Voucher{}, newError(KindCouponNotFound, nil)
		default:
			return Voucher{}, s.fail(newError(KindLedgerWriteFailed, err), req.Code)
		}
	}

	s.logger.Info("voucher issued",
		slog.String("coupon", logging.Fingerprint(req.Code)),
		slog.String("domain", domain),
		slog.String("redemption_id", redemption.ID.String()))

	return Voucher{
		R:             sig.R,
		S:             sig.S,
		Code:          req.Code,
		DomainEncoded: encoded,
		RedemptionID:  redemption.ID,
	}, nil
}

// SplitDomain normalises a requested domain (trim, NFC, lower case) and returns
// it with its label. Only root domains with a label of at least minLabelLength
// runes are accepted.
func SplitDomain(raw string, minLabelLength int) (domain, label string, err error) {
	domain = strings.ToLower(norm.NFC.String(strings.TrimSpace(raw)))
	parts := strings.Split(domain, ".")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", newError(KindNotRootDomain, nil)
	}
	if utf8.RuneCountInString(parts[0]) < minLabelLength {
		return "", "", newError(KindLabelTooShort, nil)
	}
	return domain, parts[0], nil
}

func (s *Service) fail(err *Error, code string) *Error {
	s.logger.Error("voucher issuance failed",
		slog.String("kind", string(err.Kind)),
		slog.String("coupon", logging.Fingerprint(code)),
		slog.Any("error", err.Err))
	return err
}
