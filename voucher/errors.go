package voucher

import "errors"

// Kind classifies why an issuance was refused.
type Kind string

const (
	KindCampaignInactive    Kind = "campaign_inactive"
	KindNotRootDomain       Kind = "not_root_domain"
	KindLabelTooShort       Kind = "label_too_short"
	KindInvalidCoupon       Kind = "invalid_coupon"
	KindCouponNotFound      Kind = "coupon_not_found"
	KindCouponAlreadyUsed   Kind = "coupon_already_used"
	KindLabelEncodingFailed Kind = "label_encoding_failed"
	KindSignatureFailed     Kind = "signature_failed"
	KindLedgerReadFailed    Kind = "ledger_read_failed"
	KindLedgerWriteFailed   Kind = "ledger_write_failed"
)

// ClientError reports whether the refusal was caused by the request rather
// than by the service.
func (k Kind) ClientError() bool {
	switch k {
	case KindCampaignInactive, KindNotRootDomain, KindLabelTooShort, KindInvalidCoupon,
		KindCouponNotFound, KindCouponAlreadyUsed:
		return true
	default:
		return false
	}
}

var messages = map[Kind]string{
	KindCampaignInactive:    "Campaign not active",
	KindNotRootDomain:       "Domain must be a root domain",
	KindLabelTooShort:       "Domain too short",
	KindInvalidCoupon:       "Coupon code must be a decimal number",
	KindCouponNotFound:      "Coupon code not found",
	KindCouponAlreadyUsed:   "Coupon code already used",
	KindLabelEncodingFailed: "Error while encoding domain",
	KindSignatureFailed:     "Error while generating Starknet signature",
	KindLedgerReadFailed:    "Error while reading coupon code",
	KindLedgerWriteFailed:   "Error while updating coupon code",
}

// Error is the refusal returned by Service.Issue. Message is safe to show to
// callers; Err carries the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func newError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, Message: messages[kind], Err: cause}
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches any *Error of the same Kind, so the sentinels below work with
// errors.Is.
func (e *Error) Is(target error) bool {
	other, ok := target.(*Error)
	if !ok || e == nil || other == nil {
		return false
	}
	return e.Kind == other.Kind
}

// Sentinels for errors.Is comparisons.
var (
	ErrCampaignInactive    = &Error{Kind: KindCampaignInactive, Message: messages[KindCampaignInactive]}
	ErrNotRootDomain       = &Error{Kind: KindNotRootDomain, Message: messages[KindNotRootDomain]}
	ErrLabelTooShort       = &Error{Kind: KindLabelTooShort, Message: messages[KindLabelTooShort]}
	ErrInvalidCoupon       = &Error{Kind: KindInvalidCoupon, Message: messages[KindInvalidCoupon]}
	ErrCouponNotFound      = &Error{Kind: KindCouponNotFound, Message: messages[KindCouponNotFound]}
	ErrCouponAlreadyUsed   = &Error{Kind: KindCouponAlreadyUsed, Message: messages[KindCouponAlreadyUsed]}
	ErrLabelEncodingFailed = &Error{Kind: KindLabelEncodingFailed, Message: messages[KindLabelEncodingFailed]}
	ErrSignatureFailed     = &Error{Kind: KindSignatureFailed, Message: messages[KindSignatureFailed]}
	ErrLedgerReadFailed    = &Error{Kind: KindLedgerReadFailed, Message: messages[KindLedgerReadFailed]}
	ErrLedgerWriteFailed   = &Error{Kind: KindLedgerWriteFailed, Message: messages[KindLedgerWriteFailed]}
)

// KindOf extracts the Kind from err, or "" when err is not an *Error.
func KindOf(err error) Kind {
	var verr *Error
	if errors.As(err, &verr) {
		return verr.Kind
	}
	return ""
}
