package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"starkvoucher/crypto"
	"starkvoucher/ledger"
	"starkvoucher/naming"
	"starkvoucher/observability"
	"starkvoucher/voucher"
)

const (
	windowStart = int64(1_700_000_000)
	windowEnd   = int64(1_700_086_400)
	testAddr    = "0x4a1b2c3d4e5f60718293a4b5c6d7e8f90112233445566778899aabbccddeeff"
)

type harness struct {
	handler http.Handler
	signer  *crypto.Signer
	now     time.Time
	reg     *prometheus.Registry
}

type brokenSigner struct{}

func (brokenSigner) Sign(crypto.Felt) (crypto.Signature, error) {
	return crypto.Signature{}, crypto.ErrSigningFailed
}

func newHarness(t *testing.T, limit RateLimit, signer voucher.Signer) *harness {
	t.Helper()
	key, err := crypto.GeneratePrivateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	realSigner, err := crypto.NewSigner(key)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	if signer == nil {
		signer = realSigner
	}
	store := ledger.NewMemoryStore()
	if _, err := store.Provision(context.Background(), "12345", "67890"); err != nil {
		t.Fatalf("provision: %v", err)
	}
	h := &harness{signer: realSigner, now: time.Unix(windowStart+10, 0), reg: prometheus.NewRegistry()}
	svc, err := voucher.New(voucher.Config{StartTime: windowStart, EndTime: windowEnd}, store, naming.EncodeLabel, signer,
		voucher.WithClock(func() time.Time { return h.now }))
	if err != nil {
		t.Fatalf("voucher service: %v", err)
	}
	srv, err := New(svc, realSigner.PublicKey(), Config{
		RateLimit: limit,
		Gatherer:  h.reg,
		Metrics:   observability.NewVoucherMetrics(h.reg),
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	h.handler = srv.Handler()
	return h
}

func (h *harness) get(t *testing.T, addr, domain, code string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	q := url.Values{}
	if addr != "" {
		q.Set("addr", addr)
	}
	if domain != "" {
		q.Set("domain", domain)
	}
	if code != "" {
		q.Set("code", code)
	}
	req := httptest.NewRequest(http.MethodGet, routeFreeDomain+"?"+q.Encode(), nil)
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return rec, body
}

func TestGetFreeDomainIssuesVoucher(t *testing.T) {
	h := newHarness(t, RateLimit{}, nil)
	rec, body := h.get(t, testAddr, "abcde.stark", "12345")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", rec.Code, body)
	}
	if body["code"] != "12345" {
		t.Fatalf("unexpected code echo %q", body["code"])
	}
	if body["domain_encoded"] != "0x81d2b6" {
		t.Fatalf("unexpected domain_encoded %q", body["domain_encoded"])
	}
	r, err := crypto.ParseFelt(body["r"])
	if err != nil {
		t.Fatalf("parse r: %v", err)
	}
	s, err := crypto.ParseFelt(body["s"])
	if err != nil {
		t.Fatalf("parse s: %v", err)
	}
	msg := crypto.HashChain(crypto.MustFelt(testAddr), crypto.FeltFromUint64(8508086), crypto.FeltFromUint64(12345), voucher.DefaultCampaignConstant)
	if !h.signer.PublicKey().Verify(msg, crypto.Signature{R: r, S: s}) {
		t.Fatalf("voucher signature does not verify")
	}

	rec, body = h.get(t, testAddr, "abcde.stark", "12345")
	if rec.Code != http.StatusConflict || body["error"] != "Coupon code already used" {
		t.Fatalf("expected 409 on reuse, got %d: %v", rec.Code, body)
	}
}

func TestGetFreeDomainStatusMapping(t *testing.T) {
	h := newHarness(t, RateLimit{}, nil)
	cases := []struct {
		name   string
		addr   string
		domain string
		code   string
		status int
		msg    string
	}{
		{"missing addr", "", "abcde.stark", "12345", http.StatusBadRequest, "Missing parameter: addr"},
		{"missing code", testAddr, "abcde.stark", "", http.StatusBadRequest, "Missing parameter: code"},
		{"bad addr", "zzz", "abcde.stark", "12345", http.StatusBadRequest, "Invalid address"},
		{"not root", testAddr, "a.b.stark", "12345", http.StatusBadRequest, "Domain must be a root domain"},
		{"too short", testAddr, "ab.stark", "12345", http.StatusBadRequest, "Domain too short"},
		{"invalid coupon", testAddr, "abcde.stark", "PROMO", http.StatusBadRequest, "Coupon code must be a decimal number"},
		{"unknown coupon", testAddr, "abcde.stark", "55555", http.StatusNotFound, "Coupon code not found"},
		{"unsupported label", testAddr, "abc_de.stark", "12345", http.StatusInternalServerError, "Error while encoding domain"},
	}
	for _, tc := range cases {
		rec, body := h.get(t, tc.addr, tc.domain, tc.code)
		if rec.Code != tc.status || body["error"] != tc.msg {
			t.Fatalf("%s: got %d %q, want %d %q", tc.name, rec.Code, body["error"], tc.status, tc.msg)
		}
	}

	h.now = time.Unix(windowEnd+1, 0)
	rec, body := h.get(t, testAddr, "abcde.stark", "12345")
	if rec.Code != http.StatusForbidden || body["error"] != "Campaign not active" {
		t.Fatalf("expected 403, got %d: %v", rec.Code, body)
	}
}

func TestGetFreeDomainSignerFailure(t *testing.T) {
	h := newHarness(t, RateLimit{}, brokenSigner{})
	rec, body := h.get(t, testAddr, "abcde.stark", "12345")
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if body["error"] != "Error while generating Starknet signature" {
		t.Fatalf("unexpected error %q", body["error"])
	}
}

func TestRateLimit(t *testing.T) {
	h := newHarness(t, RateLimit{RequestsPerMinute: 1, Burst: 1}, nil)
	do := func(remote string) int {
		req := httptest.NewRequest(http.MethodGet, routePublicKey, nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := do("10.0.0.1:4000"); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := do("10.0.0.1:4001"); code != http.StatusTooManyRequests {
		t.Fatalf("second request should be throttled, got %d", code)
	}
	if code := do("10.0.0.2:4000"); code != http.StatusOK {
		t.Fatalf("other client should not be throttled, got %d", code)
	}
}

func TestRateLimitIgnoresSpoofedForwardingHeaders(t *testing.T) {
	h := newHarness(t, RateLimit{RequestsPerMinute: 1, Burst: 1}, nil)
	do := func(i int) int {
		req := httptest.NewRequest(http.MethodGet, routePublicKey, nil)
		req.RemoteAddr = "203.0.113.9:5000"
		req.Header.Set("X-Real-IP", fmt.Sprintf("198.51.100.%d", i))
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("198.51.100.%d", i))
		rec := httptest.NewRecorder()
		h.handler.ServeHTTP(rec, req)
		return rec.Code
	}
	if code := do(1); code != http.StatusOK {
		t.Fatalf("first request: %d", code)
	}
	if code := do(2); code != http.StatusTooManyRequests {
		t.Fatalf("spoofed headers should not bypass rate limiting, got %d", code)
	}
}

func TestClientIDHonorsTrustedProxy(t *testing.T) {
	limiter, err := NewRateLimiter(RateLimit{RequestsPerMinute: 60, TrustedProxies: []string{"10.0.0.0/8", "192.0.2.7"}})
	if err != nil {
		t.Fatalf("new limiter: %v", err)
	}

	cases := []struct {
		remote, realIP, forwarded, want string
	}{
		{"10.1.2.3:80", "198.51.100.7", "", "198.51.100.7"},
		{"10.1.2.3:80", "", "198.51.100.8, 10.1.2.3", "198.51.100.8"},
		{"192.0.2.7:80", "", "198.51.100.9", "198.51.100.9"},
		{"10.1.2.3:80", "not-an-ip", "", "10.1.2.3"},
		{"192.0.2.8:80", "198.51.100.7", "198.51.100.7", "192.0.2.8"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, routeFreeDomain, nil)
		req.RemoteAddr = tc.remote
		if tc.realIP != "" {
			req.Header.Set("X-Real-IP", tc.realIP)
		}
		if tc.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tc.forwarded)
		}
		if got := limiter.clientID(req); got != tc.want {
			t.Fatalf("remote %s: got %q want %q", tc.remote, got, tc.want)
		}
	}

	if _, err := NewRateLimiter(RateLimit{RequestsPerMinute: 1, TrustedProxies: []string{"10.0.0.0/99"}}); err == nil {
		t.Fatalf("expected invalid trusted proxy to be rejected")
	}
}

func TestPublicKeyHealthAndMetrics(t *testing.T) {
	h := newHarness(t, RateLimit{}, nil)

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, routePublicKey, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("pubkey status %d", rec.Code)
	}
	var info struct {
		PublicKey string `json:"public_key"`
		StartTime int64  `json:"start_time"`
		EndTime   int64  `json:"end_time"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode pubkey: %v", err)
	}
	if info.PublicKey != h.signer.PublicKey().X().Hex() || info.StartTime != windowStart || info.EndTime != windowEnd {
		t.Fatalf("unexpected pubkey response %+v", info)
	}

	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, routeHealth, nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("unexpected health response %d %q", rec.Code, rec.Body.String())
	}

	h.get(t, testAddr, "abcde.stark", "12345")
	rec = httptest.NewRecorder()
	h.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, routeMetrics, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `freedomain_voucher_issuance_total{outcome="issued"} 1`) {
		t.Fatalf("issuance metric missing:\n%s", rec.Body.String())
	}
}

func TestStatusForCoversAllKinds(t *testing.T) {
	kinds := []voucher.Kind{
		voucher.KindCampaignInactive, voucher.KindNotRootDomain, voucher.KindLabelTooShort,
		voucher.KindInvalidCoupon, voucher.KindCouponNotFound, voucher.KindCouponAlreadyUsed,
		voucher.KindLabelEncodingFailed, voucher.KindSignatureFailed,
		voucher.KindLedgerReadFailed, voucher.KindLedgerWriteFailed,
	}
	for _, kind := range kinds {
		status := statusFor(kind)
		if kind.ClientError() != (status < http.StatusInternalServerError) {
			t.Fatalf("kind %s mapped to %d disagrees with ClientError", kind, status)
		}
	}
}
