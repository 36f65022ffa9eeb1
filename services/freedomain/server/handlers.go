package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"starkvoucher/crypto"
	"starkvoucher/voucher"
)

type publicKeyResponse struct {
	PublicKey crypto.Felt `json:"public_key"`
	StartTime int64       `json:"start_time"`
	EndTime   int64       `json:"end_time"`
}

func (s *Server) handleGetFreeDomain(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	for _, name := range []string{"addr", "domain", "code"} {
		if strings.TrimSpace(query.Get(name)) == "" {
			writeError(w, http.StatusBadRequest, "Missing parameter: "+name)
			return
		}
	}
	addr, err := crypto.ParseFelt(query.Get("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid address")
		return
	}

	start := time.Now()
	v, err := s.svc.Issue(r.Context(), voucher.Request{
		Address: addr,
		Domain:  query.Get("domain"),
		Code:    query.Get("code"),
	})
	s.metrics.ObserveIssue(string(voucher.KindOf(err)), time.Since(start))
	if err != nil {
		s.writeIssueError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handlePublicKey(w http.ResponseWriter, r *http.Request) {
	cfg := s.svc.Config()
	writeJSON(w, http.StatusOK, publicKeyResponse{
		PublicKey: s.pub.X(),
		StartTime: cfg.StartTime,
		EndTime:   cfg.EndTime,
	})
}

func (s *Server) writeIssueError(w http.ResponseWriter, err error) {
	var verr *voucher.Error
	if !errors.As(err, &verr) {
		s.logger.Error("unclassified issuance error", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
		return
	}
	writeError(w, statusFor(verr.Kind), verr.Message)
}

// statusFor maps refusal kinds onto HTTP statuses.
func statusFor(kind voucher.Kind) int {
	switch kind {
	case voucher.KindNotRootDomain, voucher.KindLabelTooShort, voucher.KindInvalidCoupon:
		return http.StatusBadRequest
	case voucher.KindCampaignInactive:
		return http.StatusForbidden
	case voucher.KindCouponNotFound:
		return http.StatusNotFound
	case voucher.KindCouponAlreadyUsed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	if strings.TrimSpace(message) == "" {
		message = http.StatusText(status)
	}
	writeJSON(w, status, map[string]string{"error": message})
}
