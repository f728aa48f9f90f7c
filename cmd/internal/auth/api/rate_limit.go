package authapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/popop098/chzzk-login-example/cmd/internal/audit"
)

// checkCallbackThrottle blocks an IP after too many failed callbacks in the window.
func (h *Handler) checkCallbackThrottle(ctx context.Context, ip net.IP, now time.Time) (bool, time.Duration, error) {
	if h.failures == nil || ip == nil || h.cfg.CallbackIPMax <= 0 {
		return false, 0, nil
	}
	count, err := h.failures.CountSince(ctx, audit.ActionCallbackFailed, ip, now.Add(-h.cfg.CallbackIPWindow))
	if err != nil {
		return false, 0, err
	}
	if count >= h.cfg.CallbackIPMax {
		return true, h.cfg.CallbackIPWindow, nil
	}
	return false, 0, nil
}

func writeRateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.FormatInt(int64(retryAfter.Seconds()), 10))
	}
	writeText(w, http.StatusTooManyRequests, "too many attempts")
}
