package middleware

import (
	"log"
	"net/http"

	"golang.org/x/time/rate"

	"github.com/zhouzirui/kb-chat/backend/internal/config"
	"github.com/zhouzirui/kb-chat/backend/pkg/utils"
)

// NewAskLimiter builds the process-wide limiter guarding upstream calls.
// It returns nil when limiting is disabled.
func NewAskLimiter(limits config.LimitsConfig) *rate.Limiter {
	if limits.AskRate <= 0 {
		return nil
	}
	burst := limits.AskBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(limits.AskRate), burst)
}

// Limit rejects requests with 429 once the limiter is exhausted. A nil
// limiter lets every request through.
func Limit(limiter *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				log.Printf("[limit] rejected %s %s", r.Method, r.URL.Path)
				utils.RespondError(w, http.StatusTooManyRequests, "too many questions, please retry shortly")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
