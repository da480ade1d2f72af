package middleware

import (
	"fmt"
	"net/http"
)

// CreditGate reports whether credits are enforced.
type CreditGate interface {
	Enabled() bool
}

// CreditCheck refuses the request with 402 when the balance loaded by
// TokenAuth is below cost. It is an early check only; the handler still
// performs the atomic deduction.
func CreditCheck(gate CreditGate, cost int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := ProfileFromCtx(r.Context())
			if p == nil {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			if gate.Enabled() && p.Credits < cost {
				http.Error(w, fmt.Sprintf(`{"error":"insufficient credits","credits":%d}`, p.Credits), http.StatusPaymentRequired)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
