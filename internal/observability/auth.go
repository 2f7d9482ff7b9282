package observability

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"telegate/internal/domain"
)

// TelegramSecretHeader carries the secret_token registered with setWebhook.
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

var publicAuthBypass = map[string]bool{
	"/healthz": true,
	"/version": true,
}

// APIKey guards the API with a static key taken from X-API-Key or a bearer
// token. Telegram cannot send either, so it may authenticate with the
// webhook secret header instead.
func APIKey(requiredKey string) func(http.Handler) http.Handler {
	required := strings.TrimSpace(requiredKey)
	if required == "" {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicAuthBypass[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			if subtle.ConstantTimeCompare([]byte(candidateKey(r)), []byte(required)) != 1 {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_ = json.NewEncoder(w).Encode(domain.APIErrorBody{Error: domain.APIError{
					Code:    "unauthorized",
					Message: "missing or invalid api key",
				}})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func candidateKey(r *http.Request) string {
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key
	}
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return strings.TrimSpace(r.Header.Get(TelegramSecretHeader))
}
