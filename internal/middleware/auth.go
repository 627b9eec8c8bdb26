package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/supplysync/server/internal/config"
	"github.com/supplysync/server/internal/observability"
	"github.com/supplysync/server/internal/syncapi"
)

type contextKey string

const SiteContextKey contextKey = "site"

// GetSiteFromContext retrieves the authenticated remote site from request context
func GetSiteFromContext(ctx context.Context) *config.SiteCredential {
	if site, ok := ctx.Value(SiteContextKey).(*config.SiteCredential); ok {
		return site
	}
	return nil
}

// APIKeyAuth creates middleware for API key authentication of the local admin API
func APIKeyAuth(apiKey, headerName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Skip auth for health endpoints
			path := r.URL.Path
			if path == "/health" || path == "/api/health" || path == "/api/version" {
				next.ServeHTTP(w, r)
				return
			}

			// Only authenticate API routes
			if !strings.HasPrefix(path, "/api") && !strings.HasPrefix(path, "/ws") {
				next.ServeHTTP(w, r)
				return
			}

			providedKey := r.Header.Get(headerName)
			if providedKey == "" {
				providedKey = r.URL.Query().Get("apiKey")
			}
			if providedKey == "" {
				writeJSONError(w, http.StatusUnauthorized, "API key is required.")
				return
			}

			// Constant-time comparison to prevent timing attacks
			if !constantTimeEquals(apiKey, providedKey) {
				writeJSONError(w, http.StatusUnauthorized, "Invalid API key.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// SiteBasicAuth authenticates remote sites by name and the SHA-256 hex of
// their password, checked against the configured bcrypt hashes
func SiteBasicAuth(sites []config.SiteCredential, metrics *observability.SyncMetrics) func(http.Handler) http.Handler {
	byName := make(map[string]*config.SiteCredential, len(sites))
	for i := range sites {
		byName[sites[i].Name] = &sites[i]
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			name, password, ok := r.BasicAuth()
			site := byName[name]
			if !ok || site == nil || bcrypt.CompareHashAndPassword([]byte(site.PasswordHash), []byte(password)) != nil {
				metrics.RecordAuthAttempt(r.Context(), "basic", false)
				observability.WithContext(r.Context()).WithField("site", name).Warn("Site authentication failed")
				w.Header().Set("WWW-Authenticate", `Basic realm="sync"`)
				syncapi.WriteError(w, http.StatusUnauthorized, syncapi.KindAuthentication, "invalid site credentials", nil)
				return
			}

			metrics.RecordAuthAttempt(r.Context(), "basic", true)
			ctx := context.WithValue(r.Context(), SiteContextKey, site)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// HashSitePassword returns the bcrypt hash stored for a site whose client
// sends sha256Hex as its password
func HashSitePassword(sha256Hex string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(sha256Hex), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// constantTimeEquals performs a constant-time string comparison
func constantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
