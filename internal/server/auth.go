package server

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/54b3r/plotline-go/internal/logging"
)

// access is what a presented token may do on book routes.
type access int

const (
	accessNone access = iota
	// accessRead covers GET routes: planning context and search.
	accessRead
	// accessWrite covers everything, including reindex and suggest.
	accessWrite
)

// authKeys are the bearer tokens accepted on book routes. An empty write key
// disables authentication; the read key is then ignored too.
type authKeys struct {
	write string
	read  string
}

func (k authKeys) enabled() bool { return k.write != "" }

// level returns the access granted by token. Comparisons are constant time.
func (k authKeys) level(token string) access {
	switch {
	case token == "":
		return accessNone
	case subtle.ConstantTimeCompare([]byte(token), []byte(k.write)) == 1:
		return accessWrite
	case k.read != "" && subtle.ConstantTimeCompare([]byte(token), []byte(k.read)) == 1:
		return accessRead
	}
	return accessNone
}

// authMiddleware requires "Authorization: Bearer <token>" granting at least
// need. A missing or unknown token gets 401, a read-only token on a write
// route gets 403. Token values are never logged.
func authMiddleware(keys authKeys, need access, next http.Handler) http.Handler {
	if !keys.enabled() {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log := logging.FromContext(r.Context())
		token := bearerToken(r)

		switch got := keys.level(token); {
		case got >= need:
			next.ServeHTTP(w, r)
		case got == accessRead:
			log.Warn("auth: read-only token on write route",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="plotline" error="insufficient_scope"`)
			http.Error(w, "token is read-only", http.StatusForbidden)
		case token == "":
			log.Warn("auth: missing Authorization header",
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="plotline"`)
			http.Error(w, "authorization required", http.StatusUnauthorized)
		default:
			log.Warn("auth: invalid token",
				slog.String("path", r.URL.Path),
				slog.Bool("token_present", true),
			)
			w.Header().Set("WWW-Authenticate", `Bearer realm="plotline" error="invalid_token"`)
			http.Error(w, "invalid token", http.StatusUnauthorized)
		}
	})
}

// bearerToken extracts the token from an "Authorization: Bearer <token>"
// header. Returns an empty string if the header is absent or malformed.
func bearerToken(r *http.Request) string {
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
