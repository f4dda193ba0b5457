package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/cors"
)

const (
	defaultCORSOrigin = "http://localhost:3000"
	corsMaxAgeSeconds = 300
)

// CORS applies the register UI origin policy. A "*" entry allows any origin
// but then disables credentials, since browsers reject that combination.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(corsOptions(origins)).Handler
}

func corsOptions(origins []string) cors.Options {
	cleaned := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" && !slices.Contains(cleaned, origin) {
			cleaned = append(cleaned, origin)
		}
	}
	if len(cleaned) == 0 {
		cleaned = []string{defaultCORSOrigin}
	}
	wildcard := slices.Contains(cleaned, "*")
	if wildcard {
		cleaned = []string{"*"}
	}

	return cors.Options{
		AllowedOrigins: cleaned,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			actorIDHeader,
			terminalIDHeader,
			idempotencyHeader,
			requestIDHeader,
		},
		ExposedHeaders:   []string{requestIDHeader, replayedHeader},
		AllowCredentials: !wildcard,
		MaxAge:           corsMaxAgeSeconds,
	}
}
