package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"certportal/pkg/requestcontext"
)

// ClientMetadata captures the client network address and a parsed user-agent
// summary into the request context so audit entries can carry them.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		ctx = requestcontext.WithClientIP(ctx, clientIP(r))
		if raw := r.UserAgent(); raw != "" {
			ctx = requestcontext.WithUserAgent(ctx, summarizeUserAgent(raw))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP prefers the leftmost X-Forwarded-For hop; the portal always sits
// behind the manufacturer's load balancer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func summarizeUserAgent(raw string) string {
	ua := useragent.New(raw)
	browser, version := ua.Browser()
	if browser == "" {
		return raw
	}
	summary := browser
	if version != "" {
		summary += " " + version
	}
	if osInfo := ua.OS(); osInfo != "" {
		summary += " (" + osInfo + ")"
	}
	return summary
}
