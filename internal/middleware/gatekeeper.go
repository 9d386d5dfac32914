package middleware

import (
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/whatsassist/gateway/internal/service"
)

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

var authPages = map[string]bool{
	"/login":      true,
	"/verify":     true,
	"/verify-otp": true,
}

// Gatekeeper redirects page requests according to session state before any
// route handler runs. API routes, static assets and the favicon pass through.
type Gatekeeper struct {
	jwtService *service.JWTService
	logger     *logrus.Logger
}

func NewGatekeeper(jwtService *service.JWTService, logger *logrus.Logger) *Gatekeeper {
	return &Gatekeeper{
		jwtService: jwtService,
		logger:     logger,
	}
}

func (g *Gatekeeper) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if bypassed(path) {
			next.ServeHTTP(w, r)
			return
		}

		if path == "/" {
			http.Redirect(w, r, LoginPath, http.StatusTemporaryRedirect)
			return
		}

		valid := g.hasValidSession(r)
		isAuthPage := authPages[path]

		switch {
		case !valid && !isAuthPage:
			http.Redirect(w, r, LoginPath, http.StatusTemporaryRedirect)
		case valid && isAuthPage:
			http.Redirect(w, r, DashboardPath, http.StatusTemporaryRedirect)
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// hasValidSession collapses every verification failure into "invalid".
func (g *Gatekeeper) hasValidSession(r *http.Request) bool {
	cookie, err := r.Cookie(AuthCookieName)
	if err != nil || cookie.Value == "" {
		return false
	}

	if _, err := g.jwtService.VerifyToken(cookie.Value); err != nil {
		g.logger.WithError(err).Debug("Rejected session cookie")
		return false
	}
	return true
}

func bypassed(path string) bool {
	switch {
	case path == "/api" || strings.HasPrefix(path, "/api/"):
		return true
	case strings.HasPrefix(path, "/static/"):
		return true
	case path == "/favicon.ico", path == "/health":
		return true
	}
	return false
}
