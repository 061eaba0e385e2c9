package auth

import (
	"errors"
	"net/http"
	"strings"
)

// DefaultCookieName is the cookie that carries the session token.
const DefaultCookieName = "token"

// ErrMissingToken is returned when the request carries no session cookie.
var ErrMissingToken = errors.New("missing token")

// DefaultPublicPaths are reachable without a session.
var DefaultPublicPaths = []string{
	"/login",
	"/api/auth/login",
	"/api/auth/logout",
	"/api/health",
}

// Gate decides whether a request may proceed based on its session cookie.
type Gate struct {
	tokens     *TokenService
	cookieName string
	public     []string
}

func NewGate(tokens *TokenService, cookieName string, publicPaths ...string) *Gate {
	if cookieName == "" {
		cookieName = DefaultCookieName
	}
	if len(publicPaths) == 0 {
		publicPaths = DefaultPublicPaths
	}
	return &Gate{
		tokens:     tokens,
		cookieName: cookieName,
		public:     publicPaths,
	}
}

func (g *Gate) CookieName() string {
	return g.cookieName
}

// IsPublic reports whether path is, or sits below, an allowlisted path.
func (g *Gate) IsPublic(path string) bool {
	for _, p := range g.public {
		if path == p || strings.HasPrefix(path, strings.TrimSuffix(p, "/")+"/") {
			return true
		}
	}
	return false
}

// Authenticate extracts and verifies the session token of r.
func (g *Gate) Authenticate(r *http.Request) (*Identity, error) {
	cookie, err := r.Cookie(g.cookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrMissingToken
	}
	return g.tokens.Verify(cookie.Value)
}

// IsAPIPath reports whether path belongs to the JSON API rather than a page.
func IsAPIPath(path string) bool {
	return path == "/api" || strings.HasPrefix(path, "/api/")
}
