package api

import (
	"crypto/sha256"
	"crypto/subtle"
	"net/http"
	"sync"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/google/uuid"
)

const (
	adminCookieName = "router_admin"
	adminSessionTTL = 12 * time.Hour
)

// adminSessions holds opaque admin session tokens in memory. Tokens expire
// after adminSessionTTL; expired entries are pruned lazily on validation.
type adminSessions struct {
	mu       sync.Mutex
	password string
	tokens   map[string]time.Time
	now      func() time.Time
}

func newAdminSessions(password string) *adminSessions {
	return &adminSessions{
		password: password,
		tokens:   make(map[string]time.Time),
		now:      time.Now,
	}
}

// enabled reports whether an admin password is configured at all.
func (a *adminSessions) enabled() bool {
	return a.password != ""
}

// login validates the password (constant-time) and mints a session token.
func (a *adminSessions) login(password string) (string, bool) {
	if !a.enabled() {
		return "", false
	}
	want := sha256.Sum256([]byte(a.password))
	got := sha256.Sum256([]byte(password))
	if subtle.ConstantTimeCompare(want[:], got[:]) != 1 {
		return "", false
	}

	token := uuid.New().String()
	a.mu.Lock()
	a.tokens[token] = a.now().Add(adminSessionTTL)
	a.mu.Unlock()
	return token, true
}

// validate reports whether token is a live admin session.
func (a *adminSessions) validate(token string) bool {
	if token == "" {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	for t, expiry := range a.tokens {
		if expiry.Before(now) {
			delete(a.tokens, t)
		}
	}
	_, ok := a.tokens[token]
	return ok
}

// logout invalidates the token.
func (a *adminSessions) logout(token string) {
	a.mu.Lock()
	delete(a.tokens, token)
	a.mu.Unlock()
}

// requireAdmin guards admin routes with the session cookie.
func (s *Server) requireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		cookie, err := c.Request().Cookie(adminCookieName)
		if err != nil || !s.admin.validate(cookie.Value) {
			return echo.NewHTTPError(http.StatusUnauthorized, "admin session required")
		}
		return next(c)
	}
}

// adminLoginHandler handles POST /admin/login.
func (s *Server) adminLoginHandler(c *echo.Context) error {
	if !s.admin.enabled() {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "admin login is not configured")
	}

	var req AdminLoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	token, ok := s.admin.login(req.Password)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid password")
	}

	http.SetCookie(c.Response(), &http.Cookie{
		Name:     adminCookieName,
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(adminSessionTTL),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// adminLogoutHandler handles POST /admin/logout.
func (s *Server) adminLogoutHandler(c *echo.Context) error {
	if cookie, err := c.Request().Cookie(adminCookieName); err == nil {
		s.admin.logout(cookie.Value)
	}
	http.SetCookie(c.Response(), &http.Cookie{
		Name:     adminCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

// adminSessionHandler handles GET /admin/session.
func (s *Server) adminSessionHandler(c *echo.Context) error {
	authenticated := false
	if cookie, err := c.Request().Cookie(adminCookieName); err == nil {
		authenticated = s.admin.validate(cookie.Value)
	}
	return c.JSON(http.StatusOK, map[string]bool{"authenticated": authenticated})
}
