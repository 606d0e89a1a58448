package handlers

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"sync"
	"time"
)

const (
	csrfCookieName = "csrf_token"
	csrfFormField  = "csrf_token"
	csrfHeader     = "X-CSRF-Token"
	csrfTokenLen   = 32
	csrfMaxAge     = 12 * time.Hour
)

// csrfManager handles CSRF token generation and validation
type csrfManager struct {
	mu     sync.RWMutex
	tokens map[string]time.Time // token -> expiry
}

var csrf = &csrfManager{
	tokens: make(map[string]time.Time),
}

// generateToken creates a new cryptographically secure CSRF token
func (m *csrfManager) generateToken() (string, error) {
	bytes := make([]byte, csrfTokenLen)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	token := base64.URLEncoding.EncodeToString(bytes)

	m.mu.Lock()
	m.tokens[token] = time.Now().Add(csrfMaxAge)
	m.mu.Unlock()

	return token, nil
}

// validateToken checks if a token is valid and not expired
func (m *csrfManager) validateToken(token string) bool {
	if token == "" {
		return false
	}

	m.mu.RLock()
	expiry, exists := m.tokens[token]
	m.mu.RUnlock()

	if !exists {
		return false
	}

	return time.Now().Before(expiry)
}

// cleanup removes expired tokens (called periodically)
func (m *csrfManager) cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for token, expiry := range m.tokens {
		if now.After(expiry) {
			delete(m.tokens, token)
		}
	}
}

// getOrCreateToken gets existing token from cookie or creates new one
func (h *Handler) getOrCreateCSRFToken(w http.ResponseWriter, r *http.Request) string {
	// Check for existing valid token in cookie
	if cookie, err := r.Cookie(csrfCookieName); err == nil {
		if csrf.validateToken(cookie.Value) {
			return cookie.Value
		}
	}

	// Generate new token
	token, err := csrf.generateToken()
	if err != nil {
		return ""
	}

	// Set cookie
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(csrfMaxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})

	return token
}

// csrfProtect rejects state-changing requests without a valid token
func (h *Handler) csrfProtect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.validateCSRF(r) {
			http.Error(w, "Invalid CSRF token", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// validateCSRF checks CSRF token on POST requests
func (h *Handler) validateCSRF(r *http.Request) bool {
	// Skip CSRF validation if disabled (desktop mode)
	if h.disableCSRF {
		return true
	}

	// Only validate POST, PUT, DELETE
	if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
		return true
	}

	// Get token from cookie
	cookie, err := r.Cookie(csrfCookieName)
	if err != nil {
		return false
	}

	// API calls send the token in a header; plain forms in a field
	token := r.Header.Get(csrfHeader)
	if token == "" {
		if err := r.ParseForm(); err != nil {
			return false
		}
		token = r.FormValue(csrfFormField)
	}

	// Tokens must match and be valid
	return cookie.Value == token && csrf.validateToken(token)
}

// StartCSRFCleanup removes expired tokens every hour until ctx is done
func StartCSRFCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				csrf.cleanup()
			}
		}
	}()
}
