package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/nerrad567/garagegate/internal/access"
	"github.com/nerrad567/garagegate/internal/auth"
)

// principal is the authenticated caller of a request.
type principal struct {
	Subject string
	Scope   auth.Scope

	// Root is set when the caller presented the shared secret itself.
	Root bool
}

// TokenRequest asks for a session token.
type TokenRequest struct {
	Subject    string `json:"subject"`
	Scope      string `json:"scope"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// TokenResponse carries a session token.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	Scope       string    `json:"scope"`
	ExpiresAt   time.Time `json:"expires_at"`
	ExpiresIn   int       `json:"expires_in"`
}

// authenticate accepts the shared secret or a session token.
func (s *Server) authenticate(token string) (principal, error) {
	if access.TokenMatches(token, s.secret) {
		return principal{Subject: "shared-secret", Scope: auth.ScopeControl, Root: true}, nil
	}
	claims, err := s.issuer.Parse(token)
	if err != nil {
		return principal{}, err
	}
	return principal{Subject: claims.Subject, Scope: claims.Scope}, nil
}

// principalFrom returns the caller stored by authMiddleware. Outside the
// protected routes it is the zero principal, which has no scope.
func principalFrom(ctx context.Context) principal {
	p, _ := ctx.Value(ctxKeyPrincipal).(principal)
	return p
}

// handleIssueToken exchanges the shared secret for a scoped session token.
func (s *Server) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	scope, err := auth.ParseScope(req.Scope)
	if err != nil {
		writeBadRequest(w, "scope must be monitor or control")
		return
	}
	if req.TTLSeconds < 0 {
		writeBadRequest(w, "ttl_seconds must not be negative")
		return
	}

	token, expires, err := s.issuer.Issue(req.Subject, scope, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		s.logger.Error("issuing session token", "error", err)
		writeInternalError(w, "failed to issue token")
		return
	}

	s.logger.Info("session token issued", "subject", req.Subject, "scope", scope, "expires_at", expires)
	writeJSON(w, http.StatusCreated, TokenResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		Scope:       string(scope),
		ExpiresAt:   expires.UTC(),
		ExpiresIn:   int(time.Until(expires).Round(time.Second) / time.Second),
	})
}
