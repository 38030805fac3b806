// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

const (
	// maxReadBytes is the number of bytes to read
	// from a request body. It's intended to be used
	// with an io.LimitReader
	maxReadBytes = 1 * 1024 * 1024
)

// read consumes an io.Reader (wrapping with io.LimitReader)
// and returns either the resulting bytes or a non-nil error.
func read(r io.Reader) ([]byte, error) {
	r = io.LimitReader(r, maxReadBytes)
	return io.ReadAll(r)
}

// decodeBody reads a JSON request body into v. Malformed or empty bodies are
// validation errors.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("%w: missing request body", errValidation)
	}
	bs, err := read(r.Body)
	if err != nil {
		return fmt.Errorf("read request body: %w", err)
	}
	if len(strings.TrimSpace(string(bs))) == 0 {
		return fmt.Errorf("%w: missing request body", errValidation)
	}
	if err := json.Unmarshal(bs, v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errValidation)
	}
	return nil
}

// encodeError JSON encodes the supplied error as {"error": "..."} with the
// status code its kind maps to.
//
// Internal errors are logged and counted, the client only sees a generic
// message.
func encodeError(logger log.Logger, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	status := statusCode(err)
	if status == http.StatusInternalServerError {
		internalServerErrors.Add(1)
		logger.Log("http", "internal error", "error", err)
	}
	writeJSON(logger, w, status, map[string]any{
		"error": publicMessage(err),
	})
}

func writeJSON(logger log.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Log("http", "problem encoding response", "error", err)
	}
}

type contextKey int

const claimsKey contextKey = iota

func withClaims(ctx context.Context, claims *tokenClaims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// claimsFrom returns the verified token claims of an authenticated request.
func claimsFrom(ctx context.Context) *tokenClaims {
	claims, _ := ctx.Value(claimsKey).(*tokenClaims)
	return claims
}

// extractBearer pulls the token out of "Authorization: Bearer <token>".
func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// revocationStore remembers token ids which were logged out before they expired.
type revocationStore interface {
	Revoke(id string, ttl time.Duration) error
	Revoked(id string) (bool, error)
}

type authenticator struct {
	tokens  *tokenService
	revoked revocationStore
	logger  log.Logger
}

// verify resolves the bearer token on r into its claims.
func (a *authenticator) verify(r *http.Request) (*tokenClaims, error) {
	claims, err := a.tokens.verify(extractBearer(r))
	if err != nil {
		return nil, err
	}
	if a.revoked != nil {
		revoked, err := a.revoked.Revoked(claims.ID)
		if err != nil {
			return nil, fmt.Errorf("check token revocation: %w", err)
		}
		if revoked {
			return nil, errTokenRevoked
		}
	}
	return claims, nil
}

// middleware rejects requests without a valid bearer token and stores the
// claims on the request context for handlers.
func (a *authenticator) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := a.verify(r)
		if err != nil {
			authFailures.With("method", "jwt").Add(1)
			encodeError(a.logger, w, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
	})
}

// authorize runs the policy for the authenticated caller of r.
func authorize(r *http.Request, op operation, targetID string) error {
	claims := claimsFrom(r.Context())
	if claims == nil {
		return errTokenMissing
	}
	return check(claims.Role, claims.subject(), op, targetID)
}

// ensureSchema makes sure every migration has run before the request touches
// the database.
func ensureSchema(logger log.Logger, schema *schemaManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := schema.ensure(r.Context()); err != nil {
				encodeError(logger, w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

// logRequests writes one log line per request once it has been served.
func logRequests(logger log.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Log("transport", "HTTP", "method", r.Method, "path", r.URL.Path, "status", rec.status, "took", time.Since(start))
		})
	}
}

func addPingRoute(router *mux.Router) {
	router.Methods("GET").Path("/ping").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("PONG"))
	})
}
