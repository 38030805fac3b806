// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

// addLogoutRoutes must be registered on a router protected by
// authenticator.middleware.
func addLogoutRoutes(router *mux.Router, logger log.Logger, tokens *tokenService, revocations revocationStore) {
	router.Methods("POST").Path("/auth/logout").HandlerFunc(logoutRoute(logger, tokens, revocations))
}

func logoutRoute(logger log.Logger, tokens *tokenService, revocations revocationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		if claims == nil {
			encodeError(logger, w, errTokenMissing)
			return
		}
		// the entry only needs to outlive the token itself
		if err := revocations.Revoke(claims.ID, tokens.remaining(claims)); err != nil {
			encodeError(logger, w, fmt.Errorf("revoke token: %w", err))
			return
		}
		authInactivations.With("method", "jwt").Add(1)
		logger.Log("logout", fmt.Sprintf("userId=%s", claims.subject()))
		writeJSON(logger, w, http.StatusOK, map[string]string{"message": "logged out"})
	}
}
