// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

var errInvalidCredentials = fmt.Errorf("%w: invalid email or password", errUnauthenticated)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// authResponse is returned from login and register.
type authResponse struct {
	Token string   `json:"token"`
	User  *Account `json:"user"`
}

func addLoginRoutes(router *mux.Router, logger log.Logger, tokens *tokenService, hasher passwordHasher, accounts accountRepository) {
	router.Methods("POST").Path("/auth/login").HandlerFunc(loginRoute(logger, tokens, hasher, accounts))
}

func loginRoute(logger log.Logger, tokens *tokenService, hasher passwordHasher, accounts accountRepository) http.HandlerFunc {
	// Unknown emails are checked against this digest so they cost as much
	// as a wrong password.
	dummyDigest, err := hasher.hash(uuid.NewString())
	if err != nil {
		logger.Log("login", fmt.Sprintf("problem creating dummy digest: %v", err))
	}

	return func(w http.ResponseWriter, r *http.Request) {
		var login loginRequest
		if err := decodeBody(r, &login); err != nil {
			encodeError(logger, w, err)
			return
		}
		login.Email = strings.TrimSpace(login.Email)
		if login.Email == "" || login.Password == "" {
			encodeError(logger, w, fmt.Errorf("%w: email and password are required", errValidation))
			return
		}

		acct, digest, err := accounts.credentials(r.Context(), login.Email)
		if err != nil {
			if errors.Is(err, errNotFound) {
				hasher.verify(login.Password, dummyDigest)
				// Mark this (and password check) as failure only because
				// the user is involved at this point. Otherwise it's their
				// developer's problem (i.e. bad json).
				authFailures.With("method", "web").Add(1)
				err = errInvalidCredentials
			}
			encodeError(logger, w, err)
			return
		}
		if !hasher.verify(login.Password, digest) {
			authFailures.With("method", "web").Add(1)
			logger.Log("login", fmt.Sprintf("userId=%s failed password check", acct.ID))
			encodeError(logger, w, errInvalidCredentials)
			return
		}

		// success route, let's finish!
		now := time.Now().UTC()
		if err := accounts.touchLogin(r.Context(), acct.ID, now); err != nil {
			logger.Log("login", fmt.Sprintf("userId=%s: %v", acct.ID, err))
		} else {
			acct.LastLoginAt = &now
		}

		token, _, err := tokens.issue(acct.ID, acct.Email, acct.Role)
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		authSuccesses.With("method", "web").Add(1)
		writeJSON(logger, w, http.StatusOK, authResponse{Token: token, User: acct})
	}
}
