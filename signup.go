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

// addSignupRoutes registers self-service account creation. When
// allowPrivileged is false callers may only register with the user role.
func addSignupRoutes(router *mux.Router, logger log.Logger, tokens *tokenService, accounts accountRepository, allowPrivileged bool) {
	router.Methods("POST").Path("/auth/register").HandlerFunc(signupRoute(logger, tokens, accounts, allowPrivileged))
}

func signupRoute(logger log.Logger, tokens *tokenService, accounts accountRepository, allowPrivileged bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var signup accountFields
		if err := decodeBody(r, &signup); err != nil {
			encodeError(logger, w, err)
			return
		}
		if v := present(signup.Role); v != nil && !allowPrivileged {
			rl, err := parseRole(*v)
			if err != nil {
				encodeError(logger, w, err)
				return
			}
			if rl != roleUser {
				encodeError(logger, w, fmt.Errorf("%w: registering with role %s is disabled", errForbidden, rl))
				return
			}
		}

		acct, err := accounts.create(r.Context(), signup)
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		token, _, err := tokens.issue(acct.ID, acct.Email, acct.Role)
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		logger.Log("signup", fmt.Sprintf("registered userId=%s", acct.ID))
		writeJSON(logger, w, http.StatusCreated, authResponse{Token: token, User: acct})
	}
}
