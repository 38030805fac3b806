// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"net/http"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

// addAccountRoutes registers /auth/me and the /users resource. router must be
// protected by authenticator.middleware.
func addAccountRoutes(router *mux.Router, logger log.Logger, accounts accountRepository) {
	router.Methods("GET").Path("/auth/me").HandlerFunc(meRoute(logger, accounts))

	router.Methods("GET").Path("/users").HandlerFunc(listAccountsRoute(logger, accounts))
	router.Methods("POST").Path("/users").HandlerFunc(createAccountRoute(logger, accounts))
	router.Methods("GET").Path("/users/{id}").HandlerFunc(getAccountRoute(logger, accounts))
	router.Methods("PUT").Path("/users/{id}").HandlerFunc(updateAccountRoute(logger, accounts))
	router.Methods("DELETE").Path("/users/{id}").HandlerFunc(deleteAccountRoute(logger, accounts))
}

func meRoute(logger log.Logger, accounts accountRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims := claimsFrom(r.Context())
		if claims == nil {
			encodeError(logger, w, errTokenMissing)
			return
		}
		acct, err := accounts.get(r.Context(), claims.subject())
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]any{"user": acct})
	}
}

func listAccountsRoute(logger log.Logger, accounts accountRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := authorize(r, opListAccounts, ""); err != nil {
			encodeError(logger, w, err)
			return
		}
		users, err := accounts.list(r.Context())
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]any{"users": users})
	}
}

func createAccountRoute(logger log.Logger, accounts accountRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := authorize(r, opCreateAccount, ""); err != nil {
			encodeError(logger, w, err)
			return
		}
		var fields accountFields
		if err := decodeBody(r, &fields); err != nil {
			encodeError(logger, w, err)
			return
		}
		acct, err := accounts.create(r.Context(), fields)
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusCreated, map[string]any{"user": acct})
	}
}

func getAccountRoute(logger log.Logger, accounts accountRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := authorize(r, opReadAccount, id); err != nil {
			encodeError(logger, w, err)
			return
		}
		acct, err := accounts.get(r.Context(), id)
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]any{"user": acct})
	}
}

func updateAccountRoute(logger log.Logger, accounts accountRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := authorize(r, opUpdateAccount, id); err != nil {
			encodeError(logger, w, err)
			return
		}
		var fields accountFields
		if err := decodeBody(r, &fields); err != nil {
			encodeError(logger, w, err)
			return
		}

		// Sending back the current role is fine, changing it is admin only.
		if v := present(fields.Role); v != nil {
			requested, err := parseRole(*v)
			if err != nil {
				encodeError(logger, w, err)
				return
			}
			current, err := accounts.get(r.Context(), id)
			if err != nil {
				encodeError(logger, w, err)
				return
			}
			if requested != current.Role {
				if err := authorize(r, opUpdateAccountRole, id); err != nil {
					encodeError(logger, w, err)
					return
				}
			}
		}

		acct, err := accounts.update(r.Context(), id, fields)
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]any{"user": acct})
	}
}

func deleteAccountRoute(logger log.Logger, accounts accountRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := authorize(r, opDeleteAccount, id); err != nil {
			encodeError(logger, w, err)
			return
		}
		if err := accounts.delete(r.Context(), id); err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]string{"message": "user deleted"})
	}
}
