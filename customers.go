// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-kit/kit/log"
	"github.com/gorilla/mux"
)

// addCustomerRoutes registers the /customers resource. router must be
// protected by authenticator.middleware.
func addCustomerRoutes(router *mux.Router, logger log.Logger, customers customerRepository) {
	router.Methods("GET").Path("/customers").HandlerFunc(listCustomersRoute(logger, customers))
	router.Methods("POST").Path("/customers").HandlerFunc(createCustomerRoute(logger, customers))
	router.Methods("GET").Path("/customers/{id}").HandlerFunc(getCustomerRoute(logger, customers))
	router.Methods("PUT").Path("/customers/{id}").HandlerFunc(updateCustomerRoute(logger, customers))
	router.Methods("DELETE").Path("/customers/{id}").HandlerFunc(deleteCustomerRoute(logger, customers))
}

// readCustomerFilter parses page, limit, search, status and province.
func readCustomerFilter(q url.Values) (customerFilter, error) {
	filter := customerFilter{
		Search:   q.Get("search"),
		Status:   q.Get("status"),
		Province: q.Get("province"),
	}
	for _, p := range []struct {
		name string
		dest *int
	}{
		{"page", &filter.Page},
		{"limit", &filter.Limit},
	} {
		v := strings.TrimSpace(q.Get(p.name))
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return filter, fmt.Errorf("%w: %s must be a number", errValidation, p.name)
		}
		*p.dest = n
	}
	return filter, nil
}

func listCustomersRoute(logger log.Logger, customers customerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := authorize(r, opListCustomers, ""); err != nil {
			encodeError(logger, w, err)
			return
		}
		filter, err := readCustomerFilter(r.URL.Query())
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		results, page, err := customers.list(r.Context(), filter)
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]any{
			"customers":  results,
			"pagination": page,
		})
	}
}

func createCustomerRoute(logger log.Logger, customers customerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := authorize(r, opCreateCustomer, ""); err != nil {
			encodeError(logger, w, err)
			return
		}
		var fields customerFields
		if err := decodeBody(r, &fields); err != nil {
			encodeError(logger, w, err)
			return
		}
		c, err := customers.create(r.Context(), fields, claimsFrom(r.Context()).subject())
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusCreated, map[string]any{"customer": c})
	}
}

func getCustomerRoute(logger log.Logger, customers customerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := authorize(r, opReadCustomer, id); err != nil {
			encodeError(logger, w, err)
			return
		}
		c, err := customers.get(r.Context(), id)
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]any{"customer": c})
	}
}

func updateCustomerRoute(logger log.Logger, customers customerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := authorize(r, opUpdateCustomer, id); err != nil {
			encodeError(logger, w, err)
			return
		}
		var fields customerFields
		if err := decodeBody(r, &fields); err != nil {
			encodeError(logger, w, err)
			return
		}
		c, err := customers.update(r.Context(), id, fields, claimsFrom(r.Context()).subject())
		if err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]any{"customer": c})
	}
}

func deleteCustomerRoute(logger log.Logger, customers customerRepository) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]
		if err := authorize(r, opDeleteCustomer, id); err != nil {
			encodeError(logger, w, err)
			return
		}
		if err := customers.delete(r.Context(), id); err != nil {
			encodeError(logger, w, err)
			return
		}
		writeJSON(logger, w, http.StatusOK, map[string]string{"message": "customer deleted"})
	}
}
