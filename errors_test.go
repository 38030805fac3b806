// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestErrors__statusCode(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{nil, http.StatusOK},
		{fmt.Errorf("%w: email is required", errValidation), http.StatusBadRequest},
		{errTokenExpired, http.StatusUnauthorized},
		{errTokenInvalid, http.StatusUnauthorized},
		{fmt.Errorf("%w: admin role required", errForbidden), http.StatusForbidden},
		{fmt.Errorf("%w: customer", errNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: email already exists", errConflict), http.StatusConflict},
		{errors.New("disk I/O error"), http.StatusInternalServerError},
	}
	for i := range cases {
		if v := statusCode(cases[i].err); v != cases[i].status {
			t.Errorf("err=%v got %d, expected %d", cases[i].err, v, cases[i].status)
		}
	}
}

func TestErrors__publicMessage(t *testing.T) {
	if msg := publicMessage(errors.New("UNIQUE constraint failed: users.email")); msg != "internal server error" {
		t.Errorf("leaked storage error: %q", msg)
	}
	err := fmt.Errorf("%w: email already exists", errConflict)
	if msg := publicMessage(err); msg != "conflict: email already exists" {
		t.Errorf("got %q", msg)
	}
}
