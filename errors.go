// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"net/http"
)

// Error kinds returned by repositories, the token service and the policy.
//
// Callers wrap these with fmt.Errorf("%w: ...") so the message after the colon
// is safe to show a client. Anything not wrapping one of these is treated as
// an internal error and its text never leaves the process.
var (
	errValidation      = errors.New("validation error")
	errUnauthenticated = errors.New("authentication error")
	errForbidden       = errors.New("authorization error")
	errNotFound        = errors.New("not found")
	errConflict        = errors.New("conflict")
)

// statusCode maps an error onto the HTTP status we respond with.
func statusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, errValidation):
		return http.StatusBadRequest
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, errNotFound):
		return http.StatusNotFound
	case errors.Is(err, errConflict):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// publicMessage returns the message we're willing to hand a client for err.
func publicMessage(err error) string {
	if statusCode(err) == http.StatusInternalServerError {
		return "internal server error"
	}
	return err.Error()
}
