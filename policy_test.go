// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"testing"
)

func TestPolicy__check(t *testing.T) {
	cases := []struct {
		role      role
		subject   string
		op        operation
		target    string
		permitted bool
	}{
		{roleAdmin, "a", opListAccounts, "", true},
		{roleSupport, "s", opListAccounts, "", false},
		{roleUser, "u", opListAccounts, "", false},
		{roleUser, "u", opCreateAccount, "", false},
		{roleAdmin, "a", opDeleteAccount, "u", true},
		{roleUser, "u", opDeleteAccount, "u", false},

		// owner rules
		{roleUser, "u", opReadAccount, "u", true},
		{roleUser, "u", opReadAccount, "other", false},
		{roleSupport, "s", opReadAccount, "other", false},
		{roleAdmin, "a", opReadAccount, "other", true},
		{roleUser, "u", opUpdateAccount, "u", true},
		{roleUser, "u", opUpdateAccount, "other", false},
		{roleUser, "", opReadAccount, "", false},

		// role changes require admin, even on your own account
		{roleUser, "u", opUpdateAccountRole, "u", false},
		{roleSupport, "s", opUpdateAccountRole, "s", false},
		{roleAdmin, "a", opUpdateAccountRole, "u", true},

		{roleAdmin, "a", opListCustomers, "", true},
		{roleSupport, "s", opListCustomers, "", true},
		{roleUser, "u", opListCustomers, "", false},
		{roleSupport, "s", opReadCustomer, "c", true},
		{roleSupport, "s", opCreateCustomer, "", false},
		{roleSupport, "s", opUpdateCustomer, "c", false},
		{roleSupport, "s", opDeleteCustomer, "c", false},
		{roleAdmin, "a", opCreateCustomer, "", true},
		{roleAdmin, "a", opUpdateCustomer, "c", true},
		{roleAdmin, "a", opDeleteCustomer, "c", true},

		{roleAdmin, "a", operation("reports.export"), "", false},
	}
	for i := range cases {
		err := check(cases[i].role, cases[i].subject, cases[i].op, cases[i].target)
		if cases[i].permitted && err != nil {
			t.Errorf("case #%d %s/%s: got %v", i, cases[i].role, cases[i].op, err)
		}
		if !cases[i].permitted && !errors.Is(err, errForbidden) {
			t.Errorf("case #%d %s/%s: expected forbidden, got %v", i, cases[i].role, cases[i].op, err)
		}
	}
}
