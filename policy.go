// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
)

type operation string

const (
	opListAccounts      operation = "accounts.list"
	opCreateAccount     operation = "accounts.create"
	opReadAccount       operation = "accounts.read"
	opUpdateAccount     operation = "accounts.update"
	opUpdateAccountRole operation = "accounts.update_role"
	opDeleteAccount     operation = "accounts.delete"

	opListCustomers  operation = "customers.list"
	opReadCustomer   operation = "customers.read"
	opCreateCustomer operation = "customers.create"
	opUpdateCustomer operation = "customers.update"
	opDeleteCustomer operation = "customers.delete"
)

// rule lists who may perform an operation. owner allows the subject acting on
// their own record regardless of role.
type rule struct {
	roles []role
	owner bool
}

var policy = map[operation]rule{
	opListAccounts:      {roles: []role{roleAdmin}},
	opCreateAccount:     {roles: []role{roleAdmin}},
	opReadAccount:       {roles: []role{roleAdmin}, owner: true},
	opUpdateAccount:     {roles: []role{roleAdmin}, owner: true},
	opUpdateAccountRole: {roles: []role{roleAdmin}},
	opDeleteAccount:     {roles: []role{roleAdmin}},

	opListCustomers:  {roles: []role{roleAdmin, roleSupport}},
	opReadCustomer:   {roles: []role{roleAdmin, roleSupport}},
	opCreateCustomer: {roles: []role{roleAdmin}},
	opUpdateCustomer: {roles: []role{roleAdmin}},
	opDeleteCustomer: {roles: []role{roleAdmin}},
}

// check returns nil when a subject holding r may perform op against targetID.
// targetID is only consulted for operations with an owner rule.
func check(r role, subjectID string, op operation, targetID string) error {
	rl, ok := policy[op]
	if !ok {
		return fmt.Errorf("%w: unknown operation %s", errForbidden, op)
	}
	for i := range rl.roles {
		if rl.roles[i] == r {
			return nil
		}
	}
	if rl.owner && subjectID != "" && subjectID == targetID {
		return nil
	}
	return fmt.Errorf("%w: %s is not permitted for role %s", errForbidden, op, r)
}
