// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-kit/kit/log"
)

func strPtr(s string) *string { return &s }

func testAccountRepository(t *testing.T) *sqlAccountRepository {
	t.Helper()
	return newAccountRepository(log.NewNopLogger(), testDatabase(t), testHasher())
}

func TestAccount__parseRole(t *testing.T) {
	cases := []struct {
		input    string
		expected role
		valid    bool
	}{
		{"user", roleUser, true},
		{"Admin", roleAdmin, true},
		{" support ", roleSupport, true},
		{"", "", false},
		{"root", "", false},
	}
	for i := range cases {
		r, err := parseRole(cases[i].input)
		if cases[i].valid && (err != nil || r != cases[i].expected) {
			t.Errorf("input=%q got %q, err=%v", cases[i].input, r, err)
		}
		if !cases[i].valid && !errors.Is(err, errValidation) {
			t.Errorf("input=%q expected validation error, got %v", cases[i].input, err)
		}
	}
}

func TestAccount__email(t *testing.T) {
	cases := []struct {
		input string
		valid bool
	}{
		{"", false},
		{"test@moov.io", true},
		{"a@b.com", true},
		{"not-an-email", false},
		{"John <john@moov.io>", false},
	}
	for i := range cases {
		err := checkEmail(cases[i].input)
		if cases[i].valid && err == nil {
			continue // valid
		}
		if !cases[i].valid && err != nil {
			continue // known bad
		}
		t.Errorf("input=%q, err=%v", cases[i].input, err)
	}
}

func TestAccount__pass(t *testing.T) {
	cases := []struct {
		input string
		valid bool
	}{
		{"", false},
		{"   ", false},
		{"secret1", true},
		{"superlongpassword", true},
	}
	for i := range cases {
		err := checkPassword(cases[i].input)
		if cases[i].valid && err == nil {
			continue // valid
		}
		if !cases[i].valid && err != nil {
			continue // known bad
		}
		t.Errorf("input=%q, err=%v", cases[i].input, err)
	}
}

func TestAccountRepository__create(t *testing.T) {
	repo := testAccountRepository(t)
	ctx := context.Background()

	acct, err := repo.create(ctx, accountFields{
		FirstName: strPtr("Jane"),
		Email:     strPtr("jane@moov.io"),
		Password:  strPtr("secret1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	if acct.ID == "" || acct.Email != "jane@moov.io" || acct.Role != roleUser {
		t.Errorf("got %#v", acct)
	}
	if acct.FirstName == nil || *acct.FirstName != "Jane" {
		t.Errorf("first_name: %v", acct.FirstName)
	}
	if acct.LastName != nil {
		t.Errorf("last_name: %v", *acct.LastName)
	}
	if acct.CreatedAt.IsZero() || acct.LastLoginAt != nil {
		t.Errorf("timestamps: %v %v", acct.CreatedAt, acct.LastLoginAt)
	}

	// the stored digest is never the plaintext and verifies
	_, digest, err := repo.credentials(ctx, "jane@moov.io")
	if err != nil {
		t.Fatal(err)
	}
	if digest == "secret1" || !repo.hasher.verify("secret1", digest) {
		t.Errorf("bad digest %q", digest)
	}

	// explicit role
	admin, err := repo.create(ctx, accountFields{Email: strPtr("admin@moov.io"), Password: strPtr("x"), Role: strPtr("admin")})
	if err != nil {
		t.Fatal(err)
	}
	if admin.Role != roleAdmin {
		t.Errorf("got role %q", admin.Role)
	}
}

func TestAccountRepository__createErrors(t *testing.T) {
	repo := testAccountRepository(t)
	ctx := context.Background()

	if _, err := repo.create(ctx, accountFields{Email: strPtr("a@b.com"), Password: strPtr("secret1")}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		fields   accountFields
		expected error
	}{
		{accountFields{Password: strPtr("secret1")}, errValidation},
		{accountFields{Email: strPtr("  "), Password: strPtr("secret1")}, errValidation},
		{accountFields{Email: strPtr("b@b.com")}, errValidation},
		{accountFields{Email: strPtr("b@b.com"), Password: strPtr("secret1"), Role: strPtr("root")}, errValidation},
		{accountFields{Email: strPtr("a@b.com"), Password: strPtr("secret1")}, errConflict},
	}
	for i := range cases {
		_, err := repo.create(ctx, cases[i].fields)
		if !errors.Is(err, cases[i].expected) {
			t.Errorf("case #%d: got %v", i, err)
		}
	}

	// email comparisons are case-sensitive as stored
	if _, err := repo.create(ctx, accountFields{Email: strPtr("A@b.com"), Password: strPtr("secret1")}); err != nil {
		t.Errorf("got %v", err)
	}
}

func TestAccountRepository__createRace(t *testing.T) {
	repo := testAccountRepository(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.create(ctx, accountFields{Email: strPtr("race@moov.io"), Password: strPtr("secret1")})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	created := 0
	for err := range errs {
		switch {
		case err == nil:
			created++
		case errors.Is(err, errConflict):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("created %d accounts", created)
	}
}

func TestAccountRepository__list(t *testing.T) {
	repo := testAccountRepository(t)
	ctx := context.Background()

	accounts, err := repo.list(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if accounts == nil || len(accounts) != 0 {
		t.Errorf("got %#v", accounts)
	}

	for _, email := range []string{"a@moov.io", "b@moov.io", "c@moov.io"} {
		if _, err := repo.create(ctx, accountFields{Email: strPtr(email), Password: strPtr("secret1")}); err != nil {
			t.Fatal(err)
		}
	}
	accounts, err = repo.list(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(accounts) != 3 {
		t.Fatalf("got %d accounts", len(accounts))
	}
	for i := 1; i < len(accounts); i++ {
		if accounts[i-1].ID < accounts[i].ID {
			t.Errorf("not ordered by id desc: %s before %s", accounts[i-1].ID, accounts[i].ID)
		}
	}
}

func TestAccountRepository__get(t *testing.T) {
	repo := testAccountRepository(t)

	if _, err := repo.get(context.Background(), "missing"); !errors.Is(err, errNotFound) {
		t.Errorf("got %v", err)
	}
	if _, _, err := repo.credentials(context.Background(), "missing@moov.io"); !errors.Is(err, errNotFound) {
		t.Errorf("got %v", err)
	}
}

func TestAccountRepository__update(t *testing.T) {
	repo := testAccountRepository(t)
	ctx := context.Background()

	acct, err := repo.create(ctx, accountFields{
		FirstName: strPtr("Jane"),
		LastName:  strPtr("Doe"),
		Email:     strPtr("jane@moov.io"),
		Password:  strPtr("secret1"),
	})
	if err != nil {
		t.Fatal(err)
	}
	other, err := repo.create(ctx, accountFields{Email: strPtr("other@moov.io"), Password: strPtr("secret1")})
	if err != nil {
		t.Fatal(err)
	}

	// only last_name changes
	updated, err := repo.update(ctx, acct.ID, accountFields{LastName: strPtr("Smith")})
	if err != nil {
		t.Fatal(err)
	}
	if *updated.LastName != "Smith" || *updated.FirstName != "Jane" || updated.Email != acct.Email || updated.Role != acct.Role {
		t.Errorf("got %#v", updated)
	}
	if !updated.CreatedAt.Equal(acct.CreatedAt) {
		t.Errorf("created_at changed: %v vs %v", updated.CreatedAt, acct.CreatedAt)
	}

	// blank fields are ignored
	updated, err = repo.update(ctx, acct.ID, accountFields{FirstName: strPtr(""), Email: strPtr(" ")})
	if err != nil {
		t.Fatal(err)
	}
	if *updated.FirstName != "Jane" || updated.Email != "jane@moov.io" {
		t.Errorf("got %#v", updated)
	}

	// role and password
	updated, err = repo.update(ctx, acct.ID, accountFields{Role: strPtr("support"), Password: strPtr("newsecret")})
	if err != nil {
		t.Fatal(err)
	}
	if updated.Role != roleSupport {
		t.Errorf("got role %q", updated.Role)
	}
	_, digest, _ := repo.credentials(ctx, "jane@moov.io")
	if !repo.hasher.verify("newsecret", digest) || repo.hasher.verify("secret1", digest) {
		t.Error("password wasn't rehashed")
	}

	// email uniqueness excludes the account itself
	if _, err := repo.update(ctx, acct.ID, accountFields{Email: strPtr("jane@moov.io")}); err != nil {
		t.Errorf("self email: %v", err)
	}
	if _, err := repo.update(ctx, acct.ID, accountFields{Email: strPtr(other.Email)}); !errors.Is(err, errConflict) {
		t.Errorf("expected conflict, got %v", err)
	}
	if _, err := repo.update(ctx, acct.ID, accountFields{Role: strPtr("root")}); !errors.Is(err, errValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
	for _, fields := range []accountFields{
		{LastName: strPtr("x")},
		{Email: strPtr(other.Email)},
		{Email: strPtr("not-an-email")},
		{Role: strPtr("root")},
	} {
		if _, err := repo.update(ctx, "missing", fields); !errors.Is(err, errNotFound) {
			t.Errorf("expected not found, got %v", err)
		}
	}
}

func TestAccountRepository__touchLogin(t *testing.T) {
	repo := testAccountRepository(t)
	ctx := context.Background()

	acct, err := repo.create(ctx, accountFields{Email: strPtr("jane@moov.io"), Password: strPtr("secret1")})
	if err != nil {
		t.Fatal(err)
	}
	when := time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)
	if err := repo.touchLogin(ctx, acct.ID, when); err != nil {
		t.Fatal(err)
	}
	acct, err = repo.get(ctx, acct.ID)
	if err != nil {
		t.Fatal(err)
	}
	if acct.LastLoginAt == nil || !acct.LastLoginAt.Equal(when) {
		t.Errorf("got %v", acct.LastLoginAt)
	}
}

func TestAccountRepository__delete(t *testing.T) {
	repo := testAccountRepository(t)
	ctx := context.Background()

	acct, err := repo.create(ctx, accountFields{Email: strPtr("jane@moov.io"), Password: strPtr("secret1")})
	if err != nil {
		t.Fatal(err)
	}
	if err := repo.delete(ctx, acct.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := repo.get(ctx, acct.ID); !errors.Is(err, errNotFound) {
		t.Errorf("got %v", err)
	}
	if err := repo.delete(ctx, acct.ID); !errors.Is(err, errNotFound) {
		t.Errorf("second delete: got %v", err)
	}

	// the email can be reused afterwards
	if _, err := repo.create(ctx, accountFields{Email: strPtr("jane@moov.io"), Password: strPtr("secret1")}); err != nil {
		t.Errorf("got %v", err)
	}
}
