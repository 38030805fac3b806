// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/google/uuid"
)

type role string

const (
	roleUser    role = "user"
	roleAdmin   role = "admin"
	roleSupport role = "support"
)

func parseRole(s string) (role, error) {
	switch r := role(strings.ToLower(strings.TrimSpace(s))); r {
	case roleUser, roleAdmin, roleSupport:
		return r, nil
	}
	return "", fmt.Errorf("%w: unknown role %q", errValidation, s)
}

// Account is a login-capable identity. The password digest is never part of
// this struct so it can't be encoded into a response by accident.
type Account struct {
	ID          string     `json:"id"`
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	Email       string     `json:"email"`
	Role        role       `json:"role"`
	CreatedAt   time.Time  `json:"created_at"`
	LastLoginAt *time.Time `json:"last_login_at"`
}

// accountFields is the body of account create and update requests. Nil (or
// blank) fields are left alone on update.
type accountFields struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Email     *string `json:"email"`
	Role      *string `json:"role"`
	Password  *string `json:"password"`
}

var (
	errAccountNotFound = fmt.Errorf("%w: account not found", errNotFound)
	errEmailTaken      = fmt.Errorf("%w: email already exists", errConflict)
)

func checkEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", errValidation)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: invalid email %q", errValidation, email)
	}
	return nil
}

func checkPassword(pass string) error {
	if strings.TrimSpace(pass) == "" {
		return fmt.Errorf("%w: password is required", errValidation)
	}
	return nil
}

// present returns the trimmed value of s, or nil when s is absent or blank.
func present(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

type accountRepository interface {
	list(ctx context.Context) ([]*Account, error)
	create(ctx context.Context, fields accountFields) (*Account, error)
	get(ctx context.Context, id string) (*Account, error)

	// credentials returns the account and its password digest for email.
	credentials(ctx context.Context, email string) (*Account, string, error)
	touchLogin(ctx context.Context, id string, at time.Time) error

	update(ctx context.Context, id string, fields accountFields) (*Account, error)
	delete(ctx context.Context, id string) error
}

type sqlAccountRepository struct {
	db     *database
	hasher passwordHasher
	logger log.Logger
	now    func() time.Time
}

func newAccountRepository(logger log.Logger, db *database, hasher passwordHasher) *sqlAccountRepository {
	return &sqlAccountRepository{
		db:     db,
		hasher: hasher,
		logger: logger,
		now:    time.Now,
	}
}

const accountColumns = `id, first_name, last_name, email, role, created_at, last_login_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanAccount(s scanner, extra ...any) (*Account, error) {
	var a Account
	dest := append([]any{&a.ID, &a.FirstName, &a.LastName, &a.Email, &a.Role, &a.CreatedAt, &a.LastLoginAt}, extra...)
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *sqlAccountRepository) list(ctx context.Context) ([]*Account, error) {
	rows, err := r.db.query(ctx, `SELECT `+accountColumns+` FROM users ORDER BY id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	defer rows.Close()

	out := make([]*Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *sqlAccountRepository) create(ctx context.Context, fields accountFields) (*Account, error) {
	email := ""
	if v := present(fields.Email); v != nil {
		email = *v
	}
	if err := checkEmail(email); err != nil {
		return nil, err
	}
	accountRole := roleUser
	if v := present(fields.Role); v != nil {
		rl, err := parseRole(*v)
		if err != nil {
			return nil, err
		}
		accountRole = rl
	}
	password := ""
	if fields.Password != nil {
		password = *fields.Password
	}
	if err := checkPassword(password); err != nil {
		return nil, err
	}

	// The UNIQUE constraint decides, this only saves hashing a password.
	if taken, err := r.emailTaken(ctx, email, ""); err != nil {
		return nil, err
	} else if taken {
		return nil, errEmailTaken
	}

	digest, err := r.hasher.hash(password)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	_, err = r.db.exec(ctx,
		`INSERT INTO users (id, first_name, last_name, email, role, password_hash, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, present(fields.FirstName), present(fields.LastName), email, string(accountRole), digest, r.now().UTC(),
	)
	if err != nil {
		if col, ok := uniqueViolation(err); ok && col != "id" {
			return nil, errEmailTaken
		}
		return nil, fmt.Errorf("insert account: %w", err)
	}

	acct, err := r.get(ctx, id)
	if errors.Is(err, errNotFound) {
		return nil, fmt.Errorf("account %s missing after insert", id)
	}
	if err == nil {
		r.logger.Log("accounts", "created", "id", id, "role", accountRole)
	}
	return acct, err
}

func (r *sqlAccountRepository) emailTaken(ctx context.Context, email, excludeID string) (bool, error) {
	var n int
	err := r.db.queryRow(ctx, `SELECT COUNT(*) FROM users WHERE email = ? AND id <> ?`, email, excludeID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check email: %w", err)
	}
	return n > 0, nil
}

func (r *sqlAccountRepository) get(ctx context.Context, id string) (*Account, error) {
	a, err := scanAccount(r.db.queryRow(ctx, `SELECT `+accountColumns+` FROM users WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

func (r *sqlAccountRepository) credentials(ctx context.Context, email string) (*Account, string, error) {
	var digest string
	row := r.db.queryRow(ctx, `SELECT `+accountColumns+`, password_hash FROM users WHERE email = ?`, email)
	a, err := scanAccount(row, &digest)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", errAccountNotFound
	}
	if err != nil {
		return nil, "", fmt.Errorf("read credentials: %w", err)
	}
	return a, digest, nil
}

func (r *sqlAccountRepository) touchLogin(ctx context.Context, id string, at time.Time) error {
	if _, err := r.db.exec(ctx, `UPDATE users SET last_login_at = ? WHERE id = ?`, at.UTC(), id); err != nil {
		return fmt.Errorf("touch login: %w", err)
	}
	return nil
}

func (r *sqlAccountRepository) update(ctx context.Context, id string, fields accountFields) (*Account, error) {
	// absent ids are 404 even when the other checks would fail
	if _, err := r.get(ctx, id); err != nil {
		return nil, err
	}

	email := present(fields.Email)
	if email != nil {
		if err := checkEmail(*email); err != nil {
			return nil, err
		}
		if taken, err := r.emailTaken(ctx, *email, id); err != nil {
			return nil, err
		} else if taken {
			return nil, errEmailTaken
		}
	}

	var accountRole *string
	if v := present(fields.Role); v != nil {
		rl, err := parseRole(*v)
		if err != nil {
			return nil, err
		}
		s := string(rl)
		accountRole = &s
	}

	var digest *string
	if fields.Password != nil && *fields.Password != "" {
		d, err := r.hasher.hash(*fields.Password)
		if err != nil {
			return nil, err
		}
		digest = &d
	}

	res, err := r.db.exec(ctx, `UPDATE users SET
    first_name = COALESCE(?, first_name),
    last_name = COALESCE(?, last_name),
    email = COALESCE(?, email),
    role = COALESCE(?, role),
    password_hash = COALESCE(?, password_hash)
WHERE id = ?`,
		present(fields.FirstName), present(fields.LastName), email, accountRole, digest, id,
	)
	if err != nil {
		if _, ok := uniqueViolation(err); ok {
			return nil, errEmailTaken
		}
		return nil, fmt.Errorf("update account: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, errAccountNotFound
	}
	return r.get(ctx, id)
}

// delete removes the account. Linked customers keep their record with
// user_id cleared.
func (r *sqlAccountRepository) delete(ctx context.Context, id string) error {
	res, err := r.db.exec(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if n == 0 {
		return errAccountNotFound
	}
	r.logger.Log("accounts", "deleted", "id", id)
	return nil
}
