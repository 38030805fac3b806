// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

// Package tokenstore keeps a deny list of revoked session token ids using
// BuntDB (https://github.com/tidwall/buntdb).
//
// Entries expire on their own once the token they describe would have
// expired, so the store never grows beyond the set of live tokens.
package tokenstore

import (
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/buntdb"
)

const keyPrefix = "revoked:"

// Store is safe for concurrent use.
type Store struct {
	db *buntdb.DB
}

// New opens (or creates) the store at path. ":memory:" keeps everything in
// process memory.
func New(path string) (*Store, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, fmt.Errorf("tokenstore: open %s: %v", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Revoke marks id as revoked for ttl. A non-positive ttl means the token has
// already expired, in which case nothing is stored.
func (s *Store) Revoke(id string, ttl time.Duration) error {
	if id == "" {
		return errors.New("tokenstore: empty token id")
	}
	if ttl <= 0 {
		return nil
	}
	err := s.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(keyPrefix+id, time.Now().UTC().Format(time.RFC3339), &buntdb.SetOptions{
			Expires: true,
			TTL:     ttl,
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("tokenstore: problem revoking %s: %v", id, err)
	}
	return nil
}

// Revoked reports whether id was revoked and hasn't expired yet.
func (s *Store) Revoked(id string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *buntdb.Tx) error {
		_, err := tx.Get(keyPrefix + id)
		if errors.Is(err, buntdb.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("tokenstore: problem reading %s: %v", id, err)
	}
	return found, nil
}

// Len returns how many revocations are currently held.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *buntdb.Tx) error {
		var err error
		n, err = tx.Len()
		return err
	})
	return n, err
}
