// Copyright 2018 The ACH Authors
// Use of this source code is governed by an Apache License
// license that can be found in the LICENSE file.

package main

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// passwordHasher derives and checks stored credentials. Nothing outside this
// file knows which algorithm backs it.
type passwordHasher interface {
	hash(plaintext string) (string, error)
	verify(plaintext, digest string) bool
}

const (
	argonSaltLength = 16
	argonKeyLength  = 32
)

// argonHasher produces argon2id digests in the PHC string format:
//
//	$argon2id$v=19$m=65536,t=1,p=4$<salt>$<key>
//
// Parameters are stored alongside each digest so they can be raised later
// without invalidating existing passwords.
type argonHasher struct {
	memory  uint32 // KiB
	time    uint32
	threads uint8
}

func newArgonHasher(memoryKiB, iterations uint32) *argonHasher {
	if memoryKiB == 0 {
		memoryKiB = 64 * 1024
	}
	if iterations == 0 {
		iterations = 1
	}
	return &argonHasher{
		memory:  memoryKiB,
		time:    iterations,
		threads: 4,
	}
}

func (h *argonHasher) hash(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: password is required", errValidation)
	}
	salt := make([]byte, argonSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}
	key := argon2.IDKey([]byte(plaintext), salt, h.time, h.memory, h.threads, argonKeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.memory, h.time, h.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

func (h *argonHasher) verify(plaintext, digest string) bool {
	params, salt, key, err := decodeArgonDigest(digest)
	if err != nil {
		return false
	}
	other := argon2.IDKey([]byte(plaintext), salt, params.time, params.memory, params.threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(key, other) == 1
}

var errMalformedDigest = errors.New("malformed password digest")

func decodeArgonDigest(digest string) (*argonHasher, []byte, []byte, error) {
	parts := strings.Split(digest, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, nil, nil, errMalformedDigest
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, nil, nil, errMalformedDigest
	}

	params := &argonHasher{}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &params.memory, &params.time, &params.threads); err != nil {
		return nil, nil, nil, errMalformedDigest
	}
	if params.memory == 0 || params.time == 0 || params.threads == 0 {
		return nil, nil, nil, errMalformedDigest
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, nil, nil, errMalformedDigest
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return nil, nil, nil, errMalformedDigest
	}
	return params, salt, key, nil
}
