// CLAUDE:SUMMARY Pluggable ID generators (UUIDv7, short base-36) and the prefixed run/sheet identifiers used by coursesync.
// Package idgen provides pluggable ID generation for coursesync.
//
// Constructors that persist rows (store, coursesync) accept a Generator so
// tests can pin identifiers.
package idgen

import (
	"crypto/rand"
	"fmt"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator that produces RFC 9562 UUID v7 strings.
// Time-sortable, so run history lists in creation order.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Short returns a Generator of lowercase base-36 IDs of the given length.
// Used for human-facing suffixes such as destination folder names.
func Short(length int) Generator {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	return func() string {
		buf := make([]byte, length)
		if _, err := rand.Read(buf); err != nil {
			panic("idgen: crypto/rand failed: " + err.Error())
		}
		for i := range buf {
			buf[i] = alphabet[int(buf[i])%len(alphabet)]
		}
		return string(buf)
	}
}

// Prefixed wraps a Generator and prepends a fixed prefix to every ID.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Default is UUIDv7.
var Default Generator = UUIDv7()

// Run IDs identify one pipeline invocation.
var Run Generator = Prefixed("run_", Default)

// Sheet IDs identify a registered course sheet.
var Sheet Generator = Prefixed("sht_", Default)

// New produces an ID using the Default generator.
func New() string {
	return Default()
}

// Parse validates a UUID string, ignoring a known prefix, and returns it
// unchanged or an error.
func Parse(s string) (string, error) {
	raw := s
	for _, p := range []string{"run_", "sht_"} {
		if len(raw) > len(p) && raw[:len(p)] == p {
			raw = raw[len(p):]
			break
		}
	}
	if _, err := uuid.Parse(raw); err != nil {
		return "", fmt.Errorf("invalid id %q: %w", s, err)
	}
	return s, nil
}
