// Package idgen generates correlation ids for job runs and webhook
// deliveries, backed by nanoid.
package idgen

import (
	"fmt"

	nanoid "github.com/matoous/go-nanoid/v2"
)

// Prefixes for the kinds of invocation the bridge tags in its logs.
const (
	RunPrefix     = "run-"
	WebhookPrefix = "wh-"
)

// Alphabet defines the character set used for the random portion of the ID.
const Alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Length is the number of random characters generated (excluding the prefix).
const Length = 12

// RunID returns a new id for one scheduled or CLI job run.
func RunID() string { return MustWithPrefix(RunPrefix) }

// WebhookID returns a new id for one webhook delivery.
func WebhookID() string { return MustWithPrefix(WebhookPrefix) }

// WithPrefix returns a new unique ID with the given prefix.
func WithPrefix(prefix string) (string, error) {
	id, err := nanoid.Generate(Alphabet, Length)
	if err != nil {
		return "", fmt.Errorf("idgen: %w", err)
	}
	return prefix + id, nil
}

// MustWithPrefix is WithPrefix for callers that only use the id for log
// correlation. If the random source fails it returns the bare prefix.
func MustWithPrefix(prefix string) string {
	id, err := WithPrefix(prefix)
	if err != nil {
		return prefix
	}
	return id
}
