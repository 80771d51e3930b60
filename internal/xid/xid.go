package xid

import (
	"fmt"

	"github.com/google/uuid"
)

// New returns a random identity. An empty prefix yields a bare UUID, which is
// what the postgres tables expect.
func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%s-%s", prefix, uuid.NewString())
	}
	if prefix == "" {
		return id.String()
	}
	return fmt.Sprintf("%s-%s", prefix, id.String())
}

// Short returns the first block of an identity, used in human-facing labels.
func Short(id string) string {
	if id == "" {
		return ""
	}
	if parsed, err := uuid.Parse(id); err == nil {
		return parsed.String()[:8]
	}
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
