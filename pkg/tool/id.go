package tool

import (
	"crypto/rand"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

func GenerateUUIDV7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// GenerateULID returns a lexicographically sortable id, used as the
// per-attempt idempotency key for downstream reporting APIs.
func GenerateULID() string {
	return ulid.MustNew(ulid.Now(), rand.Reader).String()
}
