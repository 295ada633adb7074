package hangfire

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// makeJobID mints an opaque 32-hex-character job identifier. IDs are never
// minted by Redis.
func makeJobID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:])
}
