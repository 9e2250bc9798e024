package user

import (
	"time"

	"github.com/google/uuid"
)

// User maps an identity provider subject onto the internal id every other
// table keys on.
type User struct {
	ID        uuid.UUID `json:"id"`
	ClerkID   string    `json:"clerkId"`
	CreatedAt time.Time `json:"createdAt"`
}
