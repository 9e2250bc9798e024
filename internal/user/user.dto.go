package user

import "encoding/json"

// ClerkWebhookEvent is the envelope Clerk (via svix) posts to /webhooks/clerk.
type ClerkWebhookEvent struct {
	Type   string          `json:"type"`
	Object string          `json:"object"`
	Data   json.RawMessage `json:"data"`
}

type ClerkUserData struct {
	ID      string `json:"id"`
	Deleted bool   `json:"deleted,omitempty"`
}
