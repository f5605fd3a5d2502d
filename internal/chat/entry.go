// Package chat implements the conversation panel: an append-only history of
// user and agent entries and the submission flow against the run endpoint.
package chat

import (
	"encoding/json"
	"strings"
	"time"

	"asasense/internal/api"
)

// Role identifies who produced an entry.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
)

// ImagePrefix marks reply text that is a data-URI image.
const ImagePrefix = "data:image"

// Entry is one message in the conversation. Entries are never modified after
// they are appended.
type Entry struct {
	ID        string          `json:"id"`
	Role      Role            `json:"role"`
	Text      string          `json:"text"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	Steps     []api.Step      `json:"steps,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsImage reports whether the entry text is a data-URI image.
func (e Entry) IsImage() bool {
	return strings.HasPrefix(e.Text, ImagePrefix)
}

// HasRaw reports whether the full backend response is available.
func (e Entry) HasRaw() bool {
	return e.Role == RoleAgent && len(e.Raw) > 0
}
