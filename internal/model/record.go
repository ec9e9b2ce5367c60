// Package model defines the shared type model for the knowledge graph:
// raw ingested records, entities, relationships, provenance pointers, and
// derived patterns.
package model

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
)

// Known record kinds delivered by the upstream sync collaborators.
const (
	KindMessage     = "message"
	KindEvent       = "event"
	KindPlay        = "play"
	KindSaved       = "saved"
	KindFile        = "file"
	KindTransaction = "transaction"
)

// RawRecord is an opaque ingested item from an upstream provider.
// (source, kind, external_id) is the stable dedup key: re-ingesting the
// same external id updates the stored record instead of duplicating it.
type RawRecord struct {
	ID          string          `json:"id" db:"id"`
	Source      string          `json:"source" db:"source"`
	Kind        string          `json:"kind" db:"kind"`
	ExternalID  string          `json:"external_id" db:"external_id"`
	Payload     json.RawMessage `json:"payload,omitempty" db:"payload"`
	ObservedAt  time.Time       `json:"observed_at" db:"observed_at"`
	LastUpdated time.Time       `json:"last_updated" db:"last_updated"`
}

// MessagePayload is the payload shape for kind "message".
type MessagePayload struct {
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Snippet string `json:"snippet,omitempty"`
}

// EventPayload is the payload shape for kind "event".
type EventPayload struct {
	Title     string    `json:"title,omitempty"`
	Location  string    `json:"location,omitempty"`
	Attendees []string  `json:"attendees,omitempty"`
	Start     time.Time `json:"start,omitempty"`
	End       time.Time `json:"end,omitempty"`
}

// PlayPayload is the payload shape for kind "play".
type PlayPayload struct {
	Track  string `json:"track,omitempty"`
	Artist string `json:"artist,omitempty"`
	Album  string `json:"album,omitempty"`
}

// SavedPayload is the payload shape for kind "saved" (bookmarked/liked items).
type SavedPayload struct {
	Title    string `json:"title,omitempty"`
	Creator  string `json:"creator,omitempty"`
	Category string `json:"category,omitempty"`
}

// FilePayload is the payload shape for kind "file".
type FilePayload struct {
	Name       string    `json:"name,omitempty"`
	Path       string    `json:"path,omitempty"`
	MimeType   string    `json:"mime_type,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty"`
}

// TransactionPayload is the payload shape for kind "transaction".
type TransactionPayload struct {
	Payee    string  `json:"payee,omitempty"`
	Category string  `json:"category,omitempty"`
	Amount   float64 `json:"amount,omitempty"`
	Currency string  `json:"currency,omitempty"`
}

// DecodePayload decodes a raw payload into the typed struct for a known
// record kind. Unknown kinds decode into a generic map so forward
// compatibility does not depend on this enum.
func DecodePayload(kind string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var out any
	switch kind {
	case KindMessage:
		out = &MessagePayload{}
	case KindEvent:
		out = &EventPayload{}
	case KindPlay:
		out = &PlayPayload{}
	case KindSaved:
		out = &SavedPayload{}
	case KindFile:
		out = &FilePayload{}
	case KindTransaction:
		out = &TransactionPayload{}
	default:
		m := map[string]any{}
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, eris.Wrapf(err, "model: decode %s payload", kind)
		}
		return m, nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return nil, eris.Wrapf(err, "model: decode %s payload", kind)
	}
	return out, nil
}
