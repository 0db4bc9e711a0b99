// Package realtime carries document change events from the writer to every
// connected client, within one instance through the Hub and across
// instances through a Redis channel.
package realtime

import (
	"encoding/json"
	"time"
)

type EventType string

const (
	DocumentUpdated EventType = "document.updated"
	DocumentDeleted EventType = "document.deleted"
	VersionCreated  EventType = "version.created"
	CommentAdded    EventType = "comment.added"
	CommentUpdated  EventType = "comment.updated"
	ThreadUpdated   EventType = "thread.updated"
	ThreadDeleted   EventType = "thread.deleted"
)

// Event is the unit pushed to live subscribers. Seq is the document
// sequence after the write, or zero for events that do not change the
// document record itself.
type Event struct {
	Type       EventType       `json:"type"`
	DocumentID string          `json:"documentId"`
	Seq        int64           `json:"seq,omitempty"`
	At         time.Time       `json:"at"`
	Origin     string          `json:"origin,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// NewEvent builds an event with data encoded as JSON. A nil data leaves
// the payload empty.
func NewEvent(t EventType, docID string, seq int64, data interface{}) (Event, error) {
	ev := Event{Type: t, DocumentID: docID, Seq: seq, At: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, err
		}
		ev.Data = raw
	}
	return ev, nil
}
