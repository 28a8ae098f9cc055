// Package publisher defines scan notifications and the sink they are
// published to.
package publisher

import (
	"context"
	"time"
)

// Event types.
const (
	EventFreeItemFound = "free_item_found"
	EventScanCompleted = "scan_completed"
)

// Publisher pushes a JSON-encodable payload to a named topic and returns a
// message ID.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Notification is the payload of every scan event.
type Notification struct {
	Event          string    `json:"event"`
	ScanID         string    `json:"scanId"`
	Domain         string    `json:"domain"`
	ScannedURL     string    `json:"scannedUrl"`
	At             time.Time `json:"at"`
	FreeItemsFound int       `json:"freeItemsFound"`
	Title          string    `json:"title,omitempty"`
	Price          string    `json:"price,omitempty"`
	CartURL        string    `json:"cartUrl,omitempty"`
	Stopped        bool      `json:"stopped,omitempty"`
	Artifacts      []string  `json:"artifacts,omitempty"`
}

// Nop drops every message.
type Nop struct{}

// Publish returns an empty ID.
func (Nop) Publish(context.Context, string, any) (string, error) {
	return "", nil
}

// EventName exposes the event type as a message attribute.
func (n Notification) EventName() string {
	return n.Event
}
