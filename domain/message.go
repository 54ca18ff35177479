// Package domain contains core concepts of the delivery core.
// This file defines direct messages and the identifiers derived from them.
// No runtime, network, or storage logic should be added here.
package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DirectMessage is a transient two-party message passed through the router.
// Raw keeps the inbound frame so the receiver gets every field the sender wrote.
type DirectMessage struct {
	Sender    string `validate:"required"`
	Receiver  string `validate:"required"`
	Text      string
	MessageID string
	SentAt    time.Time
	Raw       json.RawMessage
}

// Delivery tells which path a direct message took.
type Delivery string

const (
	DeliveryDropped Delivery = "dropped"
	DeliveryLive    Delivery = "live"
	DeliveryOffline Delivery = "offline"
)

// NewMessageID builds "<sender>_<unix millis>".
// Two messages from the same sender within one millisecond share an ID.
func NewMessageID(sender string, at time.Time) string {
	return fmt.Sprintf("%s_%d", sender, at.UnixMilli())
}

// ChatID is the two user ids sorted and joined, so both sides resolve the same thread.
func ChatID(a, b string) string {
	ids := []string{a, b}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// Payload returns the inbound frame with the generated messageId injected.
// Client fields are kept as raw JSON so their values go out byte for byte.
func (m DirectMessage) Payload() ([]byte, error) {
	fields := map[string]json.RawMessage{}
	if len(m.Raw) > 0 {
		if err := json.Unmarshal(m.Raw, &fields); err != nil {
			return nil, fmt.Errorf("decode raw frame: %w", err)
		}
	} else {
		for name, value := range map[string]string{
			"type":     FrameMessage,
			"sender":   m.Sender,
			"receiver": m.Receiver,
			"text":     m.Text,
		} {
			encoded, err := json.Marshal(value)
			if err != nil {
				return nil, err
			}
			fields[name] = encoded
		}
	}
	id, err := json.Marshal(m.MessageID)
	if err != nil {
		return nil, err
	}
	fields["messageId"] = id
	return json.Marshal(fields)
}
