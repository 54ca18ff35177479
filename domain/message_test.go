package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirectMessage_Payload_Keeps_Client_Fields_Verbatim(t *testing.T) {
	req := require.New(t)

	// Given a frame carrying an integer beyond float64 precision and a nested object
	raw := json.RawMessage(`{"type":"message","sender":"alice","receiver":"bob","text":"hi","clientSeq":9007199254740993,"meta":{"reply":12345678901234567890}}`)
	msg := DirectMessage{Sender: "alice", Receiver: "bob", Text: "hi", MessageID: "alice_1735689600000", Raw: raw}

	// When the payload is built
	payload, err := msg.Payload()
	req.NoError(err)

	// Then every client value goes out unchanged next to the generated messageId
	var fields map[string]json.RawMessage
	req.NoError(json.Unmarshal(payload, &fields))
	req.Equal("9007199254740993", string(fields["clientSeq"]))
	req.JSONEq(`{"reply":12345678901234567890}`, string(fields["meta"]))
	req.Equal(`"alice_1735689600000"`, string(fields["messageId"]))
}

func TestDirectMessage_Payload_Without_Raw_Frame(t *testing.T) {
	req := require.New(t)
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	msg := DirectMessage{Sender: "alice", Receiver: "bob", Text: "hi", MessageID: NewMessageID("alice", at)}

	payload, err := msg.Payload()

	req.NoError(err)
	req.JSONEq(`{"type":"message","sender":"alice","receiver":"bob","text":"hi","messageId":"alice_1735689600000"}`, string(payload))
}

func TestDirectMessage_Payload_Overrides_Client_MessageId(t *testing.T) {
	req := require.New(t)
	msg := DirectMessage{MessageID: "alice_1", Raw: json.RawMessage(`{"messageId":"forged","text":"x"}`)}

	payload, err := msg.Payload()

	req.NoError(err)
	req.JSONEq(`{"messageId":"alice_1","text":"x"}`, string(payload))
}
