package domain

import (
	"encoding/json"
	"fmt"
)

// Live connection frame types.
const (
	FrameRegister     = "register"
	FrameMessage      = "message"
	FrameCreateGroup  = "createGroup"
	FrameGroupMessage = "groupMessage"
	FrameNewGroup     = "newGroup"
)

// Frame is the union of every inbound frame. Raw keeps the original bytes.
type Frame struct {
	Type string `json:"type"`

	// register
	UserID string `json:"userId"`

	// message
	Sender   string `json:"sender"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`

	// createGroup / groupMessage
	GroupName string   `json:"groupName"`
	Members   []string `json:"members"`

	// groupMessage
	FCMToken   string `json:"fcmToken"`
	SenderName string `json:"senderName"`
	SenderID   string `json:"senderId"`
	GroupID    string `json:"groupId"`
	MessageID  string `json:"messageId"`
	Body       string `json:"body"`
	ReceiverID string `json:"receiverId"`

	Raw json.RawMessage `json:"-"`
}

func DecodeFrame(data []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	f.Raw = append(json.RawMessage(nil), data...)
	return f, nil
}

func (f Frame) DirectMessage() DirectMessage {
	return DirectMessage{
		Sender:   f.Sender,
		Receiver: f.Receiver,
		Text:     f.Text,
		Raw:      f.Raw,
	}
}

// GroupMessage is a push-only group message; the client supplies the target token.
type GroupMessage struct {
	FCMToken   string `validate:"required"`
	GroupName  string `validate:"required"`
	SenderName string `validate:"required"`
	SenderID   string
	GroupID    string
	MessageID  string
	Body       string
	ReceiverID string
}

func (f Frame) GroupMessage() GroupMessage {
	return GroupMessage{
		FCMToken:   f.FCMToken,
		GroupName:  f.GroupName,
		SenderName: f.SenderName,
		SenderID:   f.SenderID,
		GroupID:    f.GroupID,
		MessageID:  f.MessageID,
		Body:       f.Body,
		ReceiverID: f.ReceiverID,
	}
}

// NewGroupFrame is pushed to live members when a group is created.
type NewGroupFrame struct {
	Type      string `json:"type"`
	GroupID   string `json:"groupId"`
	GroupName string `json:"groupName"`
}
