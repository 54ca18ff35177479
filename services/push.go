package services

import (
	"chat-relay/domain"
	"fmt"
)

// chatPush builds the notification sent to an offline receiver of a direct message.
func chatPush(token, senderName string, msg domain.DirectMessage) domain.PushMessage {
	return domain.PushMessage{
		Token: token,
		Notification: domain.Notification{
			Title: senderName,
			Body:  msg.Text,
		},
		Data: map[string]string{
			"senderId":     msg.Sender,
			"chatId":       domain.ChatID(msg.Sender, msg.Receiver),
			"messageId":    msg.MessageID,
			"messageType":  domain.MessageTypeChat,
			"click_action": domain.ClickActionFlutter,
		},
		Android: &domain.AndroidConfig{
			Priority:    "high",
			ChannelID:   domain.ChannelMessages,
			Sound:       "default",
			ClickAction: domain.ClickActionFlutter,
		},
		APNS: &domain.APNSConfig{
			Priority: "10",
			Sound:    "default",
			Badge:    1,
		},
	}
}

// groupPush builds the notification for a group message.
// The body is prefixed with the sender name and iOS groups it by thread.
func groupPush(msg domain.GroupMessage) domain.PushMessage {
	body := fmt.Sprintf("%s: %s", msg.SenderName, msg.Body)
	return domain.PushMessage{
		Token: msg.FCMToken,
		Notification: domain.Notification{
			Title: msg.GroupName,
			Body:  body,
		},
		Data: map[string]string{
			"senderId":     msg.SenderID,
			"groupId":      msg.GroupID,
			"messageId":    msg.MessageID,
			"messageType":  domain.MessageTypeGroupChat,
			"groupName":    msg.GroupName,
			"senderName":   msg.SenderName,
			"messageText":  msg.Body,
			"click_action": domain.ClickActionFlutter,
		},
		Android: &domain.AndroidConfig{
			Priority:    "high",
			ChannelID:   domain.ChannelGroupMessages,
			Sound:       "default",
			ClickAction: domain.ClickActionFlutter,
		},
		APNS: &domain.APNSConfig{
			Priority: "10",
			Title:    msg.GroupName,
			Body:     body,
			Sound:    "default",
			Badge:    1,
			ThreadID: msg.GroupID,
		},
	}
}

// QueuedPush builds the notification for an item drained from the pending queue.
func QueuedPush(n domain.PendingNotification) domain.PushMessage {
	return domain.PushMessage{
		Token:        n.Token,
		Notification: n.Notification,
		Data:         n.Data,
		Android: &domain.AndroidConfig{
			Priority:          "high",
			ChannelID:         domain.ChannelHighImportant,
			Sound:             "default",
			ClickAction:       domain.ClickActionFlutter,
			DefaultSound:      true,
			DefaultVibrate:    true,
			NotificationCount: 1,
		},
		APNS: &domain.APNSConfig{
			Priority:         "10",
			Sound:            "default",
			Badge:            1,
			ContentAvailable: true,
		},
	}
}
