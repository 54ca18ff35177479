package domain

const (
	ClickActionFlutter = "FLUTTER_NOTIFICATION_CLICK"

	ChannelMessages      = "messages_channel"
	ChannelGroupMessages = "group_messages_channel"
	ChannelHighImportant = "high_importance_channel"

	MessageTypeChat      = "chat"
	MessageTypeGroupChat = "groupChat"
)

type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// PushMessage is what the push gateway accepts.
// Data values are strings only, as device platforms require.
type PushMessage struct {
	Token        string
	Notification Notification
	Data         map[string]string
	Android      *AndroidConfig
	APNS         *APNSConfig
}

type AndroidConfig struct {
	Priority          string
	ChannelID         string
	Sound             string
	ClickAction       string
	DefaultSound      bool
	DefaultVibrate    bool
	NotificationCount int
}

type APNSConfig struct {
	Priority         string
	Title            string
	Body             string
	Sound            string
	Badge            int
	ThreadID         string
	ContentAvailable bool
}
