package store

import "time"

const (
	KindPrivate = "private"
	KindGroup   = "group"
	KindNearby  = "nearby"
)

const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

const (
	TypeText  = "text"
	TypeImage = "image"
)

type User struct {
	ID        int64
	Username  string
	Image     string
	PushToken string
	CreatedAt time.Time
}

type Conversation struct {
	ID          int64
	Kind        string
	Name        string
	Icon        string
	Description string
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Membership is the unit of per-user visibility and unread accounting.
// DeletedAt is the clear-my-history cursor: message history and unread
// counting for this member only consider messages created at or after it.
type Membership struct {
	ConversationID int64
	UserID         int64
	Role           string
	IsArchived     bool
	ArchivedAt     *time.Time
	DeletedAt      *time.Time
	LastReadAt     *time.Time
	UnreadCount    int
	CreatedAt      time.Time
}

type Message struct {
	ID             int64
	ConversationID int64
	SenderID       int64
	SenderName     string
	Content        string
	Type           string
	CreatedAt      time.Time
	Reads          []ReadReceipt
}

type ReadReceipt struct {
	MessageID int64     `json:"message_id"`
	UserID    int64     `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

// InboxRow is one conversation in a member's inbox listing.
type InboxRow struct {
	Conversation Conversation
	Membership   Membership
	LastMessage  *Message
	// For private and nearby conversations: the peer.
	OtherUserID int64
	OtherName   string
	OtherImage  string
}
