package chat

// Event is the envelope for everything sent over a websocket.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Inbound is what clients send: room joins/leaves and typing signals.
type Inbound struct {
	Type           string `json:"type"` // "join_room", "leave_room", "typing_start", "typing_stop"
	ConversationID int64  `json:"conversation_id"`
}

// RoomPresence notifies room occupants that a member started or stopped
// actively viewing the conversation. Distinct from global online state.
type RoomPresence struct {
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	Status         string `json:"status"` // "joined" or "left"
}

// UserPresence notifies co-members about global online/offline changes.
type UserPresence struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"` // "online" or "offline"
}

// Typing is relayed to other room occupants as-is.
type Typing struct {
	ConversationID int64 `json:"conversation_id"`
	UserID         int64 `json:"user_id"`
}
