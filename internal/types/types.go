package types

import "time"

// SystemAuthor is the reserved author name for membership notices.
const SystemAuthor = "SYSTEM"

type MessageKind string

const (
	KindUserMessage MessageKind = "user_message"
	KindJoined      MessageKind = "joined"
	KindLeft        MessageKind = "left"
)

type User struct {
	Name        string `json:"name"`
	CurrentRoom string `json:"current_room,omitempty"`
	IsPresent   bool   `json:"is_present,omitempty"`
}

type Room struct {
	Id           string    `json:"id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	Creator      string    `json:"creator"`
	Participants []User    `json:"participants,omitempty"`
	SeqId        int       `json:"seq_id"`
	CreatedAt    time.Time `json:"created_at"`
}

type Message struct {
	Id        string      `json:"id"`
	RoomId    string      `json:"room_id"`
	Author    string      `json:"author"`
	Content   string      `json:"content"`
	Kind      MessageKind `json:"kind"`
	SeqId     int         `json:"seq_id"`
	Timestamp time.Time   `json:"timestamp"`
}
