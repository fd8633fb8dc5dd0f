package chat

import "github.com/jcowley/roomcast/internal/types"

// Event is a push payload delivered through the fanout. Exactly one
// field is set.
type Event struct {
	Message      *types.Message `json:"message,omitempty"`
	MemberJoined *MemberChange  `json:"member_joined,omitempty"`
	MemberLeft   *MemberChange  `json:"member_left,omitempty"`
	History      *RoomHistory   `json:"history,omitempty"`
	RoomCreated  *types.Room    `json:"room_created,omitempty"`
	RoomDeleted  *RoomDeleted   `json:"room_deleted,omitempty"`
}

type MemberChange struct {
	RoomId   string `json:"room_id"`
	Identity string `json:"identity"`
}

type RoomHistory struct {
	RoomId   string          `json:"room_id"`
	Messages []types.Message `json:"messages"`
}

type RoomDeleted struct {
	RoomId string `json:"room_id"`
}

func newMessageEvent(msg types.Message) *Event {
	return &Event{Message: &msg}
}
