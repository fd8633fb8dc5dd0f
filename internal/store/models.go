package store

import "time"

type Identity struct {
	Id        int    `gorm:"primaryKey"`
	Name      string // case-preserving
	NameLower string `gorm:"uniqueIndex"`
	// CurrentRoom is the external id of the room the identity is in, if any.
	CurrentRoom *string
	CreatedAt   time.Time
}

type Room struct {
	Id          int    `gorm:"primaryKey"`
	ExternalId  string `gorm:"uniqueIndex"`
	Name        string
	Description string
	Creator     string // identity name, case-preserving
	SeqId       int
	CreatedAt   time.Time
}

type Message struct {
	Id        string `gorm:"primaryKey"`
	RoomId    string `gorm:"index"` // room external id
	SeqId     int
	Author    string
	Content   string
	Kind      string
	CreatedAt time.Time
}

type CreateRoomParams struct {
	ExternalId  string
	Name        string
	Description string
	Creator     string
}

type AppendMessageParams struct {
	RoomId    string
	Author    string
	Content   string
	Kind      string
	Timestamp time.Time
}
