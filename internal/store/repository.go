package store

// Repository is the process-lifetime store behind the chat core: the
// identity directory, the room records and the append-only message log.
// Room-level lookups are keyed by the room's external id.
type Repository interface {
	Close() error
	CreateIdentity(name string) (Identity, error)
	GetIdentity(name string) (Identity, error)
	IdentityExists(name string) bool
	SetCurrentRoom(name string, roomId *string) error
	ClearRoomPointers(roomId string) error
	CreateRoom(params CreateRoomParams) (Room, error)
	GetRoom(externalId string) (Room, error)
	ListRooms() ([]Room, error)
	DeleteRoom(externalId string) error
	AppendMessage(params AppendMessageParams) (Message, error)
	ListMessages(roomId string) ([]Message, error)
	LastMessages(roomId string, n int) ([]Message, error)
	DeleteMessages(roomId string) error
}
