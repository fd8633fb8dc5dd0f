package chat

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/teris-io/shortid"
	"gorm.io/gorm"

	"github.com/jcowley/roomcast/internal/store"
	"github.com/jcowley/roomcast/internal/types"
)

var validate = validator.New()

type createRoomParams struct {
	Name        string `validate:"required,min=3,max=50"`
	Description string `validate:"max=200"`
}

type sendParams struct {
	Content string `validate:"required,max=1024"`
}

// Coordinator is the authoritative state machine for room lifecycle and
// membership. A single mutex serializes every membership mutation and
// every message append, which fixes the per-room message order and makes
// the leave-then-join sequence of a displacing join visible in log order.
type Coordinator struct {
	log    *log.Logger
	store  store.Repository
	fanout *Fanout

	mu sync.RWMutex
	// room id -> lowered identity name -> identity name as registered
	participants map[string]map[string]string
	// lowered identity name -> room id
	identityRooms map[string]string
}

func NewCoordinator(logger *log.Logger, repo store.Repository, fanout *Fanout) *Coordinator {
	return &Coordinator{
		log:           logger,
		store:         repo,
		fanout:        fanout,
		participants:  make(map[string]map[string]string),
		identityRooms: make(map[string]string),
	}
}

// JoinResult reports what a join actually did.
type JoinResult struct {
	Room types.Room
	// AlreadyMember is set when the identity was already in the room
	// and the join was an idempotent no-op.
	AlreadyMember bool
	// Displaced is the id of the room the identity was removed from
	// before joining, if any.
	Displaced string
}

func (c *Coordinator) CreateRoom(name, description, creator string) (types.Room, error) {
	if err := validate.Struct(createRoomParams{Name: name, Description: description}); err != nil {
		return types.Room{}, NewValidationError("invalid room parameters", err)
	}

	identity, err := c.store.GetIdentity(creator)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Room{}, NewNotFoundError("identity not found")
		}
		return types.Room{}, fmt.Errorf("get identity: %w", err)
	}

	id, err := shortid.Generate()
	if err != nil {
		return types.Room{}, fmt.Errorf("generate room id: %w", err)
	}

	dbRoom, err := c.store.CreateRoom(store.CreateRoomParams{
		ExternalId:  id,
		Name:        name,
		Description: description,
		Creator:     identity.Name,
	})
	if err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	room := roomInfo(dbRoom, nil)
	c.fanout.Broadcast(&Event{RoomCreated: &room})

	return room, nil
}

// DeleteRoom removes the room and its messages and clears every
// participant's current-room pointer. Only the creator may delete.
func (c *Coordinator) DeleteRoom(roomId, requester string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	dbRoom, err := c.store.GetRoom(roomId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFoundError("room not found")
		}
		return fmt.Errorf("get room: %w", err)
	}

	if !strings.EqualFold(dbRoom.Creator, requester) {
		return NewAuthorizationError("only the room creator may delete it")
	}

	if err := c.store.ClearRoomPointers(roomId); err != nil {
		return fmt.Errorf("clear room pointers: %w", err)
	}
	if err := c.store.DeleteMessages(roomId); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := c.store.DeleteRoom(roomId); err != nil {
		return fmt.Errorf("delete room: %w", err)
	}

	for member := range c.participants[roomId] {
		delete(c.identityRooms, member)
	}
	delete(c.participants, roomId)

	c.fanout.DropGroup(roomId)
	c.fanout.Broadcast(&Event{RoomDeleted: &RoomDeleted{RoomId: roomId}})

	return nil
}

// Join adds the identity to the room. Re-joining the current room is an
// idempotent no-op. If the identity is in a different room it leaves
// that room first; both the Left and the Joined system notices are
// appended, in that order, before Join returns.
func (c *Coordinator) Join(roomId, identity string) (JoinResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	dbRoom, err := c.store.GetRoom(roomId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return JoinResult{}, NewNotFoundError("room not found")
		}
		return JoinResult{}, fmt.Errorf("get room: %w", err)
	}

	id, err := c.store.GetIdentity(identity)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return JoinResult{}, NewNotFoundError("identity not found")
		}
		return JoinResult{}, fmt.Errorf("get identity: %w", err)
	}

	key := strings.ToLower(id.Name)
	current, inRoom := c.identityRooms[key]
	if inRoom && current == roomId {
		return JoinResult{Room: roomInfo(dbRoom, c.participantList(roomId)), AlreadyMember: true}, nil
	}

	res := JoinResult{}
	if inRoom {
		if err := c.leaveLocked(current, id.Name); err != nil {
			return JoinResult{}, fmt.Errorf("leave %q: %w", current, err)
		}
		res.Displaced = current
	}

	if err := c.store.SetCurrentRoom(id.Name, &roomId); err != nil {
		return JoinResult{}, fmt.Errorf("set current room: %w", err)
	}

	if c.participants[roomId] == nil {
		c.participants[roomId] = make(map[string]string)
	}
	c.participants[roomId][key] = id.Name
	c.identityRooms[key] = roomId

	c.appendSystemMessage(roomId, fmt.Sprintf("%s joined the room", id.Name), types.KindJoined)

	res.Room = roomInfo(dbRoom, c.participantList(roomId))
	return res, nil
}

// Leave removes the identity from the room. It fails with the
// membership kind if the identity is not currently a member.
func (c *Coordinator) Leave(roomId, identity string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.store.GetRoom(roomId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return NewNotFoundError("room not found")
		}
		return fmt.Errorf("get room: %w", err)
	}

	return c.leaveLocked(roomId, identity)
}

func (c *Coordinator) leaveLocked(roomId, identity string) error {
	key := strings.ToLower(identity)
	name, ok := c.participants[roomId][key]
	if !ok {
		return NewMembershipError("not a member of the room")
	}

	if err := c.store.SetCurrentRoom(name, nil); err != nil {
		return fmt.Errorf("clear current room: %w", err)
	}

	delete(c.participants[roomId], key)
	if len(c.participants[roomId]) == 0 {
		delete(c.participants, roomId)
	}
	delete(c.identityRooms, key)

	c.appendSystemMessage(roomId, fmt.Sprintf("%s left the room", name), types.KindLeft)

	return nil
}

// Send validates membership, appends a user message and fans it out to
// the room, sender included.
func (c *Coordinator) Send(roomId, author, content string) (types.Message, error) {
	if err := validate.Struct(sendParams{Content: content}); err != nil {
		return types.Message{}, NewValidationError("invalid message content", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.store.GetRoom(roomId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Message{}, NewNotFoundError("room not found")
		}
		return types.Message{}, fmt.Errorf("get room: %w", err)
	}

	name, ok := c.participants[roomId][strings.ToLower(author)]
	if !ok {
		return types.Message{}, NewMembershipError("not a member of the room")
	}

	dbMsg, err := c.store.AppendMessage(store.AppendMessageParams{
		RoomId:    roomId,
		Author:    name,
		Content:   content,
		Kind:      string(types.KindUserMessage),
		Timestamp: Now(),
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("append message: %w", err)
	}

	msg := messageInfo(dbMsg)
	c.fanout.ToRoom(roomId, newMessageEvent(msg))

	return msg, nil
}

func (c *Coordinator) IsMember(roomId, identity string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.participants[roomId][strings.ToLower(identity)]
	return ok
}

func (c *Coordinator) CurrentRoom(identity string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	roomId, ok := c.identityRooms[strings.ToLower(identity)]
	return roomId, ok
}

// Room returns the room with its current participant list.
func (c *Coordinator) Room(roomId string) (types.Room, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dbRoom, err := c.store.GetRoom(roomId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.Room{}, NewNotFoundError("room not found")
		}
		return types.Room{}, fmt.Errorf("get room: %w", err)
	}

	return roomInfo(dbRoom, c.participantList(roomId)), nil
}

// appendSystemMessage records a membership notice and fans it out. The
// triggering connection is not yet in the room's group on the join
// path, so a plain room fanout reaches exactly the pre-existing
// listeners.
func (c *Coordinator) appendSystemMessage(roomId, content string, kind types.MessageKind) {
	dbMsg, err := c.store.AppendMessage(store.AppendMessageParams{
		RoomId:    roomId,
		Author:    types.SystemAuthor,
		Content:   content,
		Kind:      string(kind),
		Timestamp: Now(),
	})
	if err != nil {
		// membership has already changed; the notice is best-effort
		c.log.Printf("append system message to %q: %v", roomId, err)
		return
	}

	c.fanout.ToRoom(roomId, newMessageEvent(messageInfo(dbMsg)))
}

func (c *Coordinator) participantList(roomId string) []types.User {
	members := c.participants[roomId]
	if len(members) == 0 {
		return nil
	}

	users := make([]types.User, 0, len(members))
	for _, name := range members {
		users = append(users, types.User{Name: name, CurrentRoom: roomId})
	}

	return users
}

func roomInfo(r store.Room, participants []types.User) types.Room {
	return types.Room{
		Id:           r.ExternalId,
		Name:         r.Name,
		Description:  r.Description,
		Creator:      r.Creator,
		Participants: participants,
		SeqId:        r.SeqId,
		CreatedAt:    r.CreatedAt,
	}
}

func messageInfo(m store.Message) types.Message {
	return types.Message{
		Id:        m.Id,
		RoomId:    m.RoomId,
		Author:    m.Author,
		Content:   m.Content,
		Kind:      types.MessageKind(m.Kind),
		SeqId:     m.SeqId,
		Timestamp: m.CreatedAt,
	}
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
