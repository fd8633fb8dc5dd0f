package chat

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/jcowley/roomcast/internal/stats"
	"github.com/jcowley/roomcast/internal/store"
	"github.com/jcowley/roomcast/internal/types"
)

type identityParams struct {
	Name string `validate:"required,min=2,max=32"`
}

// Service is the gateway-facing surface of the chat core. Both the
// request/response gateway and the push gateway call into it; the two
// entry points produce identical downstream effects because every
// mutation funnels through the same coordinator.
type Service struct {
	log          *log.Logger
	store        store.Repository
	registry     *Registry
	coordinator  *Coordinator
	fanout       *Fanout
	stats        stats.StatsProvider
	historyLimit int
}

func NewService(logger *log.Logger, repo store.Repository, st stats.StatsProvider, historyLimit int) *Service {
	fanout := NewFanout(logger)
	s := &Service{
		log:          logger,
		store:        repo,
		registry:     NewRegistry(),
		coordinator:  NewCoordinator(logger, repo, fanout),
		fanout:       fanout,
		stats:        st,
		historyLimit: historyLimit,
	}

	s.stats.RegisterMetric("ActiveConnections")
	s.stats.RegisterMetric("ActiveRooms")
	s.stats.RegisterMetric("MessagesSent")

	return s
}

func (s *Service) Registry() *Registry       { return s.registry }
func (s *Service) Coordinator() *Coordinator { return s.coordinator }

// Login registers the identity on first use and resumes it afterwards.
// The stored spelling wins: logging in as "Alice" after registering
// "alice" resumes the original identity.
func (s *Service) Login(name string) (types.User, error) {
	if err := validate.Struct(identityParams{Name: name}); err != nil {
		return types.User{}, NewValidationError("invalid identity name", err)
	}
	if strings.EqualFold(name, types.SystemAuthor) {
		return types.User{}, NewValidationError("reserved identity name", nil)
	}

	if s.store.IdentityExists(name) {
		identity, err := s.store.GetIdentity(name)
		if err != nil {
			return types.User{}, fmt.Errorf("get identity: %w", err)
		}
		return s.identityInfo(identity), nil
	}

	identity, err := s.store.CreateIdentity(name)
	if err != nil {
		return types.User{}, fmt.Errorf("create identity: %w", err)
	}

	return s.identityInfo(identity), nil
}

func (s *Service) Identity(name string) (types.User, error) {
	identity, err := s.store.GetIdentity(name)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.User{}, NewNotFoundError("identity not found")
		}
		return types.User{}, fmt.Errorf("get identity: %w", err)
	}

	return s.identityInfo(identity), nil
}

// --- request/response entry points ---

func (s *Service) CreateRoom(name, description, creator string) (types.Room, error) {
	room, err := s.coordinator.CreateRoom(name, description, creator)
	if err != nil {
		return types.Room{}, err
	}

	s.stats.Incr("ActiveRooms")
	return room, nil
}

func (s *Service) DeleteRoom(roomId, requester string) error {
	if err := s.coordinator.DeleteRoom(roomId, requester); err != nil {
		return err
	}

	s.stats.Decr("ActiveRooms")
	return nil
}

func (s *Service) Room(roomId string) (types.Room, error) {
	room, err := s.coordinator.Room(roomId)
	if err != nil {
		return types.Room{}, err
	}

	s.markPresence(&room)
	return room, nil
}

func (s *Service) Rooms() ([]types.Room, error) {
	dbRooms, err := s.store.ListRooms()
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	return lo.Map(dbRooms, func(r store.Room, _ int) types.Room {
		return roomInfo(r, nil)
	}), nil
}

// JoinRoom joins without a live connection: the membership change and
// its system notice reach whatever connections are already subscribed.
func (s *Service) JoinRoom(roomId, identity string) (types.Room, error) {
	res, err := s.coordinator.Join(roomId, identity)
	if err != nil {
		return types.Room{}, err
	}

	s.markPresence(&res.Room)
	return res.Room, nil
}

func (s *Service) LeaveRoom(roomId, identity string) error {
	return s.coordinator.Leave(roomId, identity)
}

func (s *Service) SendMessage(roomId, author, content string) (types.Message, error) {
	msg, err := s.coordinator.Send(roomId, author, content)
	if err != nil {
		return types.Message{}, err
	}

	s.stats.Incr("MessagesSent")
	return msg, nil
}

// ListMessages returns the room's messages oldest first, the last
// `limit` of them when limit is positive.
func (s *Service) ListMessages(roomId string, limit int) ([]types.Message, error) {
	if _, err := s.store.GetRoom(roomId); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NewNotFoundError("room not found")
		}
		return nil, fmt.Errorf("get room: %w", err)
	}

	var (
		dbMsgs []store.Message
		err    error
	)
	if limit > 0 {
		dbMsgs, err = s.store.LastMessages(roomId, limit)
	} else {
		dbMsgs, err = s.store.ListMessages(roomId)
	}
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return lo.Map(dbMsgs, func(m store.Message, _ int) types.Message {
		return messageInfo(m)
	}), nil
}

// --- push entry points ---

// OnConnect makes the connection deliverable and binds it to its
// identity. Called once per transport connect, before any other push
// entry point for that connection.
func (s *Service) OnConnect(conn Conn, identity string) {
	s.fanout.Attach(conn)
	s.registry.Register(conn.ID(), identity)
	s.stats.Incr("ActiveConnections")
}

// OnJoin implements the push-channel join protocol: membership change
// first, then group subscription, then the member-joined event to the
// rest of the room, then history to the caller. The group subscription
// precedes the history read, so a message racing the join is delivered
// twice rather than dropped.
func (s *Service) OnJoin(connId, roomId, identity string) (types.Room, error) {
	res, err := s.coordinator.Join(roomId, identity)
	if err != nil {
		return types.Room{}, err
	}

	if res.Displaced != "" {
		s.fanout.RemoveFromGroup(connId, res.Displaced)
		s.fanout.ToRoom(res.Displaced, &Event{
			MemberLeft: &MemberChange{RoomId: res.Displaced, Identity: identity},
		})
	}

	s.fanout.AddToGroup(connId, roomId)

	if !res.AlreadyMember {
		s.fanout.ToRoomExcept(roomId, &Event{
			MemberJoined: &MemberChange{RoomId: roomId, Identity: identity},
		}, connId)
	}

	history, err := s.ListMessages(roomId, s.historyLimit)
	if err != nil {
		s.log.Printf("read history for %q: %v", roomId, err)
	} else {
		s.fanout.ToConn(connId, &Event{History: &RoomHistory{RoomId: roomId, Messages: history}})
	}

	s.markPresence(&res.Room)
	return res.Room, nil
}

func (s *Service) OnLeave(connId, roomId, identity string) error {
	if err := s.coordinator.Leave(roomId, identity); err != nil {
		return err
	}

	s.fanout.RemoveFromGroup(connId, roomId)
	s.fanout.ToRoom(roomId, &Event{
		MemberLeft: &MemberChange{RoomId: roomId, Identity: identity},
	})

	return nil
}

func (s *Service) OnSend(connId, roomId, content string) (types.Message, error) {
	identity, ok := s.registry.IdentityOf(connId)
	if !ok {
		return types.Message{}, NewNotFoundError("unknown connection")
	}

	return s.SendMessage(roomId, identity, content)
}

// OnDisconnect tears down one connection. Only when the identity's last
// connection is gone does it leave its current room on the identity's
// behalf.
func (s *Service) OnDisconnect(connId string) {
	identity, ok := s.registry.IdentityOf(connId)
	if !ok {
		return
	}

	s.registry.Unregister(connId)
	s.fanout.Detach(connId)
	s.stats.Decr("ActiveConnections")

	if s.registry.HasAnyConnection(identity) {
		return
	}

	roomId, ok := s.coordinator.CurrentRoom(identity)
	if !ok {
		return
	}

	if err := s.coordinator.Leave(roomId, identity); err != nil {
		s.log.Printf("leave %q on disconnect of %q: %v", roomId, identity, err)
		return
	}

	s.fanout.ToRoom(roomId, &Event{
		MemberLeft: &MemberChange{RoomId: roomId, Identity: identity},
	})
}

// markPresence flags each participant that has at least one live
// connection.
func (s *Service) markPresence(room *types.Room) {
	for i := range room.Participants {
		room.Participants[i].IsPresent = s.registry.HasAnyConnection(room.Participants[i].Name)
	}
}

func (s *Service) identityInfo(i store.Identity) types.User {
	u := types.User{
		Name:      i.Name,
		IsPresent: s.registry.HasAnyConnection(i.Name),
	}
	if i.CurrentRoom != nil {
		u.CurrentRoom = *i.CurrentRoom
	}

	return u
}
