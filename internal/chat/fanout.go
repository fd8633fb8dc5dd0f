package chat

import (
	"log"
	"sync"
)

// Conn is one live push-channel connection. QueueEvent must not block;
// it reports whether the event was accepted.
type Conn interface {
	ID() string
	QueueEvent(*Event) bool
}

// Fanout resolves which connections should receive a payload and
// delivers it. Delivery is best-effort: a full or dead connection never
// fails the triggering operation.
type Fanout struct {
	log *log.Logger

	mu    sync.RWMutex
	conns map[string]Conn
	// room id -> connection ids subscribed to that room's deliveries
	groups map[string]map[string]struct{}
	// connection id -> room ids, for detach cleanup
	connGroups map[string]map[string]struct{}
}

func NewFanout(logger *log.Logger) *Fanout {
	return &Fanout{
		log:        logger,
		conns:      make(map[string]Conn),
		groups:     make(map[string]map[string]struct{}),
		connGroups: make(map[string]map[string]struct{}),
	}
}

// Attach makes the connection addressable for delivery. It does not
// subscribe it to any group.
func (f *Fanout) Attach(conn Conn) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.conns[conn.ID()] = conn
}

// Detach removes the connection and all its group subscriptions.
func (f *Fanout) Detach(connId string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.conns, connId)
	for roomId := range f.connGroups[connId] {
		f.removeFromGroupLocked(connId, roomId)
	}
	delete(f.connGroups, connId)
}

func (f *Fanout) AddToGroup(connId, roomId string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.groups[roomId] == nil {
		f.groups[roomId] = make(map[string]struct{})
	}
	f.groups[roomId][connId] = struct{}{}

	if f.connGroups[connId] == nil {
		f.connGroups[connId] = make(map[string]struct{})
	}
	f.connGroups[connId][roomId] = struct{}{}
}

func (f *Fanout) RemoveFromGroup(connId, roomId string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.removeFromGroupLocked(connId, roomId)
	if conns, ok := f.connGroups[connId]; ok {
		delete(conns, roomId)
		if len(conns) == 0 {
			delete(f.connGroups, connId)
		}
	}
}

func (f *Fanout) removeFromGroupLocked(connId, roomId string) {
	if conns, ok := f.groups[roomId]; ok {
		delete(conns, connId)
		if len(conns) == 0 {
			delete(f.groups, roomId)
		}
	}
}

// DropGroup clears a room's group, used when the room is deleted.
func (f *Fanout) DropGroup(roomId string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for connId := range f.groups[roomId] {
		if conns, ok := f.connGroups[connId]; ok {
			delete(conns, roomId)
			if len(conns) == 0 {
				delete(f.connGroups, connId)
			}
		}
	}
	delete(f.groups, roomId)
}

func (f *Fanout) ToRoom(roomId string, event *Event) {
	f.ToRoomExcept(roomId, event, "")
}

// ToRoomExcept delivers to every connection in the room's group except
// skipConnId.
func (f *Fanout) ToRoomExcept(roomId string, event *Event, skipConnId string) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for connId := range f.groups[roomId] {
		if connId == skipConnId {
			continue
		}
		f.deliverLocked(connId, event)
	}
}

func (f *Fanout) ToConn(connId string, event *Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	f.deliverLocked(connId, event)
}

// Broadcast delivers to every attached connection regardless of room.
func (f *Fanout) Broadcast(event *Event) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for connId := range f.conns {
		f.deliverLocked(connId, event)
	}
}

func (f *Fanout) deliverLocked(connId string, event *Event) {
	conn, ok := f.conns[connId]
	if !ok {
		return
	}

	if !conn.QueueEvent(event) {
		f.log.Printf("dropping event for connection %q, send queue full", connId)
	}
}
