package server

import (
	"context"
	"log"
	"sync"

	"github.com/jcowley/roomcast/internal/chat"
)

// ChatServer is the push gateway hub: it owns the set of live websocket
// clients and hands their lifecycle events to the chat service.
type ChatServer struct {
	log            *log.Logger
	svc            *chat.Service
	clients        map[*Client]struct{}
	clientsLock    sync.Mutex
	deRegisterChan chan *Client
	stop           chan struct{}
	done           chan struct{}
}

func NewChatServer(logger *log.Logger, svc *chat.Service) *ChatServer {
	return &ChatServer{
		log:            logger,
		svc:            svc,
		clients:        make(map[*Client]struct{}),
		deRegisterChan: make(chan *Client, 64),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// RegisterClient attaches the client to the fanout and the connection
// registry before its pumps start, so a join arriving immediately after
// the upgrade already finds the connection registered.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.log.Printf("adding connection %q for %q", c.id, c.identity)
	cs.svc.OnConnect(c, c.identity)

	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	cs.clients[c] = struct{}{}
}

func (cs *ChatServer) Run() {
	for {
		select {
		case client := <-cs.deRegisterChan:
			cs.log.Printf("removing connection %q for %q", client.id, client.identity)
			cs.svc.OnDisconnect(client.id)
			cs.removeClient(client)
		case <-cs.stop:
			cs.log.Println("disconnecting clients")
			cs.clientsLock.Lock()
			for c := range cs.clients {
				cs.svc.OnDisconnect(c.id)
				c.stopClient()
			}
			cs.clients = make(map[*Client]struct{})
			cs.clientsLock.Unlock()

			close(cs.done)
			return
		}
	}
}

func (cs *ChatServer) removeClient(c *Client) {
	cs.clientsLock.Lock()
	defer cs.clientsLock.Unlock()
	delete(cs.clients, c)
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	close(cs.stop)

	select {
	case <-cs.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
