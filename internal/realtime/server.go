package realtime

import (
	"context"
	"log"
	"sync"

	"github.com/carelink/carelink-server/internal/presence"
	"github.com/carelink/carelink-server/internal/stats"
	"github.com/carelink/carelink-server/internal/types"
)

const (
	MetricActiveConnections = "ActiveConnections"
	MetricEventsDelivered   = "EventsDelivered"
	MetricEventsDropped     = "EventsDropped"
)

// ChatService is the slice of the conversation router the socket layer
// needs: authorization for room joins and the message operations
// initiated over a live connection.
type ChatService interface {
	Authorize(conversationId string, ident types.Identity) error
	PostMessage(conversationId string, ident types.Identity, body string) (types.Message, error)
	MarkRead(conversationId string, ident types.Identity) error
}

// Server owns every live connection and the room membership map. It is
// the single implementation of the transport abstraction the domain
// services emit through.
type Server struct {
	log      *log.Logger
	presence *presence.Registry
	stats    stats.StatsProvider
	chat     ChatService

	mu      sync.RWMutex
	clients map[string]*Client
	rooms   map[string]map[*Client]struct{}

	registerChan   chan *Client
	deregisterChan chan *Client
	stop           chan struct{}
	done           chan struct{}
}

func NewServer(logger *log.Logger, reg *presence.Registry, chat ChatService, st stats.StatsProvider) *Server {
	st.RegisterMetric(MetricActiveConnections)
	st.RegisterMetric(MetricEventsDelivered)
	st.RegisterMetric(MetricEventsDropped)

	return &Server{
		log:            logger,
		presence:       reg,
		stats:          st,
		chat:           chat,
		clients:        make(map[string]*Client),
		rooms:          make(map[string]map[*Client]struct{}),
		registerChan:   make(chan *Client, 64),
		deregisterChan: make(chan *Client, 64),
		stop:           make(chan struct{}),
		done:           make(chan struct{}),
	}
}

// SetChatService completes wiring: the conversation router emits
// through this server, and this server dispatches client actions to
// the router, so one side is attached after construction. Must be
// called before Run.
func (s *Server) SetChatService(chat ChatService) {
	s.chat = chat
}

func (s *Server) Run() {
	for {
		select {
		case client := <-s.registerChan:
			s.handleRegister(client)
		case client := <-s.deregisterChan:
			s.handleDeregister(client)
		case <-s.stop:
			s.mu.Lock()
			for _, c := range s.clients {
				c.stopClient()
			}
			s.clients = make(map[string]*Client)
			s.rooms = make(map[string]map[*Client]struct{})
			s.mu.Unlock()

			close(s.done)
			return
		}
	}
}

func (s *Server) Register(c *Client) {
	s.registerChan <- c
}

func (s *Server) Deregister(c *Client) {
	s.deregisterChan <- c
}

// handleRegister runs the deterministic post-authentication hook for a
// new connection: track it, mark the subject present, and auto-join
// the personal room plus the provider room for linked doctor logins.
func (s *Server) handleRegister(c *Client) {
	s.log.Printf("adding connection %q for subject %q", c.id, c.identity.SubjectId)

	s.mu.Lock()
	s.clients[c.id] = c
	s.mu.Unlock()

	s.presence.Register(c.identity.SubjectId, c.id)
	s.stats.Incr(MetricActiveConnections)

	s.joinRoom(c, SubjectRoom(c.identity.SubjectId))
	if c.identity.Role == types.RoleDoctor && c.identity.LinkedProviderId != "" {
		s.joinRoom(c, ProviderRoom(c.identity.LinkedProviderId))
	}
}

func (s *Server) handleDeregister(c *Client) {
	s.log.Printf("removing connection %q for subject %q", c.id, c.identity.SubjectId)

	s.mu.Lock()
	if _, ok := s.clients[c.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.clients, c.id)
	for roomId := range c.roomSet() {
		s.removeFromRoomLocked(c, roomId)
	}
	s.mu.Unlock()

	s.presence.Unregister(c.identity.SubjectId, c.id)
	s.stats.Decr(MetricActiveConnections)
}

func (s *Server) JoinRoom(connectionId, roomId string) {
	s.mu.RLock()
	c, ok := s.clients[connectionId]
	s.mu.RUnlock()
	if !ok {
		return
	}

	s.joinRoom(c, roomId)
}

func (s *Server) LeaveRoom(connectionId, roomId string) {
	s.mu.RLock()
	c, ok := s.clients[connectionId]
	s.mu.RUnlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.removeFromRoomLocked(c, roomId)
	s.mu.Unlock()
	c.delRoom(roomId)
}

func (s *Server) joinRoom(c *Client, roomId string) {
	s.mu.Lock()
	members, ok := s.rooms[roomId]
	if !ok {
		members = make(map[*Client]struct{})
		s.rooms[roomId] = members
	}
	members[c] = struct{}{}
	s.mu.Unlock()

	c.addRoom(roomId)
}

// removeFromRoomLocked requires s.mu to be held for writing.
func (s *Server) removeFromRoomLocked(c *Client, roomId string) {
	members, ok := s.rooms[roomId]
	if !ok {
		return
	}

	delete(members, c)
	if len(members) == 0 {
		delete(s.rooms, roomId)
	}
}

// EmitToRoom pushes an event to every connection joined to the room.
// Delivery is best effort: a member with a full send buffer is skipped.
func (s *Server) EmitToRoom(roomId, event string, payload any) {
	s.emitToRoom(roomId, "", event, payload)
}

// EmitToRoomExcept behaves like EmitToRoom but skips the named
// connection, used for typing signals that the sender already knows
// about.
func (s *Server) EmitToRoomExcept(roomId, exceptConnectionId, event string, payload any) {
	s.emitToRoom(roomId, exceptConnectionId, event, payload)
}

func (s *Server) emitToRoom(roomId, exceptConnectionId, event string, payload any) {
	msg := &ServerEvent{Event: event, Data: payload}

	s.mu.RLock()
	defer s.mu.RUnlock()

	for c := range s.rooms[roomId] {
		if c.id == exceptConnectionId {
			continue
		}

		if c.queueMessage(msg) {
			s.stats.Incr(MetricEventsDelivered)
		} else {
			s.stats.Incr(MetricEventsDropped)
		}
	}
}

// EmitToConnection pushes an event to a single connection, if it is
// still open.
func (s *Server) EmitToConnection(connectionId, event string, payload any) {
	s.mu.RLock()
	c, ok := s.clients[connectionId]
	s.mu.RUnlock()
	if !ok {
		return
	}

	if c.queueMessage(&ServerEvent{Event: event, Data: payload}) {
		s.stats.Incr(MetricEventsDelivered)
	} else {
		s.stats.Incr(MetricEventsDropped)
	}
}

// RoomSize reports the number of connections joined to a room.
func (s *Server) RoomSize(roomId string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[roomId])
}

func (s *Server) Shutdown(ctx context.Context) error {
	close(s.stop)

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
