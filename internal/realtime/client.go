package realtime

import (
	"encoding/json"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/carelink/carelink-server/internal/apperr"
	"github.com/carelink/carelink-server/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Client is one live websocket connection for an authenticated
// subject. A subject may hold several clients at once, one per device.
type Client struct {
	id       string
	conn     *websocket.Conn
	server   *Server
	log      *log.Logger
	identity types.Identity

	send      chan *ServerEvent
	rooms     map[string]struct{}
	roomsLock sync.RWMutex
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewClient(connectionId string, ident types.Identity, conn *websocket.Conn, s *Server, l *log.Logger) *Client {
	return &Client{
		id:       connectionId,
		conn:     conn,
		server:   s,
		log:      l,
		identity: ident,
		send:     make(chan *ServerEvent, 256),
		rooms:    make(map[string]struct{}),
		stop:     make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(msg)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.sendMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.sendMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.server.Deregister(c)
		c.stopClient()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueMessage(errorEvent("invalid event format"))
			continue
		}

		c.handleEvent(&ev)
	}
}

func (c *Client) handleEvent(ev *ClientEvent) {
	switch ev.Event {
	case ActionJoinConversation:
		c.handleJoinConversation(ev.Data)
	case ActionLeaveConversation:
		var ref ConversationRef
		if !c.decode(ev.Data, &ref) {
			return
		}
		c.server.LeaveRoom(c.id, ConversationRoom(ref.ConversationId))
	case ActionSendMessage:
		c.handleSendMessage(ev.Data)
	case ActionMarkRead:
		var ref ConversationRef
		if !c.decode(ev.Data, &ref) {
			return
		}
		if err := c.server.chat.MarkRead(ref.ConversationId, c.identity); err != nil {
			c.queueError(err)
		}
	case ActionStartTyping:
		c.handleTyping(ev.Data, EventUserTyping)
	case ActionStopTyping:
		c.handleTyping(ev.Data, EventUserStopTyping)
	default:
		c.queueMessage(errorEvent("unknown event"))
	}
}

func (c *Client) handleJoinConversation(data json.RawMessage) {
	var ref ConversationRef
	if !c.decode(data, &ref) {
		return
	}

	if err := c.server.chat.Authorize(ref.ConversationId, c.identity); err != nil {
		c.queueError(err)
		return
	}

	c.server.JoinRoom(c.id, ConversationRoom(ref.ConversationId))
}

func (c *Client) handleSendMessage(data json.RawMessage) {
	var payload SendMessagePayload
	if !c.decode(data, &payload) {
		return
	}

	if _, err := c.server.chat.PostMessage(payload.ConversationId, c.identity, payload.Body); err != nil {
		c.queueError(err)
	}
}

// handleTyping broadcasts a transient typing signal to the other
// members of the conversation room. It is not persisted and only fires
// if this connection has actually joined the room, which is what
// authorized it in the first place.
func (c *Client) handleTyping(data json.RawMessage, event string) {
	var ref ConversationRef
	if !c.decode(data, &ref) {
		return
	}

	roomId := ConversationRoom(ref.ConversationId)
	if !c.inRoom(roomId) {
		return
	}

	payload := TypingPayload{
		ConversationId: ref.ConversationId,
		SubjectId:      c.identity.SubjectId,
	}
	if event == EventUserTyping {
		payload.DisplayName = c.identity.DisplayName
	}

	c.server.EmitToRoomExcept(roomId, c.id, event, payload)
}

func (c *Client) decode(data json.RawMessage, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		c.queueMessage(errorEvent("invalid event format"))
		return false
	}
	return true
}

func (c *Client) queueError(err error) {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind != apperr.KindInternal {
		c.queueMessage(errorEvent(ae.Message))
		return
	}

	c.log.Println("event error:", err)
	c.queueMessage(errorEvent("internal server error"))
}

func (c *Client) queueMessage(msg *ServerEvent) bool {
	select {
	case c.send <- msg:
		return true
	default:
		c.log.Printf("send buffer full for connection %q, dropping event", c.id)
		return false
	}
}

func (c *Client) sendMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) addRoom(roomId string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()
	c.rooms[roomId] = struct{}{}
}

func (c *Client) delRoom(roomId string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()
	delete(c.rooms, roomId)
}

func (c *Client) inRoom(roomId string) bool {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()
	_, ok := c.rooms[roomId]
	return ok
}

func (c *Client) roomSet() map[string]struct{} {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	set := make(map[string]struct{}, len(c.rooms))
	for id := range c.rooms {
		set[id] = struct{}{}
	}
	return set
}
