package realtime

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink-server/internal/presence"
	"github.com/carelink/carelink-server/internal/stats"
	"github.com/carelink/carelink-server/internal/testutil"
	"github.com/carelink/carelink-server/internal/types"
)

func newTestServer(t *testing.T) (*Server, *presence.Registry) {
	su := &stats.MockStatsUpdater{}
	su.On("RegisterMetric", mock.Anything).Return().Times(3)
	su.On("Incr", mock.Anything).Return().Maybe()
	su.On("Decr", mock.Anything).Return().Maybe()

	reg := presence.NewRegistry()
	return NewServer(testutil.TestLogger(t), reg, nil, su), reg
}

func newTestClient(t *testing.T, s *Server, id string, ident types.Identity) *Client {
	return NewClient(id, ident, nil, s, testutil.TestLogger(t))
}

func drainEvent(t *testing.T, c *Client) *ServerEvent {
	t.Helper()
	select {
	case ev := <-c.send:
		return ev
	default:
		t.Fatalf("no event queued for connection %q", c.id)
		return nil
	}
}

func TestHandleRegister(t *testing.T) {
	t.Run("patient joins the personal room and comes online", func(t *testing.T) {
		s, reg := newTestServer(t)
		c := newTestClient(t, s, "conn-1", types.Identity{SubjectId: "subj-1", Role: types.RolePatient})

		s.handleRegister(c)

		assert.True(t, reg.IsOnline("subj-1"))
		assert.Equal(t, 1, s.RoomSize(SubjectRoom("subj-1")))
		assert.True(t, c.inRoom(SubjectRoom("subj-1")))
	})

	t.Run("linked doctor also joins the provider room", func(t *testing.T) {
		s, _ := newTestServer(t)
		c := newTestClient(t, s, "conn-1", types.Identity{
			SubjectId:        "doc-subj-1",
			Role:             types.RoleDoctor,
			LinkedProviderId: "prov-1",
		})

		s.handleRegister(c)

		assert.Equal(t, 1, s.RoomSize(SubjectRoom("doc-subj-1")))
		assert.Equal(t, 1, s.RoomSize(ProviderRoom("prov-1")))
	})

	t.Run("two devices for one subject", func(t *testing.T) {
		s, reg := newTestServer(t)
		ident := types.Identity{SubjectId: "subj-1", Role: types.RolePatient}
		a := newTestClient(t, s, "conn-a", ident)
		b := newTestClient(t, s, "conn-b", ident)

		s.handleRegister(a)
		s.handleRegister(b)

		assert.Equal(t, 2, s.RoomSize(SubjectRoom("subj-1")))
		assert.ElementsMatch(t, []string{"conn-a", "conn-b"}, reg.ConnectionsFor("subj-1"))
	})
}

func TestHandleDeregister(t *testing.T) {
	t.Run("removes the connection from every room and from presence", func(t *testing.T) {
		s, reg := newTestServer(t)
		c := newTestClient(t, s, "conn-1", types.Identity{SubjectId: "subj-1", Role: types.RolePatient})

		s.handleRegister(c)
		s.JoinRoom("conn-1", ConversationRoom("conv-1"))
		require.Equal(t, 1, s.RoomSize(ConversationRoom("conv-1")))

		s.handleDeregister(c)

		assert.False(t, reg.IsOnline("subj-1"))
		assert.Equal(t, 0, s.RoomSize(SubjectRoom("subj-1")))
		assert.Equal(t, 0, s.RoomSize(ConversationRoom("conv-1")))
	})

	t.Run("unknown client is a no-op", func(t *testing.T) {
		s, _ := newTestServer(t)
		c := newTestClient(t, s, "conn-ghost", types.Identity{SubjectId: "subj-1"})

		assert.NotPanics(t, func() { s.handleDeregister(c) })
	})

	t.Run("one device leaving keeps the subject online", func(t *testing.T) {
		s, reg := newTestServer(t)
		ident := types.Identity{SubjectId: "subj-1", Role: types.RolePatient}
		a := newTestClient(t, s, "conn-a", ident)
		b := newTestClient(t, s, "conn-b", ident)

		s.handleRegister(a)
		s.handleRegister(b)
		s.handleDeregister(a)

		assert.True(t, reg.IsOnline("subj-1"))
		assert.Equal(t, 1, s.RoomSize(SubjectRoom("subj-1")))
	})
}

func TestJoinAndLeaveRoom(t *testing.T) {
	s, _ := newTestServer(t)
	c := newTestClient(t, s, "conn-1", types.Identity{SubjectId: "subj-1", Role: types.RolePatient})
	s.handleRegister(c)

	s.JoinRoom("conn-1", ConversationRoom("conv-1"))
	assert.Equal(t, 1, s.RoomSize(ConversationRoom("conv-1")))
	assert.True(t, c.inRoom(ConversationRoom("conv-1")))

	s.LeaveRoom("conn-1", ConversationRoom("conv-1"))
	assert.Equal(t, 0, s.RoomSize(ConversationRoom("conv-1")))
	assert.False(t, c.inRoom(ConversationRoom("conv-1")))

	// joining with an unknown connection id does nothing
	s.JoinRoom("conn-ghost", ConversationRoom("conv-1"))
	assert.Equal(t, 0, s.RoomSize(ConversationRoom("conv-1")))
}

func TestEmitToRoom(t *testing.T) {
	t.Run("delivers to every member", func(t *testing.T) {
		s, _ := newTestServer(t)
		a := newTestClient(t, s, "conn-a", types.Identity{SubjectId: "subj-1", Role: types.RolePatient})
		b := newTestClient(t, s, "conn-b", types.Identity{SubjectId: "subj-2", Role: types.RolePatient})
		s.handleRegister(a)
		s.handleRegister(b)
		s.JoinRoom("conn-a", ConversationRoom("conv-1"))
		s.JoinRoom("conn-b", ConversationRoom("conv-1"))

		s.EmitToRoom(ConversationRoom("conv-1"), EventNewMessage, "hello")

		for _, c := range []*Client{a, b} {
			ev := drainEvent(t, c)
			assert.Equal(t, EventNewMessage, ev.Event)
			assert.Equal(t, "hello", ev.Data)
		}
	})

	t.Run("except skips the sender", func(t *testing.T) {
		s, _ := newTestServer(t)
		a := newTestClient(t, s, "conn-a", types.Identity{SubjectId: "subj-1", Role: types.RolePatient})
		b := newTestClient(t, s, "conn-b", types.Identity{SubjectId: "subj-2", Role: types.RolePatient})
		s.handleRegister(a)
		s.handleRegister(b)
		s.JoinRoom("conn-a", ConversationRoom("conv-1"))
		s.JoinRoom("conn-b", ConversationRoom("conv-1"))

		s.EmitToRoomExcept(ConversationRoom("conv-1"), "conn-a", EventUserTyping, TypingPayload{ConversationId: "conv-1"})

		ev := drainEvent(t, b)
		assert.Equal(t, EventUserTyping, ev.Event)
		assert.Empty(t, a.send, "sender must not receive its own typing signal")
	})

	t.Run("empty room is a no-op", func(t *testing.T) {
		s, _ := newTestServer(t)
		assert.NotPanics(t, func() {
			s.EmitToRoom(ConversationRoom("conv-empty"), EventNewMessage, "hello")
		})
	})
}

func TestEmitToConnection(t *testing.T) {
	s, _ := newTestServer(t)
	c := newTestClient(t, s, "conn-1", types.Identity{SubjectId: "subj-1", Role: types.RolePatient})
	s.handleRegister(c)

	s.EmitToConnection("conn-1", EventNewNotification, "ping")
	ev := drainEvent(t, c)
	assert.Equal(t, EventNewNotification, ev.Event)

	assert.NotPanics(t, func() {
		s.EmitToConnection("conn-ghost", EventNewNotification, "ping")
	})
}

func TestFullSendBufferDropsEvent(t *testing.T) {
	s, _ := newTestServer(t)
	c := newTestClient(t, s, "conn-1", types.Identity{SubjectId: "subj-1", Role: types.RolePatient})
	s.handleRegister(c)

	for i := 0; i < cap(c.send); i++ {
		require.True(t, c.queueMessage(&ServerEvent{Event: EventNewMessage}))
	}

	s.EmitToConnection("conn-1", EventNewNotification, "overflow")
	assert.Len(t, c.send, cap(c.send), "a full buffer drops the event instead of blocking")
}

func TestRunAndShutdown(t *testing.T) {
	s, reg := newTestServer(t)
	go s.Run()

	c := newTestClient(t, s, "conn-1", types.Identity{SubjectId: "subj-1", Role: types.RolePatient})
	s.Register(c)

	require.Eventually(t, func() bool {
		return reg.IsOnline("subj-1")
	}, time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))

	select {
	case <-c.stop:
	default:
		t.Fatal("shutdown did not stop the client")
	}
}
