// Package chat implements the conversation router: lazy conversation
// creation, message posting with live fan-out, and read tracking.
package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/carelink/carelink-server/internal/apperr"
	"github.com/carelink/carelink-server/internal/database"
	"github.com/carelink/carelink-server/internal/notification"
	"github.com/carelink/carelink-server/internal/realtime"
	"github.com/carelink/carelink-server/internal/stats"
	"github.com/carelink/carelink-server/internal/types"
)

const MetricMessagesRouted = "MessagesRouted"

const notificationPreviewLimit = 140

// Transport is the slice of the live-connection layer the router
// pushes through.
type Transport interface {
	EmitToRoom(roomId, event string, payload any)
}

type Notifier interface {
	Notify(recipientSubjectId, kind, title, body string, payload map[string]any) (types.Notification, error)
}

type Service struct {
	log       *log.Logger
	db        database.CareLinkRepository
	transport Transport
	notifier  Notifier
	stats     stats.StatsProvider
}

func NewService(logger *log.Logger, db database.CareLinkRepository, t Transport, n Notifier, st stats.StatsProvider) *Service {
	st.RegisterMetric(MetricMessagesRouted)

	return &Service{
		log:       logger,
		db:        db,
		transport: t,
		notifier:  n,
		stats:     st,
	}
}

// ConversationUpdated is the payload of the conversation-updated event
// pushed to the other party's personal room for list badges.
type ConversationUpdated struct {
	ConversationId string    `json:"conversation_id"`
	LastMessage    string    `json:"last_message,omitempty"`
	LastMessageAt  time.Time `json:"last_message_at,omitempty"`
}

// EnsureConversation returns the single conversation between a patient
// subject and a provider, creating it on first contact. Concurrent
// callers converge on one row: a duplicate-key failure on insert means
// someone else just created it, so the row is re-fetched instead of
// surfacing the error.
func (s *Service) EnsureConversation(subjectId, providerId string) (types.Conversation, bool, error) {
	existing, err := s.db.FindConversationByParties(subjectId, providerId)
	if err == nil {
		return toConversation(existing), false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Conversation{}, false, fmt.Errorf("find conversation: %w", err)
	}

	subject, err := s.db.GetSubjectById(subjectId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Conversation{}, false, apperr.NotFound("subject not found")
		}
		return types.Conversation{}, false, fmt.Errorf("load subject: %w", err)
	}

	provider, err := s.db.GetProviderById(providerId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Conversation{}, false, apperr.NotFound("provider not found")
		}
		return types.Conversation{}, false, fmt.Errorf("load provider: %w", err)
	}

	created, err := s.db.CreateConversation(database.CreateConversationParams{
		SubjectId:    subject.Id,
		SubjectName:  subject.DisplayName,
		ProviderId:   provider.Id,
		ProviderName: provider.Name,
	})
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			existing, err := s.db.FindConversationByParties(subjectId, providerId)
			if err != nil {
				return types.Conversation{}, false, fmt.Errorf("refetch conversation: %w", err)
			}
			return toConversation(existing), false, nil
		}
		return types.Conversation{}, false, fmt.Errorf("create conversation: %w", err)
	}

	return toConversation(created), true, nil
}

// Authorize verifies the identity is a party to the conversation:
// either the patient subject or the doctor login linked to the
// conversation's provider. The failure message never reveals whether
// the conversation exists.
func (s *Service) Authorize(conversationId string, ident types.Identity) error {
	_, err := s.loadAuthorized(conversationId, ident)
	return err
}

func (s *Service) loadAuthorized(conversationId string, ident types.Identity) (database.Conversation, error) {
	conv, err := s.db.GetConversationById(conversationId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Conversation{}, apperr.NotFound("conversation not found")
		}
		return database.Conversation{}, fmt.Errorf("load conversation: %w", err)
	}

	if !isParty(conv, ident) {
		return database.Conversation{}, apperr.Forbidden("access denied")
	}

	return conv, nil
}

func isParty(conv database.Conversation, ident types.Identity) bool {
	if ident.SubjectId == conv.SubjectId {
		return true
	}
	return ident.LinkedProviderId != "" && ident.LinkedProviderId == conv.ProviderId
}

// PostMessage persists a message, updates the conversation's
// denormalized preview, and fans the message out: the full message to
// everyone joined to the conversation room, a lightweight
// conversation-updated signal to the other party's badge room, and a
// notification to the other party's login. Persistence and push run
// sequentially on the calling request, so room members observe one
// conversation's messages in insertion order.
func (s *Service) PostMessage(conversationId string, ident types.Identity, body string) (types.Message, error) {
	if body == "" {
		return types.Message{}, apperr.ValidationFailed(map[string]string{"body": "message body is required"})
	}

	conv, err := s.loadAuthorized(conversationId, ident)
	if err != nil {
		return types.Message{}, err
	}

	row, err := s.db.CreateMessage(database.CreateMessageParams{
		ConversationId: conv.Id,
		SenderId:       ident.SubjectId,
		SenderName:     ident.DisplayName,
		SenderRole:     string(ident.Role),
		Body:           body,
	})
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	if err := s.db.UpdateConversationOnMessage(conv.Id, body); err != nil {
		return types.Message{}, fmt.Errorf("update conversation: %w", err)
	}

	msg := toMessage(row)
	s.stats.Incr(MetricMessagesRouted)

	s.transport.EmitToRoom(realtime.ConversationRoom(conv.Id), realtime.EventNewMessage, msg)

	updated := ConversationUpdated{
		ConversationId: conv.Id,
		LastMessage:    body,
		LastMessageAt:  msg.CreatedAt,
	}

	recipientId, badgeRoom := s.otherParty(conv, ident)
	s.transport.EmitToRoom(badgeRoom, realtime.EventConversationUpdated, updated)

	if recipientId != "" {
		_, err := s.notifier.Notify(recipientId, notification.KindNewMessage,
			fmt.Sprintf("New message from %s", ident.DisplayName),
			truncate(body, notificationPreviewLimit),
			map[string]any{"conversation_id": conv.Id, "message_id": msg.Id},
		)
		if err != nil {
			// the message is already durable, push is advisory
			s.log.Printf("notify %q about message %q: %v", recipientId, msg.Id, err)
		}
	}

	return msg, nil
}

// otherParty resolves the non-sending side of a conversation: the
// recipient's login subject for notifications, and the room their
// conversation-list badge listens on. A provider with no linked login
// gets the provider-room push only.
func (s *Service) otherParty(conv database.Conversation, sender types.Identity) (recipientId, badgeRoom string) {
	if sender.SubjectId == conv.SubjectId {
		badgeRoom = realtime.ProviderRoom(conv.ProviderId)
		subject, err := s.db.GetSubjectByProviderId(conv.ProviderId)
		if err != nil {
			if !errors.Is(err, sql.ErrNoRows) {
				s.log.Printf("lookup provider subject %q: %v", conv.ProviderId, err)
			}
			return "", badgeRoom
		}
		return subject.Id, badgeRoom
	}

	return conv.SubjectId, realtime.SubjectRoom(conv.SubjectId)
}

// MarkRead flips every message the reader did not send to read. This
// is the only mutation a message undergoes after creation.
func (s *Service) MarkRead(conversationId string, ident types.Identity) error {
	conv, err := s.loadAuthorized(conversationId, ident)
	if err != nil {
		return err
	}

	if _, err := s.db.MarkMessagesRead(conv.Id, ident.SubjectId); err != nil {
		return fmt.Errorf("mark messages read: %w", err)
	}

	return nil
}

// Messages returns the conversation history for a party.
func (s *Service) Messages(conversationId string, ident types.Identity, limit int) ([]types.Message, error) {
	conv, err := s.loadAuthorized(conversationId, ident)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.ListMessages(conv.Id, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	messages := make([]types.Message, len(rows))
	for i, row := range rows {
		messages[i] = toMessage(row)
	}
	return messages, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func toConversation(row database.Conversation) types.Conversation {
	return types.Conversation{
		Id:            row.Id,
		SubjectId:     row.SubjectId,
		SubjectName:   row.SubjectName,
		ProviderId:    row.ProviderId,
		ProviderName:  row.ProviderName,
		LastMessage:   row.LastMessage,
		LastMessageAt: row.LastMessageAt,
		CreatedAt:     row.CreatedAt,
	}
}

func toMessage(row database.Message) types.Message {
	return types.Message{
		Id:             row.Id,
		ConversationId: row.ConversationId,
		SenderId:       row.SenderId,
		SenderName:     row.SenderName,
		SenderRole:     types.Role(row.SenderRole),
		Body:           row.Body,
		IsRead:         row.IsRead,
		CreatedAt:      row.CreatedAt,
	}
}
