// Package notification implements the fan-out of domain events: every
// event is persisted as a notification row first, then pushed best
// effort to any live connection the recipient holds. Persistence is
// authoritative; a recipient with no open connection finds the
// notification on their next poll.
package notification

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/carelink/carelink-server/internal/database"
	"github.com/carelink/carelink-server/internal/presence"
	"github.com/carelink/carelink-server/internal/realtime"
	"github.com/carelink/carelink-server/internal/stats"
	"github.com/carelink/carelink-server/internal/types"
)

const MetricNotificationsPushed = "NotificationsPushed"

// Notification kinds emitted by the core.
const (
	KindNewAppointment       = "new_appointment"
	KindAppointmentConfirmed = "appointment_confirmed"
	KindAppointmentRejected  = "appointment_rejected"
	KindAppointmentCancelled = "appointment_cancelled"
	KindAppointmentCompleted = "appointment_completed"
	KindNewMessage           = "new_message"
)

// Transport is the slice of the live-connection layer the fan-out
// needs.
type Transport interface {
	EmitToConnection(connectionId, event string, payload any)
}

type Service struct {
	log       *log.Logger
	db        database.CareLinkRepository
	presence  *presence.Registry
	transport Transport
	stats     stats.StatsProvider
}

func NewService(logger *log.Logger, db database.CareLinkRepository, reg *presence.Registry, t Transport, st stats.StatsProvider) *Service {
	st.RegisterMetric(MetricNotificationsPushed)

	return &Service{
		log:       logger,
		db:        db,
		presence:  reg,
		transport: t,
		stats:     st,
	}
}

// Notify persists a notification for the recipient and then attempts
// live delivery to every open connection they hold. The push is best
// effort: failures after the insert never surface to the caller.
// Callers emit exactly one Notify per domain event; no idempotency is
// enforced here.
func (s *Service) Notify(recipientSubjectId, kind, title, body string, payload map[string]any) (types.Notification, error) {
	var rawPayload []byte
	if payload != nil {
		var err error
		rawPayload, err = json.Marshal(payload)
		if err != nil {
			return types.Notification{}, fmt.Errorf("marshal payload: %w", err)
		}
	}

	row, err := s.db.CreateNotification(database.CreateNotificationParams{
		RecipientId: recipientSubjectId,
		Kind:        kind,
		Title:       title,
		Body:        body,
		Payload:     rawPayload,
	})
	if err != nil {
		return types.Notification{}, fmt.Errorf("create notification: %w", err)
	}

	n := types.Notification{
		Id:          row.Id,
		RecipientId: row.RecipientId,
		Kind:        row.Kind,
		Title:       row.Title,
		Body:        row.Body,
		Payload:     payload,
		IsRead:      row.IsRead,
		CreatedAt:   row.CreatedAt,
	}

	for _, connId := range s.presence.ConnectionsFor(recipientSubjectId) {
		s.transport.EmitToConnection(connId, realtime.EventNewNotification, n)
		s.stats.Incr(MetricNotificationsPushed)
	}

	return n, nil
}
