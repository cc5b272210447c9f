// Package appointment implements the booking coordinator: the slot
// conflict check and the appointment status state machine.
package appointment

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/carelink/carelink-server/internal/apperr"
	"github.com/carelink/carelink-server/internal/database"
	"github.com/carelink/carelink-server/internal/notification"
	"github.com/carelink/carelink-server/internal/stats"
	"github.com/carelink/carelink-server/internal/types"
)

const MetricBookingConflicts = "BookingConflicts"

// Notifier fans out a domain event to its recipient.
type Notifier interface {
	Notify(recipientSubjectId, kind, title, body string, payload map[string]any) (types.Notification, error)
}

type Service struct {
	log      *log.Logger
	db       database.CareLinkRepository
	notifier Notifier
	stats    stats.StatsProvider
}

func NewService(logger *log.Logger, db database.CareLinkRepository, n Notifier, st stats.StatsProvider) *Service {
	st.RegisterMetric(MetricBookingConflicts)

	return &Service{
		log:      logger,
		db:       db,
		notifier: n,
		stats:    st,
	}
}

type CreateRequest struct {
	ProviderId     string
	Date           string
	Time           string
	Reason         string
	SubjectName    string
	SubjectContact string
}

func (r CreateRequest) validate() error {
	fields := make(map[string]string)
	if r.ProviderId == "" {
		fields["provider_id"] = "provider is required"
	}
	if r.Date == "" {
		fields["date"] = "date is required"
	}
	if r.Time == "" {
		fields["time"] = "time is required"
	}
	if r.SubjectName == "" {
		fields["subject_name"] = "name is required"
	}
	if r.SubjectContact == "" {
		fields["subject_contact"] = "contact is required"
	}

	if len(fields) > 0 {
		return apperr.ValidationFailed(fields)
	}
	return nil
}

// Create books a pending appointment for the requested slot. The
// friendly pre-check catches most conflicts; the partial unique index
// on active slots closes the check-then-insert race, so two
// simultaneous requests for the same slot cannot both land.
func (s *Service) Create(req CreateRequest, requester *types.Identity) (types.Appointment, error) {
	if err := req.validate(); err != nil {
		return types.Appointment{}, err
	}

	provider, err := s.db.GetProviderById(req.ProviderId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Appointment{}, apperr.NotFound("provider not found")
		}
		return types.Appointment{}, fmt.Errorf("load provider: %w", err)
	}

	existing, err := s.db.FindAppointmentsBySlot(req.ProviderId, req.Date, req.Time)
	if err != nil {
		return types.Appointment{}, fmt.Errorf("check slot: %w", err)
	}
	if len(existing) > 0 {
		s.stats.Incr(MetricBookingConflicts)
		return types.Appointment{}, apperr.Conflict("this time slot is already booked")
	}

	params := database.CreateAppointmentParams{
		ProviderId:     provider.Id,
		ProviderName:   provider.Name,
		SubjectName:    req.SubjectName,
		SubjectContact: req.SubjectContact,
		Date:           req.Date,
		Time:           req.Time,
		Reason:         req.Reason,
	}
	if requester != nil {
		params.SubjectId = requester.SubjectId
	}

	row, err := s.db.CreateAppointment(params)
	if err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			s.stats.Incr(MetricBookingConflicts)
			return types.Appointment{}, apperr.Conflict("this time slot is already booked")
		}
		return types.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}

	appt := toAppointment(row)

	s.notifyProvider(provider.Id, notification.KindNewAppointment,
		"New appointment request",
		fmt.Sprintf("%s requested an appointment on %s at %s", appt.SubjectName, appt.Date, appt.Time),
		appt,
	)

	return appt, nil
}

// Transition moves a pending appointment to confirmed or rejected. It
// is the only path out of pending, and confirmed/rejected are not
// reachable from each other.
func (s *Service) Transition(appointmentId, actingProviderId string, target types.AppointmentStatus) (types.Appointment, error) {
	if target != types.StatusConfirmed && target != types.StatusRejected {
		return types.Appointment{}, apperr.ValidationFailed(map[string]string{
			"status": "target status must be confirmed or rejected",
		})
	}

	appt, err := s.loadOwned(appointmentId, actingProviderId)
	if err != nil {
		return types.Appointment{}, err
	}

	if appt.Status != string(types.StatusPending) {
		return types.Appointment{}, apperr.InvalidState("only pending appointments can be confirmed or rejected")
	}

	updated, err := s.db.UpdateAppointmentStatus(appointmentId, string(target))
	if err != nil {
		return types.Appointment{}, fmt.Errorf("update appointment status: %w", err)
	}

	result := toAppointment(updated)

	kind, title := notification.KindAppointmentConfirmed, "Appointment confirmed"
	if target == types.StatusRejected {
		kind, title = notification.KindAppointmentRejected, "Appointment rejected"
	}

	s.notifySubject(result.SubjectId, kind, title,
		fmt.Sprintf("%s %s your appointment on %s at %s", result.ProviderName, string(target), result.Date, result.Time),
		result,
	)

	return result, nil
}

// Cancel lets the booking subject withdraw a pending or confirmed
// appointment, freeing the slot for rebooking.
func (s *Service) Cancel(appointmentId, actingSubjectId string) (types.Appointment, error) {
	appt, err := s.db.GetAppointmentById(appointmentId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Appointment{}, apperr.NotFound("appointment not found")
		}
		return types.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}

	if appt.SubjectId == "" || appt.SubjectId != actingSubjectId {
		return types.Appointment{}, apperr.Forbidden("access denied")
	}

	if appt.Status != string(types.StatusPending) && appt.Status != string(types.StatusConfirmed) {
		return types.Appointment{}, apperr.InvalidState("only pending or confirmed appointments can be cancelled")
	}

	updated, err := s.db.UpdateAppointmentStatus(appointmentId, string(types.StatusCancelled))
	if err != nil {
		return types.Appointment{}, fmt.Errorf("update appointment status: %w", err)
	}

	result := toAppointment(updated)

	s.notifyProvider(result.ProviderId, notification.KindAppointmentCancelled,
		"Appointment cancelled",
		fmt.Sprintf("%s cancelled the appointment on %s at %s", result.SubjectName, result.Date, result.Time),
		result,
	)

	return result, nil
}

// Complete marks a confirmed appointment as completed after the visit.
func (s *Service) Complete(appointmentId, actingProviderId string) (types.Appointment, error) {
	appt, err := s.loadOwned(appointmentId, actingProviderId)
	if err != nil {
		return types.Appointment{}, err
	}

	if appt.Status != string(types.StatusConfirmed) {
		return types.Appointment{}, apperr.InvalidState("only confirmed appointments can be completed")
	}

	updated, err := s.db.UpdateAppointmentStatus(appointmentId, string(types.StatusCompleted))
	if err != nil {
		return types.Appointment{}, fmt.Errorf("update appointment status: %w", err)
	}

	result := toAppointment(updated)

	s.notifySubject(result.SubjectId, notification.KindAppointmentCompleted,
		"Appointment completed",
		fmt.Sprintf("Your appointment with %s on %s has been completed", result.ProviderName, result.Date),
		result,
	)

	return result, nil
}

// loadOwned fetches an appointment and verifies the acting provider
// owns it. The error message never reveals whether the appointment
// exists for another provider.
func (s *Service) loadOwned(appointmentId, actingProviderId string) (database.Appointment, error) {
	appt, err := s.db.GetAppointmentById(appointmentId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.Appointment{}, apperr.NotFound("appointment not found")
		}
		return database.Appointment{}, fmt.Errorf("load appointment: %w", err)
	}

	if appt.ProviderId != actingProviderId {
		return database.Appointment{}, apperr.Forbidden("you can only manage your own appointments")
	}

	return appt, nil
}

// notifyProvider routes a domain event to the provider's linked login
// subject. A provider without a linked login simply receives nothing.
func (s *Service) notifyProvider(providerId, kind, title, body string, appt types.Appointment) {
	recipient, err := s.db.GetSubjectByProviderId(providerId)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.log.Printf("lookup provider subject %q: %v", providerId, err)
		}
		return
	}

	s.emit(recipient.Id, kind, title, body, appt)
}

func (s *Service) notifySubject(subjectId, kind, title, body string, appt types.Appointment) {
	if subjectId == "" {
		// guest booking, nowhere to push
		return
	}

	s.emit(subjectId, kind, title, body, appt)
}

func (s *Service) emit(recipientId, kind, title, body string, appt types.Appointment) {
	_, err := s.notifier.Notify(recipientId, kind, title, body, map[string]any{
		"appointment_id": appt.Id,
		"provider_id":    appt.ProviderId,
		"date":           appt.Date,
		"time":           appt.Time,
		"status":         string(appt.Status),
	})
	if err != nil {
		// the appointment write already succeeded, so a failed
		// notification is logged and not surfaced
		s.log.Printf("notify %q about %s: %v", recipientId, kind, err)
	}
}

func toAppointment(row database.Appointment) types.Appointment {
	return types.Appointment{
		Id:             row.Id,
		ProviderId:     row.ProviderId,
		ProviderName:   row.ProviderName,
		SubjectId:      row.SubjectId,
		SubjectName:    row.SubjectName,
		SubjectContact: row.SubjectContact,
		Date:           row.Date,
		Time:           row.Time,
		Reason:         row.Reason,
		Status:         types.AppointmentStatus(row.Status),
		CreatedAt:      row.CreatedAt,
	}
}
