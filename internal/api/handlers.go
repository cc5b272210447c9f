package api

import (
	"encoding/json"
	"net/http"
	"slices"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/teris-io/shortid"

	"github.com/carelink/carelink-server/internal/appointment"
	"github.com/carelink/carelink-server/internal/database"
	"github.com/carelink/carelink-server/internal/realtime"
	"github.com/carelink/carelink-server/internal/types"
)

type CreateAppointmentRequest struct {
	ProviderId     string `json:"provider_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
	Reason         string `json:"reason"`
	SubjectName    string `json:"subject_name"`
	SubjectContact string `json:"subject_contact"`
}

type EnsureConversationRequest struct {
	ProviderId string `json:"provider_id,omitempty"`
	SubjectId  string `json:"subject_id,omitempty"`
}

func (s *CareLinkApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *CareLinkApp) writeDomainError(w http.ResponseWriter, err error) {
	errResp := fromDomainError(err)
	if errResp.StatusCode == http.StatusInternalServerError {
		s.log.Println("request failed:", err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *CareLinkApp) listProviders(w http.ResponseWriter, _ *http.Request) {
	rows, err := s.db.ListProviders()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	providers := make([]types.Provider, len(rows))
	for i, row := range rows {
		providers[i] = types.Provider{
			Id:        row.Id,
			Name:      row.Name,
			Specialty: row.Specialty,
			CreatedAt: row.CreatedAt,
		}
	}

	s.writeJson(w, http.StatusOK, providers)
}

func (s *CareLinkApp) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req CreateAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var requester *types.Identity
	if ident, ok := CallerIdentity(r.Context()); ok {
		requester = &ident
		if req.SubjectName == "" {
			req.SubjectName = ident.DisplayName
		}
	}

	appt, err := s.appointments.Create(appointment.CreateRequest{
		ProviderId:     req.ProviderId,
		Date:           req.Date,
		Time:           req.Time,
		Reason:         req.Reason,
		SubjectName:    req.SubjectName,
		SubjectContact: req.SubjectContact,
	}, requester)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, appt)
}

func (s *CareLinkApp) listAppointments(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var rows []database.Appointment
	var err error
	if ident.Role == types.RoleDoctor && ident.LinkedProviderId != "" {
		rows, err = s.db.ListAppointmentsByProvider(ident.LinkedProviderId)
	} else {
		rows, err = s.db.ListAppointmentsBySubject(ident.SubjectId)
	}
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	appointments := make([]types.Appointment, len(rows))
	for i, row := range rows {
		appointments[i] = types.Appointment{
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

	s.writeJson(w, http.StatusOK, appointments)
}

func (s *CareLinkApp) confirmAppointment(w http.ResponseWriter, r *http.Request) {
	s.transitionAppointment(w, r, types.StatusConfirmed)
}

func (s *CareLinkApp) rejectAppointment(w http.ResponseWriter, r *http.Request) {
	s.transitionAppointment(w, r, types.StatusRejected)
}

func (s *CareLinkApp) transitionAppointment(w http.ResponseWriter, r *http.Request, target types.AppointmentStatus) {
	providerId, ok := s.requireProvider(w, r)
	if !ok {
		return
	}

	appt, err := s.appointments.Transition(r.PathValue("id"), providerId, target)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, appt)
}

func (s *CareLinkApp) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	appt, err := s.appointments.Cancel(r.PathValue("id"), ident.SubjectId)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, appt)
}

func (s *CareLinkApp) completeAppointment(w http.ResponseWriter, r *http.Request) {
	providerId, ok := s.requireProvider(w, r)
	if !ok {
		return
	}

	appt, err := s.appointments.Complete(r.PathValue("id"), providerId)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, appt)
}

// requireProvider rejects callers that are not doctor logins linked to
// a provider profile, returning the linked provider id otherwise.
func (s *CareLinkApp) requireProvider(w http.ResponseWriter, r *http.Request) (string, bool) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return "", false
	}

	if ident.Role != types.RoleDoctor || ident.LinkedProviderId == "" {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return "", false
	}

	return ident.LinkedProviderId, true
}

func (s *CareLinkApp) ensureConversation(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req EnsureConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// a patient opens a conversation with a provider; a linked doctor
	// opens one with a patient subject
	var subjectId, providerId string
	switch {
	case ident.Role == types.RolePatient && req.ProviderId != "":
		subjectId, providerId = ident.SubjectId, req.ProviderId
	case ident.Role == types.RoleDoctor && ident.LinkedProviderId != "" && req.SubjectId != "":
		subjectId, providerId = req.SubjectId, ident.LinkedProviderId
	default:
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conv, isNew, err := s.chats.EnsureConversation(subjectId, providerId)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	statusCode := http.StatusOK
	if isNew {
		statusCode = http.StatusCreated
	}
	s.writeJson(w, statusCode, conv)
}

func (s *CareLinkApp) listConversations(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var rows []database.Conversation
	var err error
	if ident.Role == types.RoleDoctor && ident.LinkedProviderId != "" {
		rows, err = s.db.ListConversationsByProvider(ident.LinkedProviderId)
	} else {
		rows, err = s.db.ListConversationsBySubject(ident.SubjectId)
	}
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	conversations := make([]types.Conversation, len(rows))
	for i, row := range rows {
		conversations[i] = types.Conversation{
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

	s.writeJson(w, http.StatusOK, conversations)
}

func (s *CareLinkApp) getMessages(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var limit int
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		var err error
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			errResp := NewBadRequestError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	messages, err := s.chats.Messages(r.PathValue("id"), ident, limit)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *CareLinkApp) markConversationRead(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.chats.MarkRead(r.PathValue("id"), ident); err != nil {
		s.writeDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *CareLinkApp) listNotifications(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rows, err := s.db.ListNotifications(ident.SubjectId, 0)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	notifications := make([]types.Notification, len(rows))
	for i, row := range rows {
		n := types.Notification{
			Id:          row.Id,
			RecipientId: row.RecipientId,
			Kind:        row.Kind,
			Title:       row.Title,
			Body:        row.Body,
			IsRead:      row.IsRead,
			CreatedAt:   row.CreatedAt,
		}
		if len(row.Payload) > 0 {
			if err := json.Unmarshal(row.Payload, &n.Payload); err != nil {
				s.log.Printf("decode notification payload %q: %v", row.Id, err)
			}
		}
		notifications[i] = n
	}

	s.writeJson(w, http.StatusOK, notifications)
}

func (s *CareLinkApp) unreadNotificationCount(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	count, err := s.db.CountUnreadNotifications(ident.SubjectId)
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, map[string]int{"count": count})
}

func (s *CareLinkApp) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := s.db.MarkNotificationRead(r.PathValue("id"), ident.SubjectId); err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *CareLinkApp) serveWs(w http.ResponseWriter, r *http.Request) {
	ident, ok := CallerIdentity(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	connectionId, err := shortid.Generate()
	if err != nil {
		errResp := NewInternalServerError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	client := realtime.NewClient(connectionId, ident, conn, s.rt, s.log)

	s.rt.Register(client)
	go client.Write()
	go client.Read()
}
