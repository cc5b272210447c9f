package api

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink-server/internal/database"
	"github.com/carelink/carelink-server/internal/types"
)

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("Ping").Return(nil).Once()

		app := newTestApp(t, db)

		rec := doRequest(app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "OK", rec.Body.String())
	})

	t.Run("database down", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("Ping").Return(errors.New("connection refused")).Once()

		app := newTestApp(t, db)

		rec := doRequest(app, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestListProviders(t *testing.T) {
	db := &database.MockCareLinkRepository{}
	defer db.AssertExpectations(t)

	db.On("ListProviders").Return([]database.Provider{
		{Id: "prov-1", Name: "Dr. Reyes", Specialty: "Cardiology"},
		{Id: "prov-2", Name: "Dr. Okafor", Specialty: "Dermatology"},
	}, nil).Once()

	app := newTestApp(t, db)

	rec := doRequest(app, httptest.NewRequest(http.MethodGet, "/api/providers", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var providers []types.Provider
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &providers))
	require.Len(t, providers, 2)
	assert.Equal(t, "Dr. Reyes", providers[0].Name)
}

func TestCreateAppointmentEndpoint(t *testing.T) {
	body := CreateAppointmentRequest{
		ProviderId:     "prov-1",
		Date:           "2026-01-20",
		Time:           "09:00",
		Reason:         "checkup",
		SubjectName:    "Guest One",
		SubjectContact: "guest@example.com",
	}

	t.Run("guest booking needs no session", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetProviderById", "prov-1").
			Return(database.Provider{Id: "prov-1", Name: "Dr. Reyes"}, nil).Once()
		db.On("FindAppointmentsBySlot", "prov-1", "2026-01-20", "09:00").
			Return([]database.Appointment(nil), nil).Once()
		db.On("CreateAppointment", mock.MatchedBy(func(p database.CreateAppointmentParams) bool {
			return p.SubjectId == "" && p.SubjectName == "Guest One"
		})).Return(database.Appointment{Id: "appt-1", ProviderId: "prov-1", Status: "pending"}, nil).Once()
		db.On("GetSubjectByProviderId", "prov-1").
			Return(database.Subject{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db)

		rec := doRequest(app, jsonRequest(t, http.MethodPost, "/api/appointments", body))
		require.Equal(t, http.StatusCreated, rec.Code)

		var appt types.Appointment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
		assert.Equal(t, types.StatusPending, appt.Status)
	})

	t.Run("logged-in booking carries the subject id and display name", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("GetProviderById", "prov-1").
			Return(database.Provider{Id: "prov-1", Name: "Dr. Reyes"}, nil).Once()
		db.On("FindAppointmentsBySlot", "prov-1", "2026-01-20", "09:00").
			Return([]database.Appointment(nil), nil).Once()
		db.On("CreateAppointment", mock.MatchedBy(func(p database.CreateAppointmentParams) bool {
			return p.SubjectId == "subj-1" && p.SubjectName == "Pat One"
		})).Return(database.Appointment{Id: "appt-1", ProviderId: "prov-1", SubjectId: "subj-1", Status: "pending"}, nil).Once()
		db.On("GetSubjectByProviderId", "prov-1").
			Return(database.Subject{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db)

		loggedIn := body
		loggedIn.SubjectName = ""
		req := jsonRequest(t, http.MethodPost, "/api/appointments", loggedIn)
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("occupied slot maps to 409", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetProviderById", "prov-1").
			Return(database.Provider{Id: "prov-1"}, nil).Once()
		db.On("FindAppointmentsBySlot", "prov-1", "2026-01-20", "09:00").
			Return([]database.Appointment{{Id: "appt-existing", Status: "confirmed"}}, nil).Once()

		app := newTestApp(t, db)

		rec := doRequest(app, jsonRequest(t, http.MethodPost, "/api/appointments", body))
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Contains(t, rec.Body.String(), "this time slot is already booked")
	})

	t.Run("validation failure maps to 400 with field detail", func(t *testing.T) {
		app := newTestApp(t, &database.MockCareLinkRepository{})

		rec := doRequest(app, jsonRequest(t, http.MethodPost, "/api/appointments", CreateAppointmentRequest{}))
		require.Equal(t, http.StatusBadRequest, rec.Code)

		var errResp ApiError
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
		assert.Contains(t, errResp.Fields, "provider_id")
	})
}

func TestTransitionEndpoints(t *testing.T) {
	pending := database.Appointment{
		Id:         "appt-1",
		ProviderId: "prov-1",
		SubjectId:  "subj-1",
		Status:     "pending",
	}

	t.Run("linked doctor confirms", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		confirmed := pending
		confirmed.Status = "confirmed"

		db.On("GetSubjectById", "doc-subj-1").Return(doctorRow, nil).Once()
		db.On("GetAppointmentById", "appt-1").Return(pending, nil).Once()
		db.On("UpdateAppointmentStatus", "appt-1", "confirmed").Return(confirmed, nil).Once()
		db.On("CreateNotification", mock.Anything).
			Return(database.Notification{Id: "notif-1"}, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodPost, "/api/appointments/appt-1/confirm", nil)
		req.AddCookie(sessionCookie(t, app, "doc-subj-1"))

		rec := doRequest(app, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var appt types.Appointment
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &appt))
		assert.Equal(t, types.StatusConfirmed, appt.Status)
	})

	t.Run("patients cannot confirm", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodPost, "/api/appointments/appt-1/confirm", nil)
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("double confirm maps to 422", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		confirmed := pending
		confirmed.Status = "confirmed"

		db.On("GetSubjectById", "doc-subj-1").Return(doctorRow, nil).Once()
		db.On("GetAppointmentById", "appt-1").Return(confirmed, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodPost, "/api/appointments/appt-1/confirm", nil)
		req.AddCookie(sessionCookie(t, app, "doc-subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("patient cancels their own booking", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		cancelled := pending
		cancelled.Status = "cancelled"

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("GetAppointmentById", "appt-1").Return(pending, nil).Once()
		db.On("UpdateAppointmentStatus", "appt-1", "cancelled").Return(cancelled, nil).Once()
		db.On("GetSubjectByProviderId", "prov-1").
			Return(database.Subject{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodPost, "/api/appointments/appt-1/cancel", nil)
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unknown appointment maps to 404", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "doc-subj-1").Return(doctorRow, nil).Once()
		db.On("GetAppointmentById", "appt-x").Return(database.Appointment{}, sql.ErrNoRows).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodPost, "/api/appointments/appt-x/reject", nil)
		req.AddCookie(sessionCookie(t, app, "doc-subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestListAppointments(t *testing.T) {
	t.Run("doctor sees the provider calendar", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "doc-subj-1").Return(doctorRow, nil).Once()
		db.On("ListAppointmentsByProvider", "prov-1").
			Return([]database.Appointment{{Id: "appt-1", ProviderId: "prov-1"}}, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
		req.AddCookie(sessionCookie(t, app, "doc-subj-1"))

		rec := doRequest(app, req)
		require.Equal(t, http.StatusOK, rec.Code)
		db.AssertNotCalled(t, "ListAppointmentsBySubject", mock.Anything)
	})

	t.Run("patient sees their own bookings", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("ListAppointmentsBySubject", "subj-1").
			Return([]database.Appointment{{Id: "appt-1", SubjectId: "subj-1"}}, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/appointments", nil)
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		require.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("unauthenticated", func(t *testing.T) {
		app := newTestApp(t, &database.MockCareLinkRepository{})

		rec := doRequest(app, httptest.NewRequest(http.MethodGet, "/api/appointments", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestEnsureConversationEndpoint(t *testing.T) {
	conv := database.Conversation{
		Id:         "conv-1",
		SubjectId:  "subj-1",
		ProviderId: "prov-1",
	}

	t.Run("patient opens a conversation with a provider", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("FindConversationByParties", "subj-1", "prov-1").
			Return(database.Conversation{}, sql.ErrNoRows).Once()
		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("GetProviderById", "prov-1").
			Return(database.Provider{Id: "prov-1", Name: "Dr. Reyes"}, nil).Once()
		db.On("CreateConversation", mock.Anything).Return(conv, nil).Once()

		app := newTestApp(t, db)

		req := jsonRequest(t, http.MethodPost, "/api/conversations", EnsureConversationRequest{ProviderId: "prov-1"})
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusCreated, rec.Code)
	})

	t.Run("reopening returns the existing conversation with 200", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("FindConversationByParties", "subj-1", "prov-1").Return(conv, nil).Once()

		app := newTestApp(t, db)

		req := jsonRequest(t, http.MethodPost, "/api/conversations", EnsureConversationRequest{ProviderId: "prov-1"})
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("doctor opens a conversation with a patient subject", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "doc-subj-1").Return(doctorRow, nil).Once()
		db.On("FindConversationByParties", "subj-1", "prov-1").Return(conv, nil).Once()

		app := newTestApp(t, db)

		req := jsonRequest(t, http.MethodPost, "/api/conversations", EnsureConversationRequest{SubjectId: "subj-1"})
		req.AddCookie(sessionCookie(t, app, "doc-subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("patient without a provider id", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()

		app := newTestApp(t, db)

		req := jsonRequest(t, http.MethodPost, "/api/conversations", EnsureConversationRequest{})
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestGetMessages(t *testing.T) {
	conv := database.Conversation{Id: "conv-1", SubjectId: "subj-1", ProviderId: "prov-1"}

	t.Run("returns the history", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("GetConversationById", "conv-1").Return(conv, nil).Once()
		db.On("ListMessages", "conv-1", 25).Return([]database.Message{
			{Id: "msg-1", Body: "hello"},
		}, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages?limit=25", nil)
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var msgs []types.Message
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &msgs))
		require.Len(t, msgs, 1)
		assert.Equal(t, "hello", msgs[0].Body)
	})

	t.Run("non-numeric limit", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages?limit=lots", nil)
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("non-party is forbidden", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		stranger := database.Subject{Id: "subj-other", Role: "patient", DisplayName: "Other"}
		db.On("GetSubjectById", "subj-other").Return(stranger, nil).Once()
		db.On("GetConversationById", "conv-1").Return(conv, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/conversations/conv-1/messages", nil)
		req.AddCookie(sessionCookie(t, app, "subj-other"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestMarkConversationRead(t *testing.T) {
	db := &database.MockCareLinkRepository{}
	defer db.AssertExpectations(t)

	conv := database.Conversation{Id: "conv-1", SubjectId: "subj-1", ProviderId: "prov-1"}
	db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
	db.On("GetConversationById", "conv-1").Return(conv, nil).Once()
	db.On("MarkMessagesRead", "conv-1", "subj-1").Return(int64(2), nil).Once()

	app := newTestApp(t, db)

	req := httptest.NewRequest(http.MethodPost, "/api/conversations/conv-1/read", nil)
	req.AddCookie(sessionCookie(t, app, "subj-1"))

	rec := doRequest(app, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestNotificationEndpoints(t *testing.T) {
	t.Run("list includes decoded payloads", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("ListNotifications", "subj-1", 0).Return([]database.Notification{
			{Id: "notif-1", RecipientId: "subj-1", Kind: "new_message", Payload: []byte(`{"conversation_id":"conv-1"}`)},
		}, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		require.Equal(t, http.StatusOK, rec.Code)

		var notifications []types.Notification
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &notifications))
		require.Len(t, notifications, 1)
		assert.Equal(t, "conv-1", notifications[0].Payload["conversation_id"])
	})

	t.Run("unread count", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("CountUnreadNotifications", "subj-1").Return(4, nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodGet, "/api/notifications/unread-count", nil)
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"count":4}`, rec.Body.String())
	})

	t.Run("mark read", func(t *testing.T) {
		db := &database.MockCareLinkRepository{}
		defer db.AssertExpectations(t)

		db.On("GetSubjectById", "subj-1").Return(patientRow, nil).Once()
		db.On("MarkNotificationRead", "notif-1", "subj-1").Return(nil).Once()

		app := newTestApp(t, db)

		req := httptest.NewRequest(http.MethodPost, "/api/notifications/notif-1/read", nil)
		req.AddCookie(sessionCookie(t, app, "subj-1"))

		rec := doRequest(app, req)
		assert.Equal(t, http.StatusNoContent, rec.Code)
	})
}
