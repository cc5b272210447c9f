package types

import (
	"time"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Identity is the verified assertion attached to every authenticated
// request and websocket connection. LinkedProviderId is set only for
// doctor logins tied to a bookable provider profile.
type Identity struct {
	SubjectId        string `json:"subject_id"`
	Role             Role   `json:"role"`
	LinkedProviderId string `json:"linked_provider_id,omitempty"`
	DisplayName      string `json:"display_name"`
}

type Subject struct {
	Id               string    `json:"id"`
	EmailAddress     string    `json:"email_address,omitempty"`
	DisplayName      string    `json:"display_name"`
	Role             Role      `json:"role"`
	LinkedProviderId string    `json:"linked_provider_id,omitempty"`
	CreatedAt        time.Time `json:"created_at,omitempty"`
}

type Provider struct {
	Id        string    `json:"id"`
	Name      string    `json:"name"`
	Specialty string    `json:"specialty,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusRejected  AppointmentStatus = "rejected"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
)

// BlocksSlot reports whether an appointment in this status still holds
// its (provider, date, time) slot against new bookings.
func (s AppointmentStatus) BlocksSlot() bool {
	return s != StatusRejected && s != StatusCancelled
}

type Appointment struct {
	Id             string            `json:"id"`
	ProviderId     string            `json:"provider_id"`
	ProviderName   string            `json:"provider_name"`
	SubjectId      string            `json:"subject_id,omitempty"`
	SubjectName    string            `json:"subject_name"`
	SubjectContact string            `json:"subject_contact"`
	Date           string            `json:"date"`
	Time           string            `json:"time"`
	Reason         string            `json:"reason"`
	Status         AppointmentStatus `json:"status"`
	CreatedAt      time.Time         `json:"created_at,omitempty"`
}

type Conversation struct {
	Id            string    `json:"id"`
	SubjectId     string    `json:"subject_id"`
	SubjectName   string    `json:"subject_name"`
	ProviderId    string    `json:"provider_id"`
	ProviderName  string    `json:"provider_name"`
	LastMessage   string    `json:"last_message,omitempty"`
	LastMessageAt time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time `json:"created_at,omitempty"`
}

type Message struct {
	Id             string    `json:"id"`
	ConversationId string    `json:"conversation_id"`
	SenderId       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name"`
	SenderRole     Role      `json:"sender_role"`
	Body           string    `json:"body"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

type Notification struct {
	Id          string         `json:"id"`
	RecipientId string         `json:"recipient_id"`
	Kind        string         `json:"kind"`
	Title       string         `json:"title"`
	Body        string         `json:"body"`
	Payload     map[string]any `json:"payload,omitempty"`
	IsRead      bool           `json:"is_read"`
	CreatedAt   time.Time      `json:"created_at"`
}
