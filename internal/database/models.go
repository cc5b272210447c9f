package database

import "time"

type Subject struct {
	Id               string
	EmailAddress     string
	DisplayName      string
	Role             string
	LinkedProviderId string
	PasswordHash     string
	CreatedAt        time.Time
}

type Provider struct {
	Id        string
	Name      string
	Specialty string
	CreatedAt time.Time
}

type Appointment struct {
	Id             string
	ProviderId     string
	ProviderName   string
	SubjectId      string
	SubjectName    string
	SubjectContact string
	Date           string
	Time           string
	Reason         string
	Status         string
	CreatedAt      time.Time
}

type Conversation struct {
	Id            string
	SubjectId     string
	SubjectName   string
	ProviderId    string
	ProviderName  string
	LastMessage   string
	LastMessageAt time.Time
	CreatedAt     time.Time
}

type Message struct {
	Id             string
	ConversationId string
	SenderId       string
	SenderName     string
	SenderRole     string
	Body           string
	IsRead         bool
	CreatedAt      time.Time
}

type Notification struct {
	Id          string
	RecipientId string
	Kind        string
	Title       string
	Body        string
	Payload     []byte
	IsRead      bool
	CreatedAt   time.Time
}

type CreateSubjectParams struct {
	EmailAddress     string
	DisplayName      string
	Role             string
	LinkedProviderId string
	PasswordHash     string
}

type CreateProviderParams struct {
	Name      string
	Specialty string
}

type CreateAppointmentParams struct {
	ProviderId     string
	ProviderName   string
	SubjectId      string
	SubjectName    string
	SubjectContact string
	Date           string
	Time           string
	Reason         string
}

type CreateConversationParams struct {
	SubjectId    string
	SubjectName  string
	ProviderId   string
	ProviderName string
}

type CreateMessageParams struct {
	ConversationId string
	SenderId       string
	SenderName     string
	SenderRole     string
	Body           string
}

type CreateNotificationParams struct {
	RecipientId string
	Kind        string
	Title       string
	Body        string
	Payload     []byte
}
