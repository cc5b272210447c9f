package database

import "errors"

// ErrDuplicate is returned when an insert violates a uniqueness
// constraint: a second booking for the same active slot, or a second
// conversation for the same (subject, provider) pair.
var ErrDuplicate = errors.New("database: duplicate row")

type CareLinkRepository interface {
	Ping() error

	CreateSubject(params CreateSubjectParams) (Subject, error)
	GetSubjectById(subjectId string) (Subject, error)
	GetSubjectByEmail(email string) (Subject, error)
	GetSubjectByProviderId(providerId string) (Subject, error)

	CreateProvider(params CreateProviderParams) (Provider, error)
	GetProviderById(providerId string) (Provider, error)
	ListProviders() ([]Provider, error)

	FindAppointmentsBySlot(providerId, date, timeOfDay string) ([]Appointment, error)
	CreateAppointment(params CreateAppointmentParams) (Appointment, error)
	GetAppointmentById(appointmentId string) (Appointment, error)
	UpdateAppointmentStatus(appointmentId, status string) (Appointment, error)
	ListAppointmentsBySubject(subjectId string) ([]Appointment, error)
	ListAppointmentsByProvider(providerId string) ([]Appointment, error)

	FindConversationByParties(subjectId, providerId string) (Conversation, error)
	CreateConversation(params CreateConversationParams) (Conversation, error)
	GetConversationById(conversationId string) (Conversation, error)
	ListConversationsBySubject(subjectId string) ([]Conversation, error)
	ListConversationsByProvider(providerId string) ([]Conversation, error)
	UpdateConversationOnMessage(conversationId, lastMessage string) error

	CreateMessage(params CreateMessageParams) (Message, error)
	ListMessages(conversationId string, limit int) ([]Message, error)
	MarkMessagesRead(conversationId, readerSubjectId string) (int64, error)

	CreateNotification(params CreateNotificationParams) (Notification, error)
	ListNotifications(recipientId string, limit int) ([]Notification, error)
	CountUnreadNotifications(recipientId string) (int, error)
	MarkNotificationRead(notificationId, recipientId string) error
}
