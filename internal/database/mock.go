package database

import (
	"github.com/stretchr/testify/mock"
)

type MockCareLinkRepository struct {
	mock.Mock
}

func (m *MockCareLinkRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}

func (m *MockCareLinkRepository) CreateSubject(params CreateSubjectParams) (Subject, error) {
	args := m.Called(params)
	return args.Get(0).(Subject), args.Error(1)
}

func (m *MockCareLinkRepository) GetSubjectById(subjectId string) (Subject, error) {
	args := m.Called(subjectId)
	return args.Get(0).(Subject), args.Error(1)
}

func (m *MockCareLinkRepository) GetSubjectByEmail(email string) (Subject, error) {
	args := m.Called(email)
	return args.Get(0).(Subject), args.Error(1)
}

func (m *MockCareLinkRepository) GetSubjectByProviderId(providerId string) (Subject, error) {
	args := m.Called(providerId)
	return args.Get(0).(Subject), args.Error(1)
}

func (m *MockCareLinkRepository) CreateProvider(params CreateProviderParams) (Provider, error) {
	args := m.Called(params)
	return args.Get(0).(Provider), args.Error(1)
}

func (m *MockCareLinkRepository) GetProviderById(providerId string) (Provider, error) {
	args := m.Called(providerId)
	return args.Get(0).(Provider), args.Error(1)
}

func (m *MockCareLinkRepository) ListProviders() ([]Provider, error) {
	args := m.Called()
	return args.Get(0).([]Provider), args.Error(1)
}

func (m *MockCareLinkRepository) FindAppointmentsBySlot(providerId, date, timeOfDay string) ([]Appointment, error) {
	args := m.Called(providerId, date, timeOfDay)
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockCareLinkRepository) CreateAppointment(params CreateAppointmentParams) (Appointment, error) {
	args := m.Called(params)
	return args.Get(0).(Appointment), args.Error(1)
}

func (m *MockCareLinkRepository) GetAppointmentById(appointmentId string) (Appointment, error) {
	args := m.Called(appointmentId)
	return args.Get(0).(Appointment), args.Error(1)
}

func (m *MockCareLinkRepository) UpdateAppointmentStatus(appointmentId, status string) (Appointment, error) {
	args := m.Called(appointmentId, status)
	return args.Get(0).(Appointment), args.Error(1)
}

func (m *MockCareLinkRepository) ListAppointmentsBySubject(subjectId string) ([]Appointment, error) {
	args := m.Called(subjectId)
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockCareLinkRepository) ListAppointmentsByProvider(providerId string) ([]Appointment, error) {
	args := m.Called(providerId)
	return args.Get(0).([]Appointment), args.Error(1)
}

func (m *MockCareLinkRepository) FindConversationByParties(subjectId, providerId string) (Conversation, error) {
	args := m.Called(subjectId, providerId)
	return args.Get(0).(Conversation), args.Error(1)
}

func (m *MockCareLinkRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	args := m.Called(params)
	return args.Get(0).(Conversation), args.Error(1)
}

func (m *MockCareLinkRepository) GetConversationById(conversationId string) (Conversation, error) {
	args := m.Called(conversationId)
	return args.Get(0).(Conversation), args.Error(1)
}

func (m *MockCareLinkRepository) ListConversationsBySubject(subjectId string) ([]Conversation, error) {
	args := m.Called(subjectId)
	return args.Get(0).([]Conversation), args.Error(1)
}

func (m *MockCareLinkRepository) ListConversationsByProvider(providerId string) ([]Conversation, error) {
	args := m.Called(providerId)
	return args.Get(0).([]Conversation), args.Error(1)
}

func (m *MockCareLinkRepository) UpdateConversationOnMessage(conversationId, lastMessage string) error {
	args := m.Called(conversationId, lastMessage)
	return args.Error(0)
}

func (m *MockCareLinkRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	args := m.Called(params)
	return args.Get(0).(Message), args.Error(1)
}

func (m *MockCareLinkRepository) ListMessages(conversationId string, limit int) ([]Message, error) {
	args := m.Called(conversationId, limit)
	return args.Get(0).([]Message), args.Error(1)
}

func (m *MockCareLinkRepository) MarkMessagesRead(conversationId, readerSubjectId string) (int64, error) {
	args := m.Called(conversationId, readerSubjectId)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCareLinkRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	args := m.Called(params)
	return args.Get(0).(Notification), args.Error(1)
}

func (m *MockCareLinkRepository) ListNotifications(recipientId string, limit int) ([]Notification, error) {
	args := m.Called(recipientId, limit)
	return args.Get(0).([]Notification), args.Error(1)
}

func (m *MockCareLinkRepository) CountUnreadNotifications(recipientId string) (int, error) {
	args := m.Called(recipientId)
	return args.Int(0), args.Error(1)
}

func (m *MockCareLinkRepository) MarkNotificationRead(notificationId, recipientId string) error {
	args := m.Called(notificationId, recipientId)
	return args.Error(0)
}
