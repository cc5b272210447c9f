package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

func (db *PgCareLinkRepository) CreateSubject(params CreateSubjectParams) (Subject, error) {
	var providerId any
	if params.LinkedProviderId != "" {
		providerId = params.LinkedProviderId
	}

	res := db.conn.QueryRow(
		"INSERT INTO subjects (id, email, display_name, role, provider_id, password_hash, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id, email, display_name, role, created_at",
		uuid.NewString(),
		params.EmailAddress,
		params.DisplayName,
		params.Role,
		providerId,
		params.PasswordHash,
		time.Now().UTC(),
	)

	var s Subject
	err := res.Scan(
		&s.Id,
		&s.EmailAddress,
		&s.DisplayName,
		&s.Role,
		&s.CreatedAt,
	)
	if isUniqueViolation(err) {
		return Subject{}, ErrDuplicate
	}

	s.LinkedProviderId = params.LinkedProviderId
	return s, err
}

func scanSubject(row *sql.Row) (Subject, error) {
	var s Subject
	var providerId sql.NullString
	err := row.Scan(
		&s.Id,
		&s.EmailAddress,
		&s.DisplayName,
		&s.Role,
		&providerId,
		&s.PasswordHash,
		&s.CreatedAt,
	)

	s.LinkedProviderId = providerId.String
	return s, err
}

const subjectColumns = "id, email, display_name, role, provider_id, password_hash, created_at"

func (db *PgCareLinkRepository) GetSubjectById(subjectId string) (Subject, error) {
	return scanSubject(db.conn.QueryRow(
		"SELECT "+subjectColumns+" FROM subjects WHERE id = $1 LIMIT 1",
		subjectId,
	))
}

func (db *PgCareLinkRepository) GetSubjectByEmail(email string) (Subject, error) {
	return scanSubject(db.conn.QueryRow(
		"SELECT "+subjectColumns+" FROM subjects WHERE email = $1 LIMIT 1",
		email,
	))
}

func (db *PgCareLinkRepository) GetSubjectByProviderId(providerId string) (Subject, error) {
	return scanSubject(db.conn.QueryRow(
		"SELECT "+subjectColumns+" FROM subjects WHERE provider_id = $1 LIMIT 1",
		providerId,
	))
}

func (db *PgCareLinkRepository) CreateProvider(params CreateProviderParams) (Provider, error) {
	res := db.conn.QueryRow(
		"INSERT INTO providers (id, name, specialty, created_at) "+
			"VALUES ($1, $2, $3, $4) RETURNING id, name, specialty, created_at",
		uuid.NewString(),
		params.Name,
		params.Specialty,
		time.Now().UTC(),
	)

	var p Provider
	err := res.Scan(&p.Id, &p.Name, &p.Specialty, &p.CreatedAt)
	return p, err
}

func (db *PgCareLinkRepository) GetProviderById(providerId string) (Provider, error) {
	row := db.conn.QueryRow(
		"SELECT id, name, specialty, created_at FROM providers WHERE id = $1 LIMIT 1",
		providerId,
	)

	var p Provider
	err := row.Scan(&p.Id, &p.Name, &p.Specialty, &p.CreatedAt)
	return p, err
}

func (db *PgCareLinkRepository) ListProviders() ([]Provider, error) {
	rows, err := db.conn.Query(
		"SELECT id, name, specialty, created_at FROM providers ORDER BY name",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var providers []Provider
	for rows.Next() {
		var p Provider
		if err = rows.Scan(&p.Id, &p.Name, &p.Specialty, &p.CreatedAt); err != nil {
			break
		}
		providers = append(providers, p)
	}
	return providers, err
}

const appointmentColumns = "a.id, a.provider_id, p.name, a.subject_id, a.subject_name, " +
	"a.subject_contact, a.date, a.time, a.reason, a.status, a.created_at"

func scanAppointment(rows interface{ Scan(...any) error }) (Appointment, error) {
	var a Appointment
	var subjectId sql.NullString
	err := rows.Scan(
		&a.Id,
		&a.ProviderId,
		&a.ProviderName,
		&subjectId,
		&a.SubjectName,
		&a.SubjectContact,
		&a.Date,
		&a.Time,
		&a.Reason,
		&a.Status,
		&a.CreatedAt,
	)

	a.SubjectId = subjectId.String
	return a, err
}

func (db *PgCareLinkRepository) FindAppointmentsBySlot(providerId, date, timeOfDay string) ([]Appointment, error) {
	rows, err := db.conn.Query(
		"SELECT "+appointmentColumns+" FROM appointments a "+
			"JOIN providers p ON p.id = a.provider_id "+
			"WHERE a.provider_id = $1 AND a.date = $2 AND a.time = $3 "+
			"AND a.status NOT IN ('rejected', 'cancelled')",
		providerId,
		date,
		timeOfDay,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

func (db *PgCareLinkRepository) CreateAppointment(params CreateAppointmentParams) (Appointment, error) {
	var subjectId any
	if params.SubjectId != "" {
		subjectId = params.SubjectId
	}

	res := db.conn.QueryRow(
		"INSERT INTO appointments (id, provider_id, subject_id, subject_name, subject_contact, "+
			"date, time, reason, status, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'pending', $9) "+
			"RETURNING id, subject_name, subject_contact, date, time, reason, status, created_at",
		uuid.NewString(),
		params.ProviderId,
		subjectId,
		params.SubjectName,
		params.SubjectContact,
		params.Date,
		params.Time,
		params.Reason,
		time.Now().UTC(),
	)

	var a Appointment
	err := res.Scan(
		&a.Id,
		&a.SubjectName,
		&a.SubjectContact,
		&a.Date,
		&a.Time,
		&a.Reason,
		&a.Status,
		&a.CreatedAt,
	)
	if isUniqueViolation(err) {
		return Appointment{}, ErrDuplicate
	}

	a.ProviderId = params.ProviderId
	a.ProviderName = params.ProviderName
	a.SubjectId = params.SubjectId
	return a, err
}

func (db *PgCareLinkRepository) GetAppointmentById(appointmentId string) (Appointment, error) {
	return scanAppointment(db.conn.QueryRow(
		"SELECT "+appointmentColumns+" FROM appointments a "+
			"JOIN providers p ON p.id = a.provider_id WHERE a.id = $1 LIMIT 1",
		appointmentId,
	))
}

func (db *PgCareLinkRepository) UpdateAppointmentStatus(appointmentId, status string) (Appointment, error) {
	_, err := db.conn.Exec(
		"UPDATE appointments SET status = $2 WHERE id = $1",
		appointmentId,
		status,
	)
	if err != nil {
		return Appointment{}, err
	}

	return db.GetAppointmentById(appointmentId)
}

func (db *PgCareLinkRepository) ListAppointmentsBySubject(subjectId string) ([]Appointment, error) {
	return db.listAppointments(
		"SELECT "+appointmentColumns+" FROM appointments a "+
			"JOIN providers p ON p.id = a.provider_id "+
			"WHERE a.subject_id = $1 ORDER BY a.date, a.time",
		subjectId,
	)
}

func (db *PgCareLinkRepository) ListAppointmentsByProvider(providerId string) ([]Appointment, error) {
	return db.listAppointments(
		"SELECT "+appointmentColumns+" FROM appointments a "+
			"JOIN providers p ON p.id = a.provider_id "+
			"WHERE a.provider_id = $1 ORDER BY a.date, a.time",
		providerId,
	)
}

func (db *PgCareLinkRepository) listAppointments(query string, arg any) ([]Appointment, error) {
	rows, err := db.conn.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appointments []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

const conversationColumns = "id, subject_id, subject_name, provider_id, provider_name, " +
	"last_message, last_message_at, created_at"

func scanConversation(row interface{ Scan(...any) error }) (Conversation, error) {
	var c Conversation
	var lastMessageAt sql.NullTime
	err := row.Scan(
		&c.Id,
		&c.SubjectId,
		&c.SubjectName,
		&c.ProviderId,
		&c.ProviderName,
		&c.LastMessage,
		&lastMessageAt,
		&c.CreatedAt,
	)

	c.LastMessageAt = lastMessageAt.Time
	return c, err
}

func (db *PgCareLinkRepository) FindConversationByParties(subjectId, providerId string) (Conversation, error) {
	return scanConversation(db.conn.QueryRow(
		"SELECT "+conversationColumns+" FROM conversations "+
			"WHERE subject_id = $1 AND provider_id = $2 LIMIT 1",
		subjectId,
		providerId,
	))
}

func (db *PgCareLinkRepository) CreateConversation(params CreateConversationParams) (Conversation, error) {
	res := db.conn.QueryRow(
		"INSERT INTO conversations (id, subject_id, subject_name, provider_id, provider_name, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6) RETURNING "+conversationColumns,
		uuid.NewString(),
		params.SubjectId,
		params.SubjectName,
		params.ProviderId,
		params.ProviderName,
		time.Now().UTC(),
	)

	c, err := scanConversation(res)
	if isUniqueViolation(err) {
		return Conversation{}, ErrDuplicate
	}
	return c, err
}

func (db *PgCareLinkRepository) GetConversationById(conversationId string) (Conversation, error) {
	return scanConversation(db.conn.QueryRow(
		"SELECT "+conversationColumns+" FROM conversations WHERE id = $1 LIMIT 1",
		conversationId,
	))
}

func (db *PgCareLinkRepository) ListConversationsBySubject(subjectId string) ([]Conversation, error) {
	return db.listConversations(
		"SELECT "+conversationColumns+" FROM conversations "+
			"WHERE subject_id = $1 ORDER BY last_message_at DESC NULLS LAST",
		subjectId,
	)
}

func (db *PgCareLinkRepository) ListConversationsByProvider(providerId string) ([]Conversation, error) {
	return db.listConversations(
		"SELECT "+conversationColumns+" FROM conversations "+
			"WHERE provider_id = $1 ORDER BY last_message_at DESC NULLS LAST",
		providerId,
	)
}

func (db *PgCareLinkRepository) listConversations(query string, arg any) ([]Conversation, error) {
	rows, err := db.conn.Query(query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var conversations []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		conversations = append(conversations, c)
	}
	return conversations, rows.Err()
}

func (db *PgCareLinkRepository) UpdateConversationOnMessage(conversationId, lastMessage string) error {
	_, err := db.conn.Exec(
		"UPDATE conversations SET last_message = $2, last_message_at = $3 WHERE id = $1",
		conversationId,
		lastMessage,
		time.Now().UTC(),
	)
	return err
}

func (db *PgCareLinkRepository) CreateMessage(params CreateMessageParams) (Message, error) {
	res := db.conn.QueryRow(
		"INSERT INTO messages (id, conversation_id, sender_id, sender_name, sender_role, body, is_read, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7) "+
			"RETURNING id, conversation_id, sender_id, sender_name, sender_role, body, is_read, created_at",
		uuid.NewString(),
		params.ConversationId,
		params.SenderId,
		params.SenderName,
		params.SenderRole,
		params.Body,
		time.Now().UTC(),
	)

	var m Message
	err := res.Scan(
		&m.Id,
		&m.ConversationId,
		&m.SenderId,
		&m.SenderName,
		&m.SenderRole,
		&m.Body,
		&m.IsRead,
		&m.CreatedAt,
	)
	return m, err
}

func (db *PgCareLinkRepository) ListMessages(conversationId string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, conversation_id, sender_id, sender_name, sender_role, body, is_read, created_at "+
			"FROM messages WHERE conversation_id = $1 ORDER BY created_at LIMIT $2",
		conversationId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err = rows.Scan(
			&m.Id,
			&m.ConversationId,
			&m.SenderId,
			&m.SenderName,
			&m.SenderRole,
			&m.Body,
			&m.IsRead,
			&m.CreatedAt,
		); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (db *PgCareLinkRepository) MarkMessagesRead(conversationId, readerSubjectId string) (int64, error) {
	res, err := db.conn.Exec(
		"UPDATE messages SET is_read = TRUE "+
			"WHERE conversation_id = $1 AND sender_id != $2 AND is_read = FALSE",
		conversationId,
		readerSubjectId,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

func (db *PgCareLinkRepository) CreateNotification(params CreateNotificationParams) (Notification, error) {
	var payload any
	if len(params.Payload) > 0 {
		payload = params.Payload
	}

	res := db.conn.QueryRow(
		"INSERT INTO notifications (id, recipient_id, kind, title, body, payload, is_read, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, $6, FALSE, $7) "+
			"RETURNING id, recipient_id, kind, title, body, is_read, created_at",
		uuid.NewString(),
		params.RecipientId,
		params.Kind,
		params.Title,
		params.Body,
		payload,
		time.Now().UTC(),
	)

	var n Notification
	err := res.Scan(
		&n.Id,
		&n.RecipientId,
		&n.Kind,
		&n.Title,
		&n.Body,
		&n.IsRead,
		&n.CreatedAt,
	)

	n.Payload = params.Payload
	return n, err
}

func (db *PgCareLinkRepository) ListNotifications(recipientId string, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := db.conn.Query(
		"SELECT id, recipient_id, kind, title, body, payload, is_read, created_at "+
			"FROM notifications WHERE recipient_id = $1 ORDER BY created_at DESC LIMIT $2",
		recipientId,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notifications []Notification
	for rows.Next() {
		var n Notification
		var payload []byte
		if err = rows.Scan(
			&n.Id,
			&n.RecipientId,
			&n.Kind,
			&n.Title,
			&n.Body,
			&payload,
			&n.IsRead,
			&n.CreatedAt,
		); err != nil {
			return nil, err
		}
		n.Payload = payload
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

func (db *PgCareLinkRepository) CountUnreadNotifications(recipientId string) (int, error) {
	row := db.conn.QueryRow(
		"SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE",
		recipientId,
	)

	var count int
	err := row.Scan(&count)
	return count, err
}

func (db *PgCareLinkRepository) MarkNotificationRead(notificationId, recipientId string) error {
	_, err := db.conn.Exec(
		"UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2",
		notificationId,
		recipientId,
	)
	return err
}
