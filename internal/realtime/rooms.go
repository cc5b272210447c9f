package realtime

// Room identifiers. Every connection is auto-joined to its subject's
// personal room on registration, and to its provider room when the
// identity is a doctor login with a linked provider. Conversation
// rooms are joined and left by explicit client action.

func SubjectRoom(subjectId string) string {
	return "subject:" + subjectId
}

func ProviderRoom(providerId string) string {
	return "provider:" + providerId
}

func ConversationRoom(conversationId string) string {
	return "conversation:" + conversationId
}
