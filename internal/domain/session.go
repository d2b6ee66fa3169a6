package domain

// Session is one conversation. ID is empty until the backend assigns it.
type Session struct {
	ID          string
	Title       string
	Messages    []Message
	IsTemporary bool
}

func (s *Session) HasID() bool {
	return s.ID != ""
}

// ChatSummary is an entry of the saved-chats list.
type ChatSummary struct {
	ID    string
	Title string
}

// ChatBinding ties a front-end chat to its current session.
type ChatBinding struct {
	ChatID    int64
	SessionID string
	Temporary bool
	Mode      Mode
}
