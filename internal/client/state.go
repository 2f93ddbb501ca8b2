package client

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"nhanz-chat/internal/models"
)

// EntryStatus tracks an optimistic entry against the server.
type EntryStatus int

const (
	StatusSent EntryStatus = iota
	StatusPending
	StatusFailed
)

func (s EntryStatus) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFailed:
		return "failed"
	default:
		return "sent"
	}
}

// Entry is one row of the visible message list.
type Entry struct {
	models.Message
	ClientID string
	Status   EntryStatus
}

// IncomingResult describes what ApplyIncoming did with a broadcast.
type IncomingResult struct {
	// Own is set for echoes of the caller's messages; they are never appended.
	Own      bool
	Appended bool
	// Unknown is set when the conversation is missing from the list, which
	// happens when someone else opened it; callers should refetch the list.
	Unknown bool
}

// State merges fetched history, optimistic sends and live events into the
// view of one signed-in user. It is safe for concurrent use.
type State struct {
	mu            sync.RWMutex
	me            models.PublicProfile
	conversations []models.Conversation
	activeID      string
	messages      []Entry
	typing        map[string]map[string]struct{}

	now         func() time.Time
	newClientID func() string
}

// NewState creates an empty state for the signed-in user.
func NewState(me models.PublicProfile) *State {
	return &State{
		me:          me,
		typing:      make(map[string]map[string]struct{}),
		now:         time.Now,
		newClientID: randomClientID,
	}
}

func randomClientID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return "tmp-" + hex.EncodeToString(buf)
}

// Me returns the signed-in user's profile.
func (s *State) Me() models.PublicProfile {
	return s.me
}

// SetConversations replaces the conversation list, most recently active first.
// The server only lists conversations with membership rows, so group
// conversations opened locally (the shared general chat) and the active one
// are carried over when the fetched list omits them.
func (s *State) SetConversations(convs []models.Conversation) {
	list := make([]models.Conversation, len(convs))
	copy(list, convs)

	s.mu.Lock()
	defer s.mu.Unlock()

	fetched := make(map[string]struct{}, len(list))
	for _, conv := range list {
		fetched[conv.ID] = struct{}{}
	}
	for _, conv := range s.conversations {
		if _, ok := fetched[conv.ID]; ok {
			continue
		}
		if conv.IsGroup || conv.ID == s.activeID {
			list = append(list, conv)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].UpdatedAt.After(list[j].UpdatedAt)
	})
	s.conversations = list
}

// OpenConversation activates conv, adding it to the top of the list when it
// is not there yet. Switching away clears the visible messages until
// SwitchConversation delivers history.
func (s *State) OpenConversation(conv models.Conversation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(conv.ID) < 0 {
		s.conversations = append([]models.Conversation{conv}, s.conversations...)
	}
	if s.activeID != conv.ID {
		s.activeID = conv.ID
		s.messages = nil
	}
}

// SwitchConversation activates id and replaces the visible list with history.
func (s *State) SwitchConversation(id string, history []models.Message) {
	entries := make([]Entry, 0, len(history))
	for _, msg := range history {
		entries = append(entries, Entry{Message: msg, Status: StatusSent})
	}

	s.mu.Lock()
	s.activeID = id
	s.messages = entries
	s.mu.Unlock()
}

// SendOptimistic appends a pending entry for text and returns the payload to
// emit. The entry is shown at once and carries a client id that a later
// send_failed refers back to.
func (s *State) SendOptimistic(conversationID, text string) (models.SendMessagePayload, error) {
	now := s.now().UTC()
	payload := models.SendMessagePayload{
		Text:           text,
		SenderID:       s.me.ID,
		ConversationID: conversationID,
		Timestamp:      &now,
		ClientID:       s.newClientID(),
	}
	if err := payload.Validate(); err != nil {
		return models.SendMessagePayload{}, err
	}

	me := s.me
	msg := models.Message{
		ConversationID: conversationID,
		SenderID:       me.ID,
		Text:           text,
		CreatedAt:      now,
		Sender:         &me,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if conversationID == s.activeID {
		s.messages = append(s.messages, Entry{Message: msg, ClientID: payload.ClientID, Status: StatusPending})
	}
	s.bump(msg)
	return payload, nil
}

// ApplyIncoming merges a receive_message broadcast.
func (s *State) ApplyIncoming(msg models.Message) IncomingResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.SenderID == s.me.ID {
		s.confirm(msg)
		return IncomingResult{Own: true}
	}

	res := IncomingResult{}
	if msg.ConversationID == s.activeID {
		s.messages = append(s.messages, Entry{Message: msg, Status: StatusSent})
		res.Appended = true
	}
	res.Unknown = !s.bump(msg)
	return res
}

// confirm marks the oldest pending entry matching an own echo as sent.
func (s *State) confirm(msg models.Message) {
	for i := range s.messages {
		e := &s.messages[i]
		if e.Status == StatusPending && e.ConversationID == msg.ConversationID && e.Text == msg.Text {
			e.ID = msg.ID
			e.CreatedAt = msg.CreatedAt
			e.Status = StatusSent
			return
		}
	}
}

// ApplySendFailed marks the optimistic entry with the payload's client id as failed.
func (s *State) ApplySendFailed(p models.SendFailedPayload) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.messages {
		if p.ClientID != "" && s.messages[i].ClientID == p.ClientID {
			s.messages[i].Status = StatusFailed
			return true
		}
	}
	return false
}

// ApplyTyping adds the username to the conversation's typing set.
func (s *State) ApplyTyping(p models.TypingPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.typing[p.ConversationID]
	if !ok {
		set = make(map[string]struct{})
		s.typing[p.ConversationID] = set
	}
	set[p.Username] = struct{}{}
}

// ApplyStopTyping removes the username. There is no expiry: a peer that
// disconnects while typing stays listed until stop_typing arrives.
func (s *State) ApplyStopTyping(p models.TypingPayload) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if set, ok := s.typing[p.ConversationID]; ok {
		delete(set, p.Username)
		if len(set) == 0 {
			delete(s.typing, p.ConversationID)
		}
	}
}

// bump records msg as the conversation's latest and moves it to the top.
// It reports false when the conversation is not in the list. Caller holds s.mu.
func (s *State) bump(msg models.Message) bool {
	i := s.indexOf(msg.ConversationID)
	if i < 0 {
		return false
	}
	conv := s.conversations[i]
	last := msg
	conv.LastMessage = &last
	conv.UpdatedAt = msg.CreatedAt
	if conv.UpdatedAt.IsZero() {
		conv.UpdatedAt = s.now().UTC()
	}

	copy(s.conversations[1:i+1], s.conversations[:i])
	s.conversations[0] = conv
	return true
}

func (s *State) indexOf(id string) int {
	for i := range s.conversations {
		if s.conversations[i].ID == id {
			return i
		}
	}
	return -1
}

// ActiveConversationID returns the open conversation, or "" when none is open.
func (s *State) ActiveConversationID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Conversations returns a copy of the conversation list.
func (s *State) Conversations() []models.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Conversation, len(s.conversations))
	copy(out, s.conversations)
	return out
}

// Messages returns a copy of the visible message list.
func (s *State) Messages() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Entry, len(s.messages))
	copy(out, s.messages)
	return out
}

// TypingUsers returns who is typing in the conversation, sorted.
func (s *State) TypingUsers(conversationID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	users := make([]string, 0, len(s.typing[conversationID]))
	for name := range s.typing[conversationID] {
		users = append(users, name)
	}
	sort.Strings(users)
	return users
}
