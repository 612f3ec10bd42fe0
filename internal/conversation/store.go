// Package conversation holds the ordered transcript and keeps it mirrored in a durable slot.
package conversation

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/harunnryd/kiki/internal/chat"
	kerrors "github.com/harunnryd/kiki/internal/errors"

	"github.com/oklog/ulid/v2"
)

// SlotStore is the durable storage the transcript is mirrored into.
type SlotStore interface {
	ReadSlot(name string) ([]byte, error)
	WriteSlot(name string, data []byte) error
	DeleteSlot(name string) error
}

type Options struct {
	Slot    string
	App     string
	Welcome string
	Now     func() time.Time
}

// Store is safe for concurrent use. Every mutation is written through to the slot before
// the mutating call returns.
type Store struct {
	mu       sync.RWMutex
	slots    SlotStore
	opts     Options
	messages []chat.Message
}

func New(slots SlotStore, opts Options) *Store {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{slots: slots, opts: opts}
}

// Load restores the persisted transcript. A missing, unreadable or empty slot yields the
// seed transcript holding only the welcome message.
func (s *Store) Load() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	if messages, ok := s.readPersisted(); ok {
		s.messages = messages
		return cloneMessages(s.messages)
	}

	s.messages = []chat.Message{s.stamp(chat.Message{Role: chat.RoleAssistant, Text: s.opts.Welcome})}
	s.persistLocked()
	return cloneMessages(s.messages)
}

func (s *Store) readPersisted() ([]chat.Message, bool) {
	data, err := s.slots.ReadSlot(s.opts.Slot)
	if err != nil {
		if !errors.Is(err, kerrors.ErrNotFound) {
			slog.Warn("Failed to read conversation history", "slot", s.opts.Slot, "error", err)
		}
		return nil, false
	}

	var messages []chat.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		slog.Warn("Discarding unparseable conversation history", "slot", s.opts.Slot, "error", err)
		return nil, false
	}
	if len(messages) == 0 {
		return nil, false
	}
	return messages, true
}

// Append adds a message to the end of the transcript and persists the whole transcript.
// Missing ids and timestamps are filled in. A timestamp earlier than the current tail is
// raised to the tail's timestamp. Persistence failures are logged, the in-memory append
// is kept.
func (s *Store) Append(msg chat.Message) chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	msg = s.stamp(msg)
	if n := len(s.messages); n > 0 && msg.Timestamp.Before(s.messages[n-1].Timestamp) {
		msg.Timestamp = s.messages[n-1].Timestamp
	}
	s.messages = append(s.messages, msg)
	s.persistLocked()
	return msg
}

// Clear empties the transcript and removes the durable slot.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.messages = nil
	if err := s.slots.DeleteSlot(s.opts.Slot); err != nil {
		slog.Warn("Failed to delete conversation history", "slot", s.opts.Slot, "error", err)
	}
}

// Export returns a snapshot of the transcript without mutating it.
func (s *Store) Export(now time.Time) chat.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return chat.Snapshot{
		Messages: cloneMessages(s.messages),
		Exported: now.UTC(),
		App:      s.opts.App,
	}
}

func (s *Store) Messages() []chat.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneMessages(s.messages)
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

func (s *Store) stamp(msg chat.Message) chat.Message {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.opts.Now().UTC()
	}
	return msg
}

func (s *Store) persistLocked() {
	data, err := json.Marshal(s.messages)
	if err != nil {
		slog.Error("Failed to encode conversation history", "error", err)
		return
	}
	if err := s.slots.WriteSlot(s.opts.Slot, data); err != nil {
		slog.Warn("Failed to persist conversation history", "slot", s.opts.Slot, "error", err)
	}
}

func cloneMessages(in []chat.Message) []chat.Message {
	out := make([]chat.Message, len(in))
	copy(out, in)
	return out
}
