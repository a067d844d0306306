package communication

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/NethermindEth/eternal-regression/core"
)

// ForumMessage is one line spoken during a run.
type ForumMessage struct {
	ID        string         `json:"id"`
	Round     int            `json:"round"`
	Kind      core.EventType `json:"kind"`
	Sender    string         `json:"sender"`
	Target    string         `json:"target,omitempty"`
	Content   string         `json:"content"`
	Timestamp time.Time      `json:"timestamp"`
}

// ForumThread is the transcript of one run.
type ForumThread struct {
	ThreadID  string         `json:"thread_id"` // the run id
	Title     string         `json:"title"`
	Creator   string         `json:"creator"`
	CreatedAt time.Time      `json:"created_at"`
	Messages  []ForumMessage `json:"messages"`
}

// Forum keeps a transcript per run.
type Forum struct {
	mu      sync.Mutex
	threads map[string]*ForumThread
}

func NewForum() *Forum {
	return &Forum{threads: make(map[string]*ForumThread)}
}

// CreateThread creates a new transcript and stores it.
func (f *Forum) CreateThread(threadID, title, creator string) *ForumThread {
	f.mu.Lock()
	defer f.mu.Unlock()

	thread := &ForumThread{
		ThreadID:  threadID,
		Title:     title,
		Creator:   creator,
		CreatedAt: time.Now(),
		Messages:  []ForumMessage{},
	}
	f.threads[threadID] = thread
	return thread
}

// AddReply appends a message to an existing thread.
func (f *Forum) AddReply(threadID string, msg ForumMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	thread, exists := f.threads[threadID]
	if !exists {
		return fmt.Errorf("thread with id %s does not exist", threadID)
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	thread.Messages = append(thread.Messages, msg)
	return nil
}

// GetThread returns a copy of a thread.
func (f *Forum) GetThread(threadID string) (*ForumThread, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	thread, exists := f.threads[threadID]
	if !exists {
		return nil, fmt.Errorf("thread with id %s not found", threadID)
	}
	out := *thread
	out.Messages = append([]ForumMessage(nil), thread.Messages...)
	return &out, nil
}

// DeleteThread forgets a thread.
func (f *Forum) DeleteThread(threadID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.threads, threadID)
}

// Publish implements Sink: every event that carries speech becomes a message
// of the run's thread, which is created on first use.
func (f *Forum) Publish(runID string, ev core.Event) error {
	if ev.Message == "" {
		return nil
	}
	f.mu.Lock()
	_, exists := f.threads[runID]
	f.mu.Unlock()
	if !exists {
		f.CreateThread(runID, "Eternal regression "+runID, "herald")
	}
	return f.AddReply(runID, ForumMessage{
		ID:        ev.ID,
		Round:     ev.Round,
		Kind:      ev.Type,
		Sender:    ev.CharName,
		Target:    ev.TargetName,
		Content:   ev.Message,
		Timestamp: ev.Timestamp,
	})
}
