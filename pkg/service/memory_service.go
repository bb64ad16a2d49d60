// Session memory manager: keyed in-memory session cache with per-key
// locks, sliding window maintenance, attachment expiry and redis
// snapshot write-through.
package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/havenai/haven/pkg/event"
	"github.com/havenai/haven/pkg/utils"
)

// ContextBlob is the bounded prompt-context payload assembled for the
// generation pipelines.
type ContextBlob struct {
	Window    []WindowTurn
	Condensed string
	Document  *Attachment
	Image     *Attachment
}

// TopicChangePredicate decides whether an attachment no longer matches
// the conversation topic. Pluggable; the default compares the topic
// recorded at upload with the session's current topic tag.
type TopicChangePredicate func(state *SessionState, a *Attachment) bool

func defaultTopicChange(state *SessionState, a *Attachment) bool {
	return a.Topic != "" && state.Topic != "" && a.Topic != state.Topic
}

// MemoryService owns all live session state. Sessions are cached in a
// keyed map with one mutex per session: holding the session lock is
// what enforces at-most-one in-flight turn per session. The cache can
// be dropped at any time; the redis snapshot rehydrates it.
type MemoryService struct {
	store         StateStore
	windowSize    int
	sessionTTL    time.Duration
	attachmentTTL time.Duration
	topicChanged  TopicChangePredicate
	logger        *slog.Logger

	mu       sync.Mutex
	sessions map[string]*sessionEntry
}

type sessionEntry struct {
	mu    sync.Mutex
	state *SessionState
}

// NewMemoryService creates a memory service. store may be nil, in which
// case snapshots are skipped and every cache miss starts fresh.
func NewMemoryService(store StateStore, windowSize int, sessionTTL, attachmentTTL time.Duration) *MemoryService {
	return &MemoryService{
		store:         store,
		windowSize:    windowSize,
		sessionTTL:    sessionTTL,
		attachmentTTL: attachmentTTL,
		topicChanged:  defaultTopicChange,
		logger:        utils.GetLogger(),
		sessions:      make(map[string]*sessionEntry),
	}
}

// SetTopicChangePredicate replaces the topic-change detector.
func (m *MemoryService) SetTopicChangePredicate(p TopicChangePredicate) {
	if p != nil {
		m.topicChanged = p
	}
}

// Acquire returns the session state with its lock held, blocking while
// another turn for the same session is in flight. The returned release
// function must be called when the turn finishes. On cache miss the
// state is rehydrated from the snapshot store, or started fresh when no
// snapshot exists or the store is unreachable.
func (m *MemoryService) Acquire(ctx context.Context, sessionID, userID string) (*SessionState, func()) {
	m.mu.Lock()
	entry, ok := m.sessions[sessionID]
	if !ok {
		entry = &sessionEntry{}
		m.sessions[sessionID] = entry
	}
	m.mu.Unlock()

	entry.mu.Lock()

	if entry.state == nil {
		entry.state = m.loadOrCreate(ctx, sessionID, userID)
	}
	entry.state.Touch(time.Now())

	return entry.state, entry.mu.Unlock
}

func (m *MemoryService) loadOrCreate(ctx context.Context, sessionID, userID string) *SessionState {
	if m.store != nil {
		state, err := m.store.Load(ctx, sessionID)
		if err == nil {
			m.logger.Info("session state rehydrated", "session_id", sessionID)
			return state
		}
		if !errors.Is(err, ErrStateNotFound) {
			m.logger.Warn("session state load failed, starting fresh",
				"session_id", sessionID, "error", err)
		}
	}
	return NewSessionState(sessionID, userID, time.Now())
}

// Record appends a turn to the sliding window, folding the evicted turn
// (if any) into the condensed digest, and writes the snapshot through.
// Snapshot failures are logged, never surfaced: losing a snapshot only
// costs future context, not the current response.
func (m *MemoryService) Record(ctx context.Context, state *SessionState, author, text, modality string) {
	now := time.Now()
	if evicted := state.AddTurn(author, text, modality, now, m.windowSize); evicted != nil {
		state.Condense(evicted)
	}
	m.save(ctx, state)
}

// Enrich applies attachment expiry rules and assembles the bounded
// context payload for prompt building. Expiry is evaluated lazily here
// rather than by a background sweep.
func (m *MemoryService) Enrich(state *SessionState, now time.Time) ContextBlob {
	m.ExpireAttachments(state, now)

	return ContextBlob{
		Window:    append([]WindowTurn(nil), state.Window...),
		Condensed: state.CondensedSummary(),
		Document:  state.Document,
		Image:     state.Image,
	}
}

// Attach installs or replaces the attachment for a class, stamping the
// upload index and reference time.
func (m *MemoryService) Attach(ctx context.Context, state *SessionState, a *Attachment) {
	now := time.Now()
	a.UploadIndex = state.TurnCount
	a.UploadedAt = now
	a.LastRef = now
	if a.Topic == "" {
		a.Topic = state.Topic
	}
	state.SetAttachment(a)
	m.save(ctx, state)
}

// TouchAttachment refreshes the last-reference timestamp of a live
// attachment; called when a turn actually uses it.
func (m *MemoryService) TouchAttachment(state *SessionState, class AttachmentClass, now time.Time) {
	if a := state.AttachmentFor(class); a != nil {
		a.LastRef = now
	}
}

// ExpireAttachments clears any attachment idle past the TTL or whose
// topic diverged from the conversation. Expiry is strict: an attachment
// exactly at the threshold is still live.
func (m *MemoryService) ExpireAttachments(state *SessionState, now time.Time) {
	for _, class := range []AttachmentClass{AttachmentDocument, AttachmentImage} {
		a := state.AttachmentFor(class)
		if a == nil {
			continue
		}
		if now.Sub(a.LastRef) > m.attachmentTTL {
			m.logger.Info("attachment expired by age",
				"session_id", state.SessionID, "class", class)
			state.ClearAttachment(class)
			event.Emit(event.AttachmentExpiredEvent{
				SessionID: state.SessionID, Class: string(class), Reason: "age",
			})
			continue
		}
		if m.topicChanged(state, a) {
			m.logger.Info("attachment expired by topic change",
				"session_id", state.SessionID, "class", class,
				"attachment_topic", a.Topic, "session_topic", state.Topic)
			state.ClearAttachment(class)
			event.Emit(event.AttachmentExpiredEvent{
				SessionID: state.SessionID, Class: string(class), Reason: "topic",
			})
		}
	}
}

// Save writes the snapshot through to the store.
func (m *MemoryService) Save(ctx context.Context, state *SessionState) {
	m.save(ctx, state)
}

func (m *MemoryService) save(ctx context.Context, state *SessionState) {
	if m.store == nil {
		return
	}
	if err := m.store.Save(ctx, state, m.sessionTTL); err != nil {
		m.logger.Warn("session snapshot save failed",
			"session_id", state.SessionID, "error", err)
	}
}

// Close removes a session from the cache and deletes its snapshot,
// returning the final state (nil if the session was not live). The
// caller runs the summarizer on the returned state.
func (m *MemoryService) Close(ctx context.Context, sessionID string) *SessionState {
	m.mu.Lock()
	entry, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
	}
	m.mu.Unlock()

	var state *SessionState
	if ok {
		entry.mu.Lock()
		state = entry.state
		entry.mu.Unlock()
	} else if m.store != nil {
		if loaded, err := m.store.Load(ctx, sessionID); err == nil {
			state = loaded
		}
	}

	if m.store != nil {
		if err := m.store.Delete(ctx, sessionID); err != nil {
			m.logger.Warn("session snapshot delete failed",
				"session_id", sessionID, "error", err)
		}
	}
	return state
}

// Cleanup reclaims in-memory state of sessions idle past the session
// TTL. A session whose lock is held (mid-turn) is never reclaimed.
// Returns the number of sessions removed.
func (m *MemoryService) Cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, entry := range m.sessions {
		if !entry.mu.TryLock() {
			continue // mid-turn
		}
		idle := entry.state == nil || now.Sub(entry.state.LastActivity) > m.sessionTTL
		entry.mu.Unlock()

		if idle {
			delete(m.sessions, id)
			removed++
			m.logger.Info("idle session reclaimed", "session_id", id)
		}
	}
	return removed
}

// ActiveSessions reports the number of cached sessions.
func (m *MemoryService) ActiveSessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
