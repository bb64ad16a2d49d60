package service

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestMemory() *MemoryService {
	return NewMemoryService(nil, 3, 30*time.Minute, 10*time.Minute)
}

func TestRecordEvictsIntoCondensedDigest(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	state, release := m.Acquire(ctx, "s1", "u1")
	defer release()

	messages := []string{
		"I can't sleep at night",
		"it started last week",
		"I feel tired all day",
		"work has been stressful",
		"what can I do about it",
	}
	for _, msg := range messages {
		m.Record(ctx, state, "user", msg, "text")
	}

	if len(state.Window) != 3 {
		t.Fatalf("window size = %d, want 3", len(state.Window))
	}
	if state.Window[0].Text != messages[2] {
		t.Fatalf("oldest window turn = %q, want %q", state.Window[0].Text, messages[2])
	}

	summary := state.CondensedSummary()
	if !strings.HasPrefix(summary, "Earlier in conversation, discussed:") {
		t.Fatalf("condensed summary = %q", summary)
	}
	if !strings.Contains(summary, "sleep") {
		t.Fatalf("condensed summary missing evicted topic: %q", summary)
	}
}

func TestAttachmentExpiryBoundary(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	now := time.Now()

	state, release := m.Acquire(ctx, "s1", "u1")
	defer release()

	m.Attach(ctx, state, &Attachment{Class: AttachmentDocument, Content: "blood test results"})

	// One minute inside the TTL: still live.
	state.Document.LastRef = now.Add(-9 * time.Minute)
	m.ExpireAttachments(state, now)
	if state.Document == nil {
		t.Fatal("attachment expired inside TTL")
	}

	// One minute past the TTL: gone.
	state.Document.LastRef = now.Add(-11 * time.Minute)
	m.ExpireAttachments(state, now)
	if state.Document != nil {
		t.Fatal("attachment survived past TTL")
	}
}

func TestAttachmentExpiryOnTopicChange(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	state, release := m.Acquire(ctx, "s1", "u1")
	defer release()

	state.Topic = "sleep issues"
	m.Attach(ctx, state, &Attachment{Class: AttachmentDocument, Content: "sleep study"})

	state.Topic = "anxiety"
	m.ExpireAttachments(state, time.Now())
	if state.Document != nil {
		t.Fatal("attachment survived topic change")
	}
}

func TestEnrichCopiesWindow(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()
	state, release := m.Acquire(ctx, "s1", "u1")
	defer release()

	m.Record(ctx, state, "user", "I have a headache", "text")
	blob := m.Enrich(state, time.Now())
	if len(blob.Window) != 1 {
		t.Fatalf("blob window = %d, want 1", len(blob.Window))
	}
	blob.Window[0].Text = "mutated"
	if state.Window[0].Text == "mutated" {
		t.Fatal("Enrich returned aliased window slice")
	}
}

func TestCleanupSkipsInFlightSessions(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	_, release := m.Acquire(ctx, "busy", "u1")
	state2, release2 := m.Acquire(ctx, "idle", "u2")
	state2.LastActivity = time.Now().Add(-2 * time.Hour)
	release2()

	// "busy" is still locked mid-turn; only "idle" may go.
	removed := m.Cleanup(time.Now().Add(time.Hour))
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}
	if m.ActiveSessions() != 1 {
		t.Fatalf("active sessions = %d, want 1", m.ActiveSessions())
	}
	release()
}

func TestCleanupKeepsRecentSessions(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	_, release := m.Acquire(ctx, "fresh", "u1")
	release()

	if removed := m.Cleanup(time.Now()); removed != 0 {
		t.Fatalf("removed = %d, want 0", removed)
	}
}

func TestCloseReturnsStateAndEvicts(t *testing.T) {
	m := newTestMemory()
	ctx := context.Background()

	state, release := m.Acquire(ctx, "s1", "u1")
	m.Record(ctx, state, "user", "feeling anxious", "text")
	release()

	closed := m.Close(ctx, "s1")
	if closed == nil {
		t.Fatal("Close returned nil state for live session")
	}
	if len(closed.Window) != 1 {
		t.Fatalf("closed state window = %d, want 1", len(closed.Window))
	}
	if m.ActiveSessions() != 0 {
		t.Fatalf("session still cached after Close")
	}
}
