package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/havenai/haven/pkg/adapters"
	"github.com/havenai/haven/pkg/db"
	"github.com/havenai/haven/pkg/fallback"
	"github.com/havenai/haven/pkg/models"
)

func summaryChainReplying(raw string, fail bool) *fallback.Chain[adapters.GenInput, string] {
	tier := fallback.AdapterFunc("summary", func(ctx context.Context, in adapters.GenInput) (string, error) {
		if fail {
			return "", errors.New("model unavailable")
		}
		return raw, nil
	})
	return fallback.NewChain("summary", time.Second, adapters.RawValid, adapters.EmptyFallback, tier)
}

func newSummaryEnv(t *testing.T, raw string, fail bool) (*SummaryService, *ConsentService, *gorm.DB) {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(&db.Turn{}, &db.ConsentRecord{}, &db.SessionSummary{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	consent := NewConsentService(database)
	return NewSummaryService(database, consent, summaryChainReplying(raw, fail)), consent, database
}

func seedTurns(t *testing.T, database *gorm.DB, sessionID string) {
	t.Helper()
	turns := []db.Turn{
		{ID: uuid.New().String(), SessionID: sessionID, Author: db.TurnAuthorUser, DerivedText: "I can't sleep and work is stressful", CreatedAt: time.Now().Add(-20 * time.Minute)},
		{ID: uuid.New().String(), SessionID: sessionID, Author: db.TurnAuthorAssistant, DerivedText: "That sounds hard. What time do you usually wind down?", CreatedAt: time.Now()},
	}
	if err := database.Create(&turns).Error; err != nil {
		t.Fatalf("seed turns: %v", err)
	}
}

const summaryJSON = `{"summary_text":"Discussed sleep trouble linked to work stress. Contact me at jane@example.com or 555-123-4567.","primary_intent":"health_query","primary_emotion":"anxious","overall_sentiment":"negative","severity_peak":"moderate","health_topics":["sleep issues","work stress"],"context_details":{"duration":"20m","triggers":"deadlines","severity_notes":"worse on weeknights","actions_taken":"suggested wind-down routine"}}`

func TestSummarizeStoresScrubbedSummary(t *testing.T) {
	svc, consent, database := newSummaryEnv(t, summaryJSON, false)
	yes := true
	if _, err := consent.Update("u1", &models.UpdateConsentRequest{Memory: &yes}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	seedTurns(t, database, "s1")

	svc.Summarize(context.Background(), "s1", "u1", nil)

	var row db.SessionSummary
	if err := database.First(&row, "session_id = ?", "s1").Error; err != nil {
		t.Fatalf("summary not stored: %v", err)
	}
	if row.SeverityPeak != "moderate" {
		t.Fatalf("severity peak = %q", row.SeverityPeak)
	}
	if len(row.HealthTopics) != 2 {
		t.Fatalf("health topics = %v", row.HealthTopics)
	}
	if strings.Contains(row.SummaryText, "jane@example.com") || strings.Contains(row.SummaryText, "555-123-4567") {
		t.Fatalf("PII survived scrub: %q", row.SummaryText)
	}
	if !strings.Contains(row.SummaryText, "[redacted]") {
		t.Fatalf("summary text = %q", row.SummaryText)
	}
}

func TestSummarizeSkippedWithoutMemoryConsent(t *testing.T) {
	svc, _, database := newSummaryEnv(t, summaryJSON, false)
	seedTurns(t, database, "s1")

	svc.Summarize(context.Background(), "s1", "u1", nil)

	var n int64
	if err := database.Model(&db.SessionSummary{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("summary stored without consent")
	}
}

func TestSummarizeHeuristicFallback(t *testing.T) {
	svc, consent, database := newSummaryEnv(t, "", true)
	yes := true
	if _, err := consent.Update("u1", &models.UpdateConsentRequest{Memory: &yes}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	seedTurns(t, database, "s1")

	state := NewSessionState("s1", "u1", time.Now())
	state.Topic = "sleep issues"
	state.UpdateTags("health_query", "moderate", "anxious")

	svc.Summarize(context.Background(), "s1", "u1", state)

	var row db.SessionSummary
	if err := database.First(&row, "session_id = ?", "s1").Error; err != nil {
		t.Fatalf("heuristic summary not stored: %v", err)
	}
	if !strings.Contains(row.SummaryText, "sleep issues") {
		t.Fatalf("summary text = %q", row.SummaryText)
	}
	if row.SeverityPeak != "moderate" {
		t.Fatalf("severity peak = %q", row.SeverityPeak)
	}
}

func TestSummarizeEmptyTranscriptNoRow(t *testing.T) {
	svc, consent, database := newSummaryEnv(t, summaryJSON, false)
	yes := true
	if _, err := consent.Update("u1", &models.UpdateConsentRequest{Memory: &yes}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	svc.Summarize(context.Background(), "empty", "u1", nil)

	var n int64
	if err := database.Model(&db.SessionSummary{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("summary stored for empty transcript")
	}
}
