package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/havenai/haven/pkg/adapters"
	"github.com/havenai/haven/pkg/db"
	"github.com/havenai/haven/pkg/fallback"
	"github.com/havenai/haven/pkg/models"
	"github.com/havenai/haven/pkg/safety"
)

type stubExtractor struct {
	text string
	err  error
}

func (s *stubExtractor) Extract(context.Context, []byte) (string, error) {
	return s.text, s.err
}

type testEnv struct {
	db      *gorm.DB
	orch    *Orchestrator
	consent *ConsentService
	memory  *MemoryService
}

func generationReplying(text string) *fallback.Chain[adapters.GenInput, adapters.GenResult] {
	tier := fallback.AdapterFunc("primary", func(ctx context.Context, in adapters.GenInput) (adapters.GenResult, error) {
		return adapters.GenResult{Text: text, Intent: "health_query", Severity: safety.SeverityLow, Emotion: "calm"}, nil
	})
	return fallback.NewChain("generation", time.Second, adapters.GenValid, adapters.CalmingFallback, tier)
}

func newTestEnv(t *testing.T, genText string) *testEnv {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(&db.Session{}, &db.Turn{}, &db.ConsentRecord{}, &db.SessionSummary{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	transcribe := fallback.NewChain("transcription", time.Second, adapters.TranscriptValid,
		func([]byte) string { return adapters.TranscriptionFailed },
		fallback.AdapterFunc("stt", func(ctx context.Context, audio []byte) (string, error) {
			if len(audio) == 0 {
				return "", errors.New("no audio")
			}
			return "I have been feeling tired lately", nil
		}))

	synthesize := fallback.NewChain("synthesis", time.Second, adapters.SynthValid, adapters.TextOnly,
		fallback.AdapterFunc("tts", func(ctx context.Context, text string) (adapters.SynthResult, error) {
			return adapters.SynthResult{Audio: []byte("RIFF")}, nil
		}))

	classify := fallback.NewChain("classification", time.Second, adapters.ClassifyValid, adapters.ConsultFallback,
		fallback.AdapterFunc("cached_model", func(ctx context.Context, in adapters.ClassifyInput) (adapters.ClassifyResult, error) {
			return adapters.ClassifyResult{Risk: "low", Confidence: 0.91, Message: "Screening suggests low risk. Follow up with a professional for certainty."}, nil
		}))

	consent := NewConsentService(database)
	memory := NewMemoryService(nil, 15, 30*time.Minute, 10*time.Minute)
	orch := NewOrchestrator(database, consent, memory, Pipelines{
		Transcribe: transcribe,
		Generate:   generationReplying(genText),
		Synthesize: synthesize,
		Classify:   classify,
		Extractor:  &stubExtractor{text: strings.Repeat("cholesterol panel results ", 4)},
	})
	return &testEnv{db: database, orch: orch, consent: consent, memory: memory}
}

func (e *testEnv) grantAll(t *testing.T, userID string) {
	t.Helper()
	yes := true
	_, err := e.consent.Update(userID, &models.UpdateConsentRequest{Memory: &yes, Voice: &yes, Document: &yes, Image: &yes})
	if err != nil {
		t.Fatalf("grant consent: %v", err)
	}
}

func (e *testEnv) countTurns(t *testing.T, sessionID string) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&db.Turn{}).Where("session_id = ?", sessionID).Count(&n).Error; err != nil {
		t.Fatalf("count turns: %v", err)
	}
	return n
}

func TestInteractTextGeneralPipeline(t *testing.T) {
	env := newTestEnv(t, "Fatigue is often tied to sleep and stress. How has your sleep been?")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		InputType: "text",
		Text:      "I've been so tired lately",
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.Pipeline != models.PipelineGeneral {
		t.Fatalf("pipeline = %q, want %q", resp.Pipeline, models.PipelineGeneral)
	}
	if resp.SessionID == "" {
		t.Fatal("no session id assigned")
	}
	if !strings.Contains(resp.Message, "sleep") {
		t.Fatalf("unexpected message: %q", resp.Message)
	}
	if got := env.countTurns(t, resp.SessionID); got != 2 {
		t.Fatalf("persisted turns = %d, want 2", got)
	}
}

func TestInteractRejectsUnroutableInput(t *testing.T) {
	env := newTestEnv(t, "ok")

	_, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		InputType: "video",
	})
	var unroutable *models.UnroutableInputError
	if !errors.As(err, &unroutable) {
		t.Fatalf("err = %v, want UnroutableInputError", err)
	}
}

func TestInteractAudioDeniedWithoutConsent(t *testing.T) {
	env := newTestEnv(t, "ok")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "audio",
		Audio:     []byte("pcm"),
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.Pipeline != models.PipelineRefusal {
		t.Fatalf("pipeline = %q, want refusal", resp.Pipeline)
	}
	if !strings.Contains(resp.Message, "voice") {
		t.Fatalf("denial message = %q", resp.Message)
	}
	// Denied payloads are never processed or persisted.
	if got := env.countTurns(t, "s1"); got != 0 {
		t.Fatalf("persisted turns = %d, want 0", got)
	}
}

func TestInteractAudioTranscribesAndResponds(t *testing.T) {
	env := newTestEnv(t, "That sounds exhausting. What does your evening routine look like?")
	env.grantAll(t, "u1")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "audio",
		Audio:     []byte("pcm"),
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.STTFailed {
		t.Fatal("STTFailed set on successful transcription")
	}
	if resp.AudioBase64 == "" {
		t.Fatal("audio input should produce a spoken reply")
	}
	if got := env.countTurns(t, "s1"); got != 2 {
		t.Fatalf("persisted turns = %d, want 2", got)
	}
}

func TestInteractTranscriptionFailureStillRecorded(t *testing.T) {
	env := newTestEnv(t, "ok")
	env.grantAll(t, "u1")

	// Empty audio makes the stub STT tier fail, landing on the static.
	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "audio",
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if !resp.STTFailed {
		t.Fatal("STTFailed not set")
	}
	if resp.Message != transcriptRetryMessage {
		t.Fatalf("message = %q", resp.Message)
	}

	var turn db.Turn
	if err := env.db.Where("session_id = ? AND author = ?", "s1", db.TurnAuthorUser).First(&turn).Error; err != nil {
		t.Fatalf("load user turn: %v", err)
	}
	if turn.DerivedText != adapters.TranscriptionFailed {
		t.Fatalf("derived text = %q, want failure marker", turn.DerivedText)
	}
}

func TestInteractEmergencyShortCircuit(t *testing.T) {
	env := newTestEnv(t, "should never be used")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "text",
		Text:      "I have severe chest pain and I can't breathe",
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if !resp.Emergency {
		t.Fatal("Emergency not set")
	}
	if resp.Message != safety.EmergencyMessage {
		t.Fatalf("message = %q", resp.Message)
	}
	if resp.Pipeline != models.PipelineEmergency {
		t.Fatalf("pipeline = %q", resp.Pipeline)
	}
	if resp.Severity != safety.SeverityHigh {
		t.Fatalf("severity = %q", resp.Severity)
	}
	// The crisis exchange is still part of the record.
	if got := env.countTurns(t, "s1"); got != 2 {
		t.Fatalf("persisted turns = %d, want 2", got)
	}
}

func TestInteractDosageRefusal(t *testing.T) {
	env := newTestEnv(t, "should never be used")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "text",
		Text:      "what dosage of ibuprofen should I take",
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.Message != safety.DosageRefusal {
		t.Fatalf("message = %q", resp.Message)
	}
	if resp.Pipeline != models.PipelineRefusal {
		t.Fatalf("pipeline = %q", resp.Pipeline)
	}
}

func TestInteractOutOfScopeRedirect(t *testing.T) {
	env := newTestEnv(t, "should never be used")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "text",
		Text:      "who won the champions league final",
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.Message != safety.ScopeRedirect {
		t.Fatalf("message = %q", resp.Message)
	}
	if resp.Intent != "refusal" {
		t.Fatalf("intent = %q", resp.Intent)
	}
}

func TestInteractCachedGreeting(t *testing.T) {
	env := newTestEnv(t, "should never be used")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "text",
		Text:      "Hi!",
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.Pipeline != models.PipelineCached {
		t.Fatalf("pipeline = %q, want cached", resp.Pipeline)
	}
	if resp.Tier != fallback.StaticTier {
		t.Fatalf("tier = %q, want static", resp.Tier)
	}
}

func TestInteractOutputFilterReplacesDiagnosis(t *testing.T) {
	env := newTestEnv(t, "Based on your symptoms, you have diabetes.")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "text",
		Text:      "I keep feeling dizzy after meals",
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if !resp.SafetyReplaced {
		t.Fatal("SafetyReplaced not set")
	}
	if resp.Message != safety.DiagnosisRefusal {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestInteractDocumentUploadAndFollowUp(t *testing.T) {
	env := newTestEnv(t, "Your results look stable. Ask your doctor about the flagged value.")
	env.grantAll(t, "u1")
	ctx := context.Background()

	resp, err := env.orch.Interact(ctx, &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "image",
		ImageType: "document",
		Image:     []byte("fakejpeg"),
	})
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if resp.Pipeline != models.PipelineDocSummary {
		t.Fatalf("pipeline = %q, want doc_summary", resp.Pipeline)
	}

	state, release := env.memory.Acquire(ctx, "s1", "u1")
	hasDoc := state.Document != nil
	release()
	if !hasDoc {
		t.Fatal("document not attached to session context")
	}

	// Terminology questions get the definition-style variant.
	follow, err := env.orch.Interact(ctx, &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "text",
		Text:      "what does the report mean by LDL",
	})
	if err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	if follow.Pipeline != models.PipelineEducational {
		t.Fatalf("follow-up pipeline = %q, want educational", follow.Pipeline)
	}

	// Summary requests re-inject the full document.
	summary, err := env.orch.Interact(ctx, &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "text",
		Text:      "can you summarize the report for me",
	})
	if err != nil {
		t.Fatalf("summary follow-up: %v", err)
	}
	if summary.Pipeline != models.PipelineDocument {
		t.Fatalf("summary pipeline = %q, want document", summary.Pipeline)
	}
}

func TestInteractExpiredDocumentFallsThroughToGeneral(t *testing.T) {
	env := newTestEnv(t, "Happy to help with whatever is on your mind.")
	env.grantAll(t, "u1")
	ctx := context.Background()

	if _, err := env.orch.Interact(ctx, &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "image",
		ImageType: "document",
		Image:     []byte("fakejpeg"),
	}); err != nil {
		t.Fatalf("upload: %v", err)
	}

	// Push the attachment past its 10-minute TTL.
	state, release := env.memory.Acquire(ctx, "s1", "u1")
	state.Document.LastRef = time.Now().Add(-11 * time.Minute)
	release()

	resp, err := env.orch.Interact(ctx, &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "text",
		Text:      "what did my report say",
	})
	if err != nil {
		t.Fatalf("follow-up: %v", err)
	}
	if resp.Pipeline != models.PipelineGeneral {
		t.Fatalf("pipeline = %q, want general after expiry", resp.Pipeline)
	}
}

func TestInteractDocumentExtractionFailure(t *testing.T) {
	env := newTestEnv(t, "should never be used")
	env.grantAll(t, "u1")
	env.orch.pipes.Extractor = &stubExtractor{err: errors.New("too little text")}

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "image",
		ImageType: "document",
		Image:     []byte("blurry"),
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.Message != documentRetryMessage {
		t.Fatalf("message = %q", resp.Message)
	}
}

func TestInteractClinicalImageClassification(t *testing.T) {
	env := newTestEnv(t, "should never be used")
	env.grantAll(t, "u1")
	ctx := context.Background()

	resp, err := env.orch.Interact(ctx, &models.InteractRequest{
		UserID:    "u1",
		SessionID: "s1",
		InputType: "image",
		ImageType: "xray",
		Image:     []byte("fakexray"),
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.Pipeline != models.PipelineClinical {
		t.Fatalf("pipeline = %q, want clinical", resp.Pipeline)
	}
	if resp.Risk != "low" || resp.Confidence != 0.91 {
		t.Fatalf("risk = %q confidence = %v", resp.Risk, resp.Confidence)
	}

	state, release := env.memory.Acquire(ctx, "s1", "u1")
	hasImage := state.Image != nil
	release()
	if !hasImage {
		t.Fatal("classification result not attached to session context")
	}
}

func TestInteractVoiceResponseMode(t *testing.T) {
	env := newTestEnv(t, "Try winding down an hour before bed.")
	env.grantAll(t, "u1")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:       "u1",
		SessionID:    "s1",
		InputType:    "text",
		ResponseMode: models.ResponseModeVoice,
		Text:         "I can't sleep",
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.TTSFailed {
		t.Fatal("TTSFailed set with working synth tier")
	}
	if resp.AudioBase64 == "" {
		t.Fatal("no audio returned in voice mode")
	}
}

func TestInteractVoiceModeSkippedWithoutConsent(t *testing.T) {
	env := newTestEnv(t, "Try winding down an hour before bed.")

	resp, err := env.orch.Interact(context.Background(), &models.InteractRequest{
		UserID:       "u1",
		SessionID:    "s1",
		InputType:    "text",
		ResponseMode: models.ResponseModeVoice,
		Text:         "I can't sleep",
	})
	if err != nil {
		t.Fatalf("Interact: %v", err)
	}
	if resp.AudioBase64 != "" {
		t.Fatal("audio synthesized without voice consent")
	}
	if resp.Message == "" {
		t.Fatal("text reply missing")
	}
}
