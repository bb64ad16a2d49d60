package service

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/havenai/haven/pkg/adapters"
	"github.com/havenai/haven/pkg/db"
	"github.com/havenai/haven/pkg/event"
	"github.com/havenai/haven/pkg/fallback"
	"github.com/havenai/haven/pkg/models"
	"github.com/havenai/haven/pkg/safety"
	"github.com/havenai/haven/pkg/utils"
)

const (
	transcriptRetryMessage = "I didn't catch that. Could you say it again?"
	documentRetryMessage   = "I couldn't read that document clearly. Could you try a clearer photo?"
)

// DocumentExtractor pulls text out of an uploaded document image.
type DocumentExtractor interface {
	Extract(ctx context.Context, document []byte) (string, error)
}

// Pipelines bundles the four capability chains plus the document
// extractor. Tests swap in stub chains.
type Pipelines struct {
	Transcribe     *fallback.Chain[[]byte, string]
	Generate       *fallback.Chain[adapters.GenInput, adapters.GenResult]
	Summarize      *fallback.Chain[adapters.GenInput, string]
	Synthesize     *fallback.Chain[string, adapters.SynthResult]
	EmergencySynth *fallback.Chain[string, adapters.SynthResult]
	Classify       *fallback.Chain[adapters.ClassifyInput, adapters.ClassifyResult]
	Extractor      DocumentExtractor
}

// Orchestrator routes each incoming turn through consent, safety,
// memory, and the capability pipelines, and owns turn persistence.
type Orchestrator struct {
	db      *gorm.DB
	consent *ConsentService
	memory  *MemoryService
	pipes   Pipelines
	logger  *slog.Logger
}

func NewOrchestrator(database *gorm.DB, consent *ConsentService, memory *MemoryService, pipes Pipelines) *Orchestrator {
	return &Orchestrator{
		db:      database,
		consent: consent,
		memory:  memory,
		pipes:   pipes,
		logger:  utils.GetLogger(),
	}
}

// Interact processes one turn end to end and always returns a
// response: every failure past input validation degrades to a safe
// message rather than an error.
func (o *Orchestrator) Interact(ctx context.Context, req *models.InteractRequest) (*models.InteractResponse, error) {
	modality, err := models.ParseModality(req.InputType, req.ImageType)
	if err != nil {
		return nil, err
	}

	newSession := req.SessionID == ""
	if newSession {
		req.SessionID = uuid.New().String()
	}

	state, release := o.memory.Acquire(ctx, req.SessionID, req.UserID)
	defer release()

	snapshot := o.consent.Snapshot(req.UserID)
	o.ensureSession(req, snapshot, newSession)

	resp := &models.InteractResponse{SessionID: req.SessionID}

	if denied := o.gateModality(snapshot, modality); denied != nil {
		resp.Message = denied.Error() + " You can change this in your privacy settings."
		resp.Intent = "refusal"
		resp.Pipeline = models.PipelineRefusal
		resp.Severity = safety.SeverityInformational
		return resp, nil
	}

	// Derive the working text for this turn.
	userText := strings.TrimSpace(req.Text)
	recordedText := userText
	wantVoice := req.ResponseMode == models.ResponseModeVoice || modality == models.ModalityAudio

	if modality == models.ModalityAudio {
		out := o.pipes.Transcribe.Run(ctx, req.Audio)
		if out.Static || !adapters.TranscriptValid(out.Result) {
			recordedText = adapters.TranscriptionFailed
			resp.STTFailed = true
			resp.Message = transcriptRetryMessage
			resp.Pipeline = models.PipelineVoice
			resp.Tier = out.Tier
			resp.Severity = safety.SeverityLow
			o.finishTurn(ctx, state, req, modality, recordedText, resp, snapshot, wantVoice)
			return resp, nil
		}
		userText = strings.TrimSpace(out.Result)
		recordedText = userText
		resp.Tier = out.Tier
	}

	// Emergency short-circuits everything else, attachments included.
	if safety.DetectEmergency(userText) {
		resp.Message = safety.EmergencyMessage
		resp.Emergency = true
		resp.Intent = "emergency"
		resp.Severity = safety.SeverityHigh
		resp.Pipeline = models.PipelineEmergency
		state.UpdateTags("emergency", safety.SeverityHigh, "distress")
		event.Emit(event.EmergencyDetectedEvent{SessionID: req.SessionID})
		o.finishTurn(ctx, state, req, modality, recordedText, resp, snapshot, wantVoice)
		return resp, nil
	}

	switch modality {
	case models.ModalityImageClinical:
		o.runClinical(ctx, state, req, resp)
	case models.ModalityImageDocument:
		o.runDocument(ctx, state, req, userText, resp)
	default:
		o.runConversation(ctx, state, req, userText, resp)
	}

	o.finishTurn(ctx, state, req, modality, recordedText, resp, snapshot, wantVoice)
	return resp, nil
}

// gateModality maps an input modality to the capability it needs.
func (o *Orchestrator) gateModality(snapshot models.ConsentSnapshot, modality models.Modality) error {
	switch modality {
	case models.ModalityAudio:
		return o.consent.Authorize(snapshot, models.CapabilityVoice)
	case models.ModalityImageDocument:
		return o.consent.Authorize(snapshot, models.CapabilityDocument)
	case models.ModalityImageClinical:
		return o.consent.Authorize(snapshot, models.CapabilityImage)
	}
	return nil
}

// runConversation handles the text path: guard rails, canned small
// talk, then attachment-aware generation.
func (o *Orchestrator) runConversation(ctx context.Context, state *SessionState, req *models.InteractRequest, userText string, resp *models.InteractResponse) {
	if msg, blocked := safety.CheckRequest(userText); blocked {
		resp.Message = msg
		resp.Intent = "refusal"
		resp.Severity = safety.SeverityInformational
		resp.Pipeline = models.PipelineRefusal
		return
	}

	now := time.Now()
	blob := o.memory.Enrich(state, now)

	if reply := CachedReply(userText); reply != "" && blob.Document == nil && blob.Image == nil {
		resp.Message = reply
		resp.Intent = "casual_chat"
		resp.Severity = safety.SeverityLow
		resp.Emotion = "neutral"
		resp.Pipeline = models.PipelineCached
		resp.Tier = fallback.StaticTier
		return
	}

	hasAttachment := blob.Document != nil || blob.Image != nil
	if !hasAttachment && !safety.InScope(userText) && len(state.Window) == 0 {
		resp.Message = safety.ScopeRedirect
		resp.Intent = "refusal"
		resp.Severity = safety.SeverityInformational
		resp.Pipeline = models.PipelineRefusal
		return
	}

	if topic := safety.InferTopic(userText); topic != "" {
		state.Topic = topic
	}

	var system, prompt string
	switch {
	case blob.Document != nil && referencesDocument(userText):
		o.memory.TouchAttachment(state, AttachmentDocument, now)
		if wantsSummary(userText) {
			// Full content injected for summary requests.
			system, prompt = BuildDocumentPrompt(blob, blob.Document.Content, userText)
			resp.Pipeline = models.PipelineDocument
		} else {
			system, prompt = BuildDocTermPrompt(blob.Document.Content, userText)
			resp.Pipeline = models.PipelineEducational
		}
	case blob.Image != nil && referencesImage(userText):
		o.memory.TouchAttachment(state, AttachmentImage, now)
		system, prompt = BuildEducationalPrompt(blob.Image.Risk, blob.Image.ImageType, userText)
		resp.Pipeline = models.PipelineEducational
	default:
		system, prompt = BuildGeneralPrompt(blob, userText)
		resp.Pipeline = models.PipelineGeneral
	}

	o.generate(ctx, state, system, prompt, userText, resp)
}

// runDocument extracts the upload, stores it as session context, and
// summarizes it.
func (o *Orchestrator) runDocument(ctx context.Context, state *SessionState, req *models.InteractRequest, userText string, resp *models.InteractResponse) {
	resp.Pipeline = models.PipelineDocSummary

	text, err := o.pipes.Extractor.Extract(ctx, req.Image)
	if err != nil {
		o.logger.Warn("document extraction failed", "session_id", req.SessionID, "error", err)
		resp.Message = documentRetryMessage
		resp.Intent = "document_upload"
		resp.Severity = safety.SeverityInformational
		return
	}

	o.memory.Attach(ctx, state, &Attachment{
		Class:   AttachmentDocument,
		Content: text,
		Topic:   state.Topic,
	})
	event.Emit(event.AttachmentAddedEvent{SessionID: req.SessionID, Class: string(AttachmentDocument)})

	blob := o.memory.Enrich(state, time.Now())
	system, prompt := BuildDocumentPrompt(blob, text, userText)
	o.generate(ctx, state, system, prompt, userText, resp)
	if resp.Intent == "" || resp.Intent == "casual_chat" {
		resp.Intent = "document_upload"
	}
}

// runClinical classifies the image; no generative model sees it.
func (o *Orchestrator) runClinical(ctx context.Context, state *SessionState, req *models.InteractRequest, resp *models.InteractResponse) {
	resp.Pipeline = models.PipelineClinical

	out := o.pipes.Classify.Run(ctx, adapters.ClassifyInput{
		ImageType: req.ImageType,
		Image:     req.Image,
	})
	resp.Tier = out.Tier
	resp.Risk = out.Result.Risk
	resp.Confidence = out.Result.Confidence
	resp.Intent = "image_analysis"
	resp.Severity = safety.SeverityInformational

	msg := out.Result.Message
	if filtered, replaced := safety.CheckOutput(msg); replaced {
		msg = filtered
		resp.SafetyReplaced = true
	}
	resp.Message = msg

	if !out.Static {
		o.memory.Attach(ctx, state, &Attachment{
			Class:      AttachmentImage,
			Risk:       out.Result.Risk,
			Confidence: out.Result.Confidence,
			ImageType:  req.ImageType,
			Topic:      state.Topic,
		})
		event.Emit(event.AttachmentAddedEvent{SessionID: req.SessionID, Class: string(AttachmentImage)})
	}
}

// generate runs the generation chain and applies the output filter.
// The filter runs on every reply, static fallback included.
func (o *Orchestrator) generate(ctx context.Context, state *SessionState, system, prompt, userText string, resp *models.InteractResponse) {
	out := o.pipes.Generate.Run(ctx, adapters.GenInput{System: system, Prompt: prompt})
	result := out.Result

	severity := result.Severity
	if severity == "" || out.Static {
		severity = safety.InferSeverity(userText, state.Severity)
	}
	state.UpdateTags(result.Intent, severity, result.Emotion)

	msg := result.Text
	if filtered, replaced := safety.CheckOutput(msg); replaced {
		msg = filtered
		resp.SafetyReplaced = true
	}

	resp.Message = msg
	resp.Intent = result.Intent
	resp.Severity = severity
	resp.Emotion = result.Emotion
	resp.Tier = out.Tier
}

// finishTurn persists the exchange, updates the window, and optionally
// synthesizes speech. Persistence failures never fail the response.
func (o *Orchestrator) finishTurn(ctx context.Context, state *SessionState, req *models.InteractRequest, modality models.Modality, userText string, resp *models.InteractResponse, snapshot models.ConsentSnapshot, wantVoice bool) {
	o.memory.Record(ctx, state, db.TurnAuthorUser, userText, string(modality))
	o.memory.Record(ctx, state, db.TurnAuthorAssistant, resp.Message, string(models.ModalityText))

	o.persistExchange(req, modality, userText, resp)
	event.Emit(event.TurnRecordedEvent{
		SessionID: req.SessionID,
		Pipeline:  resp.Pipeline,
		Severity:  resp.Severity,
	})

	if wantVoice && snapshot.Allows(models.CapabilityVoice) {
		spoken := NormalizeVoiceText(resp.Message, resp.Severity)
		chain := o.pipes.Synthesize
		if resp.Emergency && o.pipes.EmergencySynth != nil {
			chain = o.pipes.EmergencySynth
		}
		out := chain.Run(ctx, spoken)
		if out.Result.Failed {
			resp.TTSFailed = true
		} else {
			resp.AudioBase64 = base64.StdEncoding.EncodeToString(out.Result.Audio)
		}
	}
}

func (o *Orchestrator) ensureSession(req *models.InteractRequest, snapshot models.ConsentSnapshot, isNew bool) {
	session := db.Session{
		ID:              req.SessionID,
		UserID:          req.UserID,
		ConsentMemory:   snapshot.Memory,
		ConsentVoice:    snapshot.Voice,
		ConsentDocument: snapshot.Document,
		ConsentImage:    snapshot.Image,
		Status:          db.SessionStatusActive,
		CreatedAt:       time.Now(),
		LastActivity:    time.Now(),
	}
	if err := o.db.Where("id = ?", req.SessionID).FirstOrCreate(&session).Error; err != nil {
		o.logger.Warn("session row upsert failed", "session_id", req.SessionID, "error", err)
		return
	}
	if isNew {
		event.Emit(event.SessionStartedEvent{SessionID: req.SessionID, UserID: req.UserID})
	}
}

func (o *Orchestrator) persistExchange(req *models.InteractRequest, modality models.Modality, userText string, resp *models.InteractResponse) {
	now := time.Now()
	turns := []db.Turn{
		{
			ID:          uuid.New().String(),
			SessionID:   req.SessionID,
			Author:      db.TurnAuthorUser,
			Modality:    string(modality),
			DerivedText: userText,
			Severity:    resp.Severity,
			Pipeline:    resp.Pipeline,
			CreatedAt:   now,
		},
		{
			ID:          uuid.New().String(),
			SessionID:   req.SessionID,
			Author:      db.TurnAuthorAssistant,
			Modality:    string(models.ModalityText),
			DerivedText: resp.Message,
			Intent:      resp.Intent,
			Severity:    resp.Severity,
			Emotion:     resp.Emotion,
			Pipeline:    resp.Pipeline,
			Tier:        resp.Tier,
			CreatedAt:   now,
		},
	}
	if err := o.db.Create(&turns).Error; err != nil {
		o.logger.Warn("turn persistence failed", "session_id", req.SessionID, "error", err)
	}
	if err := o.db.Model(&db.Session{}).Where("id = ?", req.SessionID).
		Update("last_activity", now).Error; err != nil {
		o.logger.Warn("session activity update failed", "session_id", req.SessionID, "error", err)
	}
}

// Follow-up reference heuristics: does the user's message point back at
// a live attachment?
var documentRefs = []string{"document", "report", "result", "results", "record", "prescription", "it say", "the doc", "what does it", "explain it", "mean"}
var imageRefs = []string{"image", "photo", "picture", "scan", "x-ray", "xray", "skin", "rash", "the result", "risk"}

var summaryRefs = []string{"summarize", "summary", "sum up", "overview", "go over", "walk me through"}

func wantsSummary(text string) bool {
	return containsAny(strings.ToLower(text), summaryRefs)
}

func referencesDocument(text string) bool {
	return containsAny(strings.ToLower(text), documentRefs)
}

func referencesImage(text string) bool {
	return containsAny(strings.ToLower(text), imageRefs)
}

func containsAny(text string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(text, n) {
			return true
		}
	}
	return false
}
