package service

import (
	"context"
	"fmt"

	"github.com/havenai/haven/pkg/adapters"
	"github.com/havenai/haven/pkg/config"
	"github.com/havenai/haven/pkg/fallback"
)

// BuildPipelines assembles the capability chains from configuration.
// Chains are built even when no remote tier is configured; they then
// serve their static payload, which keeps the service usable (degraded)
// with zero collaborators.
func BuildPipelines(ctx context.Context, cfg *config.AppConfig, modelSvc *ModelService) (Pipelines, error) {
	timeout := cfg.TierTimeout()

	// Transcription: fast remote engine, then local engine.
	var sttTiers []fallback.Adapter[[]byte, string]
	if cfg.Speech.STTURL != "" {
		sttTiers = append(sttTiers, adapters.NewRemoteSTT(cfg.Speech.STTURL, cfg.Speech.STTAPIKey))
	}
	if cfg.Speech.LocalSTTURL != "" {
		sttTiers = append(sttTiers, adapters.NewLocalSTT(cfg.Speech.LocalSTTURL))
	}
	transcribe := fallback.NewChain("transcription", timeout, adapters.TranscriptValid,
		func([]byte) string { return adapters.TranscriptionFailed }, sttTiers...)

	// Generation: primary model, then secondary, then the calming line.
	var genTiers []fallback.Adapter[adapters.GenInput, adapters.GenResult]
	var rawTiers []fallback.Adapter[adapters.GenInput, string]
	for _, mc := range []struct {
		name string
		cfg  *config.ModelConfig
	}{
		{"primary", cfg.Models.Primary},
		{"secondary", cfg.Models.Secondary},
	} {
		if mc.cfg == nil {
			continue
		}
		model, err := modelSvc.CreateChatModel(ctx, mc.cfg)
		if err != nil {
			return Pipelines{}, fmt.Errorf("build %s model: %w", mc.name, err)
		}
		genTiers = append(genTiers, adapters.NewChatModel(mc.name, model))
	}
	generate := fallback.NewChain("generation", timeout, adapters.GenValid,
		adapters.CalmingFallback, genTiers...)

	// Summarization reuses the generation stack but keeps raw output;
	// SummaryModel falls back to Primary when unset.
	if sc := cfg.SummaryModel(); sc != nil {
		model, err := modelSvc.CreateChatModel(ctx, sc)
		if err != nil {
			return Pipelines{}, fmt.Errorf("build summary model: %w", err)
		}
		rawTiers = append(rawTiers, adapters.NewRawChatModel("summary", model))
	}
	summarize := fallback.NewChain("summary", timeout, adapters.RawValid,
		adapters.EmptyFallback, rawTiers...)

	// Synthesis: one TTS engine, degrading to text-only.
	var ttsTiers []fallback.Adapter[string, adapters.SynthResult]
	if cfg.Speech.TTSURL != "" {
		ttsTiers = append(ttsTiers, adapters.NewLocalTTS(cfg.Speech.TTSURL))
	}
	synthesize := fallback.NewChain("synthesis", timeout, adapters.SynthValid,
		adapters.TextOnly, ttsTiers...)

	// Emergency synthesis must produce audio: after the TTS engine the
	// pre-rendered clip serves, text-only remains the true terminal.
	emergencyTiers := append([]fallback.Adapter[string, adapters.SynthResult]{}, ttsTiers...)
	emergencyTiers = append(emergencyTiers, adapters.NewEmergencyClip())
	emergencySynth := fallback.NewChain("synthesis_emergency", timeout, adapters.SynthValid,
		adapters.TextOnly, emergencyTiers...)

	// Classification: cached model first, fresh-weights retry second.
	var classifyTiers []fallback.Adapter[adapters.ClassifyInput, adapters.ClassifyResult]
	if cfg.Vision.ClassifyURL != "" {
		classifyTiers = append(classifyTiers,
			adapters.NewImageClassifier(cfg.Vision.ClassifyURL, false),
			adapters.NewImageClassifier(cfg.Vision.ClassifyURL, true),
		)
	}
	classify := fallback.NewChain("classification", timeout, adapters.ClassifyValid,
		adapters.ConsultFallback, classifyTiers...)

	return Pipelines{
		Transcribe:     transcribe,
		Generate:       generate,
		Summarize:      summarize,
		Synthesize:     synthesize,
		EmergencySynth: emergencySynth,
		Classify:       classify,
		Extractor:      adapters.NewExtractor(cfg.Vision.ExtractURL),
	}, nil
}
