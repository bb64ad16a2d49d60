// API types for the interact endpoint
package models

import "fmt"

// Modality is the closed set of routable input kinds. Unknown tags are
// rejected with UnroutableInputError instead of a silent default route.
type Modality string

const (
	ModalityText          Modality = "text"
	ModalityAudio         Modality = "audio"
	ModalityImageDocument Modality = "image_document"
	ModalityImageClinical Modality = "image_clinical"
)

// Clinical image subtypes accepted by the classifier.
const (
	ImageTypeDocument = "document"
	ImageTypeXray     = "xray"
	ImageTypeSkin     = "skin"
)

// UnroutableInputError reports an input tag outside the closed modality set.
type UnroutableInputError struct {
	InputType string
	ImageType string
}

func (e *UnroutableInputError) Error() string {
	if e.ImageType != "" {
		return fmt.Sprintf("unroutable input: input_type=%q image_type=%q", e.InputType, e.ImageType)
	}
	return fmt.Sprintf("unroutable input: input_type=%q", e.InputType)
}

// ParseModality maps the wire-level input_type/image_type pair onto the
// closed modality enum.
func ParseModality(inputType, imageType string) (Modality, error) {
	switch inputType {
	case "text":
		return ModalityText, nil
	case "audio":
		return ModalityAudio, nil
	case "image":
		switch imageType {
		case ImageTypeDocument:
			return ModalityImageDocument, nil
		case ImageTypeXray, ImageTypeSkin:
			return ModalityImageClinical, nil
		}
	}
	return "", &UnroutableInputError{InputType: inputType, ImageType: imageType}
}

// Response modes
const (
	ResponseModeText  = "text"
	ResponseModeVoice = "voice"
)

// InteractRequest is one multimodal user exchange, already read off
// the multipart form by the handler.
type InteractRequest struct {
	UserID       string
	SessionID    string
	InputType    string
	ImageType    string
	ResponseMode string
	Text         string
	Audio        []byte
	Image        []byte
}

// InteractResponse is the structured record returned upward. Adapter
// failures never surface as errors here; they show up as failure flags
// and the tier that ultimately served the request.
type InteractResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`

	AudioBase64 string `json:"audio_base64,omitempty"`

	Intent   string `json:"intent,omitempty"`
	Severity string `json:"severity,omitempty"`
	Emotion  string `json:"emotion,omitempty"`

	// Which pipeline handled the request and which generation tier
	// produced the text (observability, also persisted on the turn).
	Pipeline string `json:"pipeline"`
	Tier     string `json:"tier,omitempty"`

	// Per-capability failure flags.
	STTFailed      bool `json:"stt_failed,omitempty"`
	TTSFailed      bool `json:"tts_failed,omitempty"`
	Emergency      bool `json:"emergency,omitempty"`
	SafetyReplaced bool `json:"safety_replaced,omitempty"`

	// Risk assessment for clinical images.
	Risk       string  `json:"risk,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Pipelines
const (
	PipelineGeneral     = "general"
	PipelineVoice       = "voice"
	PipelineDocument    = "document"
	PipelineClinical    = "clinical"
	PipelineEducational = "educational"
	PipelineDocSummary  = "doc_summary"
	PipelineEmergency   = "emergency"
	PipelineRefusal     = "refusal"
	PipelineCached      = "cached"
)
