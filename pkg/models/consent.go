// API types for consent
package models

import "fmt"

// Capability names a consent-gated function.
type Capability string

const (
	CapabilityMemory   Capability = "memory"
	CapabilityVoice    Capability = "voice"
	CapabilityDocument Capability = "document"
	CapabilityImage    Capability = "image"
)

// ConsentSnapshot is the per-user authorization flags as read at the
// start of one request. Zero value denies everything.
type ConsentSnapshot struct {
	Memory   bool `json:"memory"`
	Voice    bool `json:"voice"`
	Document bool `json:"document"`
	Image    bool `json:"image"`
}

// Allows reports whether the snapshot authorizes the capability.
func (c ConsentSnapshot) Allows(capability Capability) bool {
	switch capability {
	case CapabilityMemory:
		return c.Memory
	case CapabilityVoice:
		return c.Voice
	case CapabilityDocument:
		return c.Document
	case CapabilityImage:
		return c.Image
	}
	return false
}

// PolicyDeniedError is returned when the consent gate rejects a
// request. It is surfaced directly to the caller and never retried.
type PolicyDeniedError struct {
	Capability Capability
}

func (e *PolicyDeniedError) Error() string {
	return fmt.Sprintf("%s processing is disabled by user consent", e.Capability)
}

// UpdateConsentRequest is the PUT /consent body.
type UpdateConsentRequest struct {
	Memory   *bool `json:"memory"`
	Voice    *bool `json:"voice"`
	Document *bool `json:"document"`
	Image    *bool `json:"image"`
}
