package service

import (
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"github.com/havenai/haven/pkg/db"
	"github.com/havenai/haven/pkg/models"
	"github.com/havenai/haven/pkg/utils"
)

// ConsentService persists per-user capability grants. Every grant
// defaults to denied: a missing record, or a store that cannot be
// read, yields a deny-all snapshot rather than an error so the consent
// gate never blocks a request on storage trouble.
type ConsentService struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewConsentService(database *gorm.DB) *ConsentService {
	return &ConsentService{
		db:     database,
		logger: utils.GetLogger(),
	}
}

// Snapshot reads the user's current grants. Deny-all when no record
// exists or the read fails.
func (s *ConsentService) Snapshot(userID string) models.ConsentSnapshot {
	var record db.ConsentRecord
	err := s.db.First(&record, "user_id = ?", userID).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("consent read failed, denying all", "user_id", userID, "error", err)
		}
		return models.ConsentSnapshot{}
	}
	return models.ConsentSnapshot{
		Memory:   record.Memory,
		Voice:    record.Voice,
		Document: record.Document,
		Image:    record.Image,
	}
}

// Update applies the non-nil fields of the request and returns the
// resulting snapshot.
func (s *ConsentService) Update(userID string, req *models.UpdateConsentRequest) (models.ConsentSnapshot, error) {
	var record db.ConsentRecord
	err := s.db.First(&record, "user_id = ?", userID).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ConsentSnapshot{}, err
	}
	record.UserID = userID

	if req.Memory != nil {
		record.Memory = *req.Memory
	}
	if req.Voice != nil {
		record.Voice = *req.Voice
	}
	if req.Document != nil {
		record.Document = *req.Document
	}
	if req.Image != nil {
		record.Image = *req.Image
	}

	if err := s.db.Save(&record).Error; err != nil {
		return models.ConsentSnapshot{}, err
	}

	s.logger.Info("consent updated", "user_id", userID,
		"memory", record.Memory, "voice", record.Voice,
		"document", record.Document, "image", record.Image)

	return models.ConsentSnapshot{
		Memory:   record.Memory,
		Voice:    record.Voice,
		Document: record.Document,
		Image:    record.Image,
	}, nil
}

// Authorize checks a capability against a snapshot, returning nil when
// allowed. Denials are logged for audit.
func (s *ConsentService) Authorize(snapshot models.ConsentSnapshot, capability models.Capability) error {
	if snapshot.Allows(capability) {
		return nil
	}
	s.logger.Info("capability denied by consent", "capability", capability)
	return &models.PolicyDeniedError{Capability: capability}
}
