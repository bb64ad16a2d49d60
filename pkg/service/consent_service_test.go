package service

import (
	"errors"
	"testing"

	"github.com/havenai/haven/pkg/db"
	"github.com/havenai/haven/pkg/models"
)

func newConsentService(t *testing.T) *ConsentService {
	t.Helper()
	database, err := db.OpenInMemory()
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(&db.ConsentRecord{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewConsentService(database)
}

func TestSnapshotDefaultsToDenyAll(t *testing.T) {
	s := newConsentService(t)

	snapshot := s.Snapshot("unknown-user")
	for _, cap := range []models.Capability{
		models.CapabilityMemory, models.CapabilityVoice,
		models.CapabilityDocument, models.CapabilityImage,
	} {
		if snapshot.Allows(cap) {
			t.Fatalf("capability %q allowed without a grant", cap)
		}
	}
}

func TestUpdateAppliesOnlyProvidedFields(t *testing.T) {
	s := newConsentService(t)
	yes := true

	snap, err := s.Update("u1", &models.UpdateConsentRequest{Voice: &yes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !snap.Voice {
		t.Fatal("voice grant not applied")
	}
	if snap.Memory || snap.Document || snap.Image {
		t.Fatal("unrelated grants changed")
	}

	// A second partial update keeps the earlier grant.
	snap, err = s.Update("u1", &models.UpdateConsentRequest{Document: &yes})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !snap.Voice || !snap.Document {
		t.Fatalf("grants lost across partial updates: %+v", snap)
	}
}

func TestUpdateCanRevoke(t *testing.T) {
	s := newConsentService(t)
	yes, no := true, false

	if _, err := s.Update("u1", &models.UpdateConsentRequest{Voice: &yes}); err != nil {
		t.Fatalf("grant: %v", err)
	}
	snap, err := s.Update("u1", &models.UpdateConsentRequest{Voice: &no})
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if snap.Voice {
		t.Fatal("voice grant not revoked")
	}
}

func TestAuthorizeReturnsTypedDenial(t *testing.T) {
	s := newConsentService(t)

	err := s.Authorize(models.ConsentSnapshot{}, models.CapabilityImage)
	var denied *models.PolicyDeniedError
	if !errors.As(err, &denied) {
		t.Fatalf("err = %v, want PolicyDeniedError", err)
	}
	if denied.Capability != models.CapabilityImage {
		t.Fatalf("capability = %q", denied.Capability)
	}

	if err := s.Authorize(models.ConsentSnapshot{Image: true}, models.CapabilityImage); err != nil {
		t.Fatalf("granted capability denied: %v", err)
	}
}
