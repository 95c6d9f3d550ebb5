package domain

import (
	"time"

	"github.com/google/uuid"
)

// ReferenceStub representa um sujeito de referência com foto
type ReferenceStub struct {
	ID             uuid.UUID `json:"id"`
	SubjectName    string    `json:"subject_name"`
	SubjectContact string    `json:"subject_contact,omitempty"`
	PhotoURL       string    `json:"photo_url"`
}

// FaceEmbeddingRecord stores the provider identifier derived from a
// reference photo. FaceServiceID is valid only for FaceServiceType.
type FaceEmbeddingRecord struct {
	ReferenceID     uuid.UUID     `json:"reference_id"`
	SubjectName     string        `json:"subject_name"`
	SubjectContact  string        `json:"subject_contact,omitempty"`
	PhotoURL        string        `json:"photo_url"`
	FaceServiceID   *string       `json:"face_service_id,omitempty"`
	FaceServiceType *ProviderType `json:"face_service_type,omitempty"`
	Embedding       []float32     `json:"-"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// StoredFaceID returns the stored identifier and whether one exists.
func (r *FaceEmbeddingRecord) StoredFaceID() (FaceID, bool) {
	if r.FaceServiceID == nil || *r.FaceServiceID == "" || r.FaceServiceType == nil {
		return FaceID{}, false
	}
	return FaceID{
		Provider:  *r.FaceServiceType,
		Value:     *r.FaceServiceID,
		IssuedAt:  r.UpdatedAt,
		Embedding: r.Embedding,
	}, true
}

// SetFaceID replaces the stored identifier with id.
func (r *FaceEmbeddingRecord) SetFaceID(id FaceID) {
	value := id.Value
	provider := id.Provider
	r.FaceServiceID = &value
	r.FaceServiceType = &provider
	r.Embedding = id.Embedding
	if !id.IssuedAt.IsZero() {
		r.UpdatedAt = id.IssuedAt
	}
}

func (r *FaceEmbeddingRecord) Stub() ReferenceStub {
	return ReferenceStub{
		ID:             r.ReferenceID,
		SubjectName:    r.SubjectName,
		SubjectContact: r.SubjectContact,
		PhotoURL:       r.PhotoURL,
	}
}
