package documents

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	StatusFailed = "failed"
	providerName = "mevo"
)

// MevoDocument maps to the mevo_documents table. There is one row per
// (user, prescription, document type); every issuance attempt overwrites it.
type MevoDocument struct {
	ID                 uuid.UUID       `db:"id" json:"id"`
	UserID             uuid.UUID       `db:"user_id" json:"userId"`
	PrescriptionID     string          `db:"prescription_id" json:"prescriptionId"`
	PatientID          *string         `db:"patient_id" json:"patientId"`
	DocumentType       string          `db:"document_type" json:"documentType"`
	Status             string          `db:"status" json:"status"`
	ProviderName       string          `db:"provider_name" json:"providerName"`
	ProviderDocumentID *string         `db:"provider_document_id" json:"providerDocumentId"`
	ProviderToken      *string         `db:"provider_token" json:"providerToken"`
	ProviderPayload    json.RawMessage `db:"provider_payload" json:"providerPayload"`
	RawResponse        json.RawMessage `db:"raw_response" json:"rawResponse"`
	ErrorMessage       *string         `db:"error_message" json:"errorMessage"`
	CreatedAt          time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time       `db:"updated_at" json:"updatedAt"`
}

// EmitRequest is the body of POST /integrations/mevo/emit.
type EmitRequest struct {
	DocumentType   string          `json:"documentType"`
	PrescriptionID string          `json:"prescriptionId"`
	PatientID      string          `json:"patientId"`
	Prescription   json.RawMessage `json:"prescription"`
	Patient        json.RawMessage `json:"patient"`
}

type SignatureRequest struct {
	Provider string `json:"provider"`
}

// Filter narrows a document listing. Empty fields match everything.
type Filter struct {
	PrescriptionID string
	DocumentType   string
}
