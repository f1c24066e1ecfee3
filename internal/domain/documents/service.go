package documents

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/mevo"
)

// Issuer is the external document provider.
type Issuer interface {
	IssueDocument(ctx context.Context, p mevo.Payload) (*mevo.Result, error)
	SignatureSession(ctx context.Context, provider string) (*mevo.SignatureSession, error)
}

type Service struct {
	repo   Repository
	issuer Issuer
	logger zerolog.Logger
}

func NewService(repo Repository, issuer Issuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, issuer: issuer, logger: logger}
}

// Emit issues a document through the provider and records the attempt. A
// provider failure is stored with status failed and returned as a 502 that
// carries the stored record.
func (s *Service) Emit(ctx context.Context, caller *auth.Identity, req EmitRequest) (*MevoDocument, string, error) {
	docType := strings.TrimSpace(req.DocumentType)
	if !mevo.ValidDocumentType(docType) {
		return nil, "", apperr.BadRequest("invalid-document-type", "documentType must be prescription or certificate")
	}
	prescriptionID := strings.TrimSpace(req.PrescriptionID)
	if prescriptionID == "" {
		return nil, "", apperr.BadRequest("prescription-required", "prescriptionId is required")
	}

	payload := mevo.Payload{
		DocumentType:   docType,
		PrescriptionID: prescriptionID,
		PatientID:      strings.TrimSpace(req.PatientID),
		Prescription:   req.Prescription,
		Patient:        req.Patient,
		Doctor:         &mevo.Doctor{ID: caller.ID.String(), Name: caller.Name, Email: caller.Email},
	}
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, "", apperr.BadRequest("invalid-body", "prescription and patient must be valid JSON")
	}

	doc := &MevoDocument{
		UserID:          caller.ID,
		PrescriptionID:  prescriptionID,
		DocumentType:    docType,
		ProviderName:    providerName,
		ProviderPayload: payloadJSON,
	}
	if payload.PatientID != "" {
		doc.PatientID = &payload.PatientID
	}

	res, issueErr := s.issuer.IssueDocument(ctx, payload)
	if issueErr != nil {
		msg := issueErr.Error()
		doc.Status = StatusFailed
		doc.ErrorMessage = &msg
		var pe *mevo.ProviderError
		if errors.As(issueErr, &pe) && pe.Body != "" {
			doc.RawResponse = asJSON(pe.Body)
		}
		if err := s.repo.Upsert(ctx, doc); err != nil {
			return nil, "", err
		}

		s.logger.Error().Err(issueErr).
			Str("user_id", caller.ID.String()).
			Str("prescription_id", prescriptionID).
			Str("document_type", docType).
			Msg("mevo issuance failed")
		return nil, "", apperr.BadGateway("mevo-error", "document provider failed", issueErr).With("document", doc)
	}

	doc.Status = res.Status
	doc.ProviderDocumentID = nonEmpty(res.ProviderDocumentID)
	doc.ProviderToken = nonEmpty(res.ProviderToken)
	doc.RawResponse = res.RawResponse
	if err := s.repo.Upsert(ctx, doc); err != nil {
		return nil, "", err
	}
	return doc, res.Mode, nil
}

func (s *Service) List(ctx context.Context, caller *auth.Identity, f Filter) ([]*MevoDocument, error) {
	f.PrescriptionID = strings.TrimSpace(f.PrescriptionID)
	f.DocumentType = strings.TrimSpace(f.DocumentType)
	if f.DocumentType != "" && !mevo.ValidDocumentType(f.DocumentType) {
		return nil, apperr.BadRequest("invalid-document-type", "documentType must be prescription or certificate")
	}
	docs, err := s.repo.List(ctx, caller.ID, f)
	if err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []*MevoDocument{}
	}
	return docs, nil
}

func (s *Service) SignatureSession(ctx context.Context, provider string) (*mevo.SignatureSession, error) {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if !mevo.ValidSignatureProvider(provider) {
		return nil, apperr.BadRequest("invalid-provider", "provider must be bird_id or viddas")
	}
	return s.issuer.SignatureSession(ctx, provider)
}

// asJSON keeps a JSON body as is and wraps anything else as a JSON string.
func asJSON(body string) json.RawMessage {
	if json.Valid([]byte(body)) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(body)
	return quoted
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
