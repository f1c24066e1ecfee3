package documents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
	"github.com/clinic/clinic/internal/platform/mevo"
)

// -- Mock Repository --

type docKey struct {
	user         uuid.UUID
	prescription string
	docType      string
}

type mockRepo struct {
	docs map[docKey]*MevoDocument
}

func newMockRepo() *mockRepo {
	return &mockRepo{docs: make(map[docKey]*MevoDocument)}
}

func (m *mockRepo) Upsert(_ context.Context, d *MevoDocument) error {
	k := docKey{d.UserID, d.PrescriptionID, d.DocumentType}
	now := time.Now()
	if existing, ok := m.docs[k]; ok {
		d.ID = existing.ID
		d.CreatedAt = existing.CreatedAt
	} else {
		d.ID = uuid.New()
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	cp := *d
	m.docs[k] = &cp
	return nil
}

func (m *mockRepo) List(_ context.Context, userID uuid.UUID, f Filter) ([]*MevoDocument, error) {
	var out []*MevoDocument
	for k, d := range m.docs {
		if k.user != userID {
			continue
		}
		if f.PrescriptionID != "" && k.prescription != f.PrescriptionID {
			continue
		}
		if f.DocumentType != "" && k.docType != f.DocumentType {
			continue
		}
		cp := *d
		out = append(out, &cp)
	}
	return out, nil
}

var doctor = &auth.Identity{ID: uuid.New(), Email: "ana@clinic.com", Name: "Dr. Ana", Role: auth.RoleDoctor}

func newMockService() (*Service, *mockRepo) {
	repo := newMockRepo()
	return NewService(repo, mevo.NewClient(mevo.Config{}, zerolog.Nop()), zerolog.Nop()), repo
}

func failingProvider(t *testing.T, status int, body string) *mevo.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return mevo.NewClient(mevo.Config{BaseURL: srv.URL, APIKey: "k"}, zerolog.Nop())
}

func TestEmit_MockMode(t *testing.T) {
	svc, repo := newMockService()

	doc, mode, err := svc.Emit(context.Background(), doctor, EmitRequest{
		DocumentType:   "certificate",
		PrescriptionID: " rx-1 ",
		PatientID:      "p-7",
		Patient:        json.RawMessage(`{"name":"João"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mode != mevo.ModeMock {
		t.Errorf("expected mock mode, got %s", mode)
	}
	if doc.Status != "issued" || doc.ProviderDocumentID == nil || !strings.HasPrefix(*doc.ProviderDocumentID, "mock-cert-") {
		t.Errorf("unexpected document: %+v", doc)
	}
	if doc.PrescriptionID != "rx-1" || doc.PatientID == nil || *doc.PatientID != "p-7" {
		t.Errorf("unexpected identifiers: %+v", doc)
	}

	var payload mevo.Payload
	if err := json.Unmarshal(doc.ProviderPayload, &payload); err != nil {
		t.Fatalf("provider payload is not JSON: %v", err)
	}
	if payload.Doctor == nil || payload.Doctor.ID != doctor.ID.String() {
		t.Errorf("expected doctor in provider payload, got %+v", payload.Doctor)
	}
	if len(repo.docs) != 1 {
		t.Errorf("expected one stored document, got %d", len(repo.docs))
	}
}

func TestEmit_Validation(t *testing.T) {
	svc, repo := newMockService()

	_, _, err := svc.Emit(context.Background(), doctor, EmitRequest{DocumentType: "referral", PrescriptionID: "rx"})
	expectCode(t, err, http.StatusBadRequest, "invalid-document-type")

	_, _, err = svc.Emit(context.Background(), doctor, EmitRequest{DocumentType: "prescription"})
	expectCode(t, err, http.StatusBadRequest, "prescription-required")

	if len(repo.docs) != 0 {
		t.Error("expected nothing stored for invalid requests")
	}
}

func TestEmit_ProviderFailureRecorded(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, failingProvider(t, http.StatusServiceUnavailable, "upstream down"), zerolog.Nop())

	_, _, err := svc.Emit(context.Background(), doctor, EmitRequest{DocumentType: "prescription", PrescriptionID: "rx-2"})
	appErr := expectCode(t, err, http.StatusBadGateway, "mevo-error")

	stored := repo.docs[docKey{doctor.ID, "rx-2", "prescription"}]
	if stored == nil {
		t.Fatal("expected the failed attempt to be stored")
	}
	if stored.Status != StatusFailed || stored.ErrorMessage == nil || !strings.Contains(*stored.ErrorMessage, "503") {
		t.Errorf("unexpected failed record: %+v", stored)
	}
	if string(stored.RawResponse) != `"upstream down"` {
		t.Errorf("expected non-JSON body wrapped as a string, got %s", stored.RawResponse)
	}

	partial, ok := appErr.Details["document"].(*MevoDocument)
	if !ok || partial.ID != stored.ID {
		t.Errorf("expected error to carry the stored document, got %v", appErr.Details)
	}
}

func TestEmit_RetryOverwritesFailure(t *testing.T) {
	repo := newMockRepo()
	failing := NewService(repo, failingProvider(t, http.StatusBadRequest, `{"error":"bad"}`), zerolog.Nop())
	req := EmitRequest{DocumentType: "prescription", PrescriptionID: "rx-3"}

	if _, _, err := failing.Emit(context.Background(), doctor, req); err == nil {
		t.Fatal("expected provider failure")
	}
	first := repo.docs[docKey{doctor.ID, "rx-3", "prescription"}]
	if string(first.RawResponse) != `{"error":"bad"}` {
		t.Errorf("expected JSON body kept as is, got %s", first.RawResponse)
	}

	ok := NewService(repo, mevo.NewClient(mevo.Config{}, zerolog.Nop()), zerolog.Nop())
	doc, _, err := ok.Emit(context.Background(), doctor, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.ID != first.ID || doc.Status != "issued" || doc.ErrorMessage != nil {
		t.Errorf("expected the same row to be overwritten, got %+v", doc)
	}
	if len(repo.docs) != 1 {
		t.Errorf("expected one row, got %d", len(repo.docs))
	}
}

func TestList(t *testing.T) {
	svc, _ := newMockService()
	ctx := context.Background()
	for _, req := range []EmitRequest{
		{DocumentType: "prescription", PrescriptionID: "rx-1"},
		{DocumentType: "certificate", PrescriptionID: "rx-1"},
		{DocumentType: "prescription", PrescriptionID: "rx-2"},
	} {
		if _, _, err := svc.Emit(ctx, doctor, req); err != nil {
			t.Fatalf("emit: %v", err)
		}
	}

	docs, err := svc.List(ctx, doctor, Filter{PrescriptionID: "rx-1"})
	if err != nil || len(docs) != 2 {
		t.Errorf("expected 2 documents for rx-1, got %d %v", len(docs), err)
	}
	docs, _ = svc.List(ctx, doctor, Filter{PrescriptionID: "rx-1", DocumentType: "certificate"})
	if len(docs) != 1 {
		t.Errorf("expected 1 certificate, got %d", len(docs))
	}

	other := &auth.Identity{ID: uuid.New(), Role: auth.RoleDoctor}
	docs, _ = svc.List(ctx, other, Filter{})
	if docs == nil || len(docs) != 0 {
		t.Errorf("expected an empty list for another doctor, got %v", docs)
	}

	_, err = svc.List(ctx, doctor, Filter{DocumentType: "referral"})
	expectCode(t, err, http.StatusBadRequest, "invalid-document-type")
}

func TestSignatureSession(t *testing.T) {
	svc, _ := newMockService()

	s, err := svc.SignatureSession(context.Background(), " BIRD_ID ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Provider != mevo.ProviderBirdID || s.Mode != mevo.ModeMock || s.AuthURL == "" {
		t.Errorf("unexpected session: %+v", s)
	}

	_, err = svc.SignatureSession(context.Background(), "")
	expectCode(t, err, http.StatusBadRequest, "invalid-provider")
}

func expectCode(t *testing.T, err error, status int, code string) *apperr.Error {
	t.Helper()
	appErr, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected *apperr.Error, got %v", err)
	}
	if appErr.Status != status || appErr.Code != code {
		t.Errorf("expected %d %s, got %d %s", status, code, appErr.Status, appErr.Code)
	}
	return appErr
}
