package tenantdata

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clinic/clinic/internal/platform/apperr"
	"github.com/clinic/clinic/internal/platform/auth"
)

// -- Mock Repository --

type docKey struct {
	owner uuid.UUID
	t     DataType
}

type mockRepo struct {
	docs    map[docKey][]json.RawMessage
	mutates int
}

func newMockRepo() *mockRepo {
	return &mockRepo{docs: make(map[docKey][]json.RawMessage)}
}

func (m *mockRepo) Get(_ context.Context, owner uuid.UUID, t DataType) (*Document, error) {
	payload := m.docs[docKey{owner, t}]
	if payload == nil {
		payload = []json.RawMessage{}
	}
	return &Document{OwnerID: owner, Type: t, Payload: payload}, nil
}

func (m *mockRepo) GetAll(ctx context.Context, owner uuid.UUID) (*Bundle, error) {
	b := NewBundle()
	for _, t := range DataTypes {
		doc, _ := m.Get(ctx, owner, t)
		b.Set(t, doc.Payload)
	}
	return b, nil
}

func (m *mockRepo) Put(_ context.Context, owner uuid.UUID, t DataType, payload []json.RawMessage) (*Document, error) {
	if payload == nil {
		payload = []json.RawMessage{}
	}
	m.docs[docKey{owner, t}] = payload
	return &Document{OwnerID: owner, Type: t, Payload: payload, UpdatedAt: time.Now()}, nil
}

func (m *mockRepo) Mutate(ctx context.Context, owner uuid.UUID, t DataType, fn MutateFunc) (*Document, error) {
	m.mutates++
	doc, _ := m.Get(ctx, owner, t)
	current := append([]json.RawMessage{}, doc.Payload...)
	next, err := fn(current)
	if err != nil {
		return nil, err
	}
	return m.Put(ctx, owner, t, next)
}

func (m *mockRepo) seed(owner uuid.UUID, t DataType, records ...string) {
	payload := make([]json.RawMessage, 0, len(records))
	for _, r := range records {
		payload = append(payload, json.RawMessage(r))
	}
	m.docs[docKey{owner, t}] = payload
}

type passthroughTx struct{ calls int }

func (p *passthroughTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	p.calls++
	return fn(ctx)
}

type mockUsers map[uuid.UUID]*auth.Identity

func (m mockUsers) GetIdentity(_ context.Context, id uuid.UUID) (*auth.Identity, error) {
	u, ok := m[id]
	if !ok {
		return nil, apperr.NotFound("user-not-found", "user not found")
	}
	return u, nil
}

type fixture struct {
	svc     *Service
	repo    *mockRepo
	tx      *passthroughTx
	doctor  *auth.Identity
	admin   *auth.Identity
	patient *auth.Identity
}

func newFixture() *fixture {
	doctor := &auth.Identity{ID: uuid.New(), Email: "doc@x.com", Name: "Dr. Ana", Role: auth.RoleDoctor}
	admin := &auth.Identity{ID: uuid.New(), Email: "admin@x.com", Name: "Admin", Role: auth.RoleAdmin}
	patient := &auth.Identity{ID: uuid.New(), Email: "joao@x.com", Name: "João", Role: auth.RolePatient, DoctorID: &doctor.ID}

	repo := newMockRepo()
	tx := &passthroughTx{}
	users := mockUsers{doctor.ID: doctor, admin.ID: admin, patient.ID: patient}
	svc := NewService(repo, users, tx, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

	return &fixture{svc: svc, repo: repo, tx: tx, doctor: doctor, admin: admin, patient: patient}
}

func expectAppErr(t *testing.T, err error, status int, code string) {
	t.Helper()
	appErr, ok := apperr.As(err)
	if !ok {
		t.Fatalf("expected apperr.Error %s, got %T (%v)", code, err, err)
	}
	if appErr.Status != status || appErr.Code != code {
		t.Errorf("expected %d %s, got %d %s", status, code, appErr.Status, appErr.Code)
	}
}

func TestGetAll_StaffOwnDocuments(t *testing.T) {
	f := newFixture()
	f.repo.seed(f.doctor.ID, Patients, `{"id":"p1","name":"Maria"}`)
	f.repo.seed(f.doctor.ID, MedicalRecords, `{"id":"m1","patientId":"p1"}`)

	b, err := f.svc.GetAll(context.Background(), f.doctor, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Patients) != 1 || len(b.MedicalRecords) != 1 {
		t.Errorf("expected doctor's own documents, got %+v", b)
	}
	if b.Prescriptions == nil || b.Appointments == nil {
		t.Error("missing documents must be empty lists, not nil")
	}
}

func TestGetAll_AdminImpersonation(t *testing.T) {
	f := newFixture()
	f.repo.seed(f.doctor.ID, Patients, `{"id":"p1","name":"Maria"}`)

	b, err := f.svc.GetAll(context.Background(), f.admin, f.doctor.ID.String())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Patients) != 1 {
		t.Errorf("expected admin to read the doctor's documents, got %d patients", len(b.Patients))
	}

	_, err = f.svc.GetAll(context.Background(), f.admin, "not-a-uuid")
	expectAppErr(t, err, http.StatusBadRequest, "invalid-user-id")
}

func TestGetAll_NonAdminOtherTargetForbidden(t *testing.T) {
	f := newFixture()
	other := uuid.NewString()

	_, err := f.svc.GetAll(context.Background(), f.doctor, other)
	expectAppErr(t, err, http.StatusForbidden, "forbidden")

	_, err = f.svc.GetType(context.Background(), f.patient, f.doctor.ID.String(), Prescriptions)
	expectAppErr(t, err, http.StatusForbidden, "forbidden")

	if _, err := f.svc.GetAll(context.Background(), f.doctor, f.doctor.ID.String()); err != nil {
		t.Errorf("naming yourself must be allowed, got %v", err)
	}
}

func TestPatientProjection(t *testing.T) {
	f := newFixture()
	self := f.patient.ID.String()
	f.repo.seed(f.doctor.ID, Patients,
		`{"id":"p1","name":"Maria","email":"maria@x.com"}`,
		`{"id":"p2","name":"João","email":"JOAO@x.com"}`,
		`{"id":"p3","name":"João (linked)","linkedUserId":"`+self+`"}`,
	)
	f.repo.seed(f.doctor.ID, Prescriptions,
		`{"id":"rx1","patientId":"`+self+`"}`,
		`{"id":"rx2","patientId":"p1"}`,
	)
	f.repo.seed(f.doctor.ID, Appointments,
		`{"id":"a1","patientId":"p1"}`,
		`{"id":"a2","patientId":"`+self+`"}`,
		`{"id":"a3","patientId":"`+self+`"}`,
	)
	f.repo.seed(f.doctor.ID, MedicalRecords, `{"id":"m1","patientId":"`+self+`"}`)

	b, err := f.svc.GetAll(context.Background(), f.patient, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(b.Patients) != 1 {
		t.Fatalf("expected 1 matched profile, got %d", len(b.Patients))
	}
	var p PatientProfile
	json.Unmarshal(b.Patients[0], &p)
	if p.ID.String() != "p3" {
		t.Errorf("linkedUserId must win over email match, got %s", p.ID)
	}
	if len(b.Prescriptions) != 1 || len(b.Appointments) != 2 {
		t.Errorf("expected own prescriptions/appointments only, got %d/%d", len(b.Prescriptions), len(b.Appointments))
	}
	if len(b.MedicalRecords) != 0 {
		t.Error("patients must never see medical records")
	}
}

func TestPatientProjection_NoDoctor(t *testing.T) {
	f := newFixture()
	f.patient.DoctorID = nil

	b, err := f.svc.GetAll(context.Background(), f.patient, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, dt := range DataTypes {
		if got := b.Get(dt); got == nil || len(got) != 0 {
			t.Errorf("%s: expected empty list, got %v", dt, got)
		}
	}
}

func TestSave_PatientReadOnly(t *testing.T) {
	f := newFixture()

	_, err := f.svc.SaveAll(context.Background(), f.patient, "", map[DataType][]json.RawMessage{Patients: {}})
	expectAppErr(t, err, http.StatusForbidden, "patient-readonly")

	_, err = f.svc.SaveType(context.Background(), f.patient, "", Appointments, nil)
	expectAppErr(t, err, http.StatusForbidden, "patient-readonly")
}

func TestSaveAll_ReplacesPresentTypesOnly(t *testing.T) {
	f := newFixture()
	f.repo.seed(f.doctor.ID, MedicalRecords, `{"id":"m1"}`)

	saved, err := f.svc.SaveAll(context.Background(), f.doctor, "", map[DataType][]json.RawMessage{
		Patients:      {json.RawMessage(`{"id":"p1"}`), json.RawMessage(`{"id":"p2"}`)},
		Prescriptions: {},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(saved) != 2 || saved[0] != Patients || saved[1] != Prescriptions {
		t.Errorf("unexpected saved types: %v", saved)
	}
	if f.tx.calls != 1 {
		t.Errorf("expected one transaction, got %d", f.tx.calls)
	}
	if got := f.repo.docs[docKey{f.doctor.ID, Patients}]; len(got) != 2 {
		t.Errorf("expected 2 patients stored, got %d", len(got))
	}
	if got := f.repo.docs[docKey{f.doctor.ID, MedicalRecords}]; len(got) != 1 {
		t.Error("types absent from the request must be left alone")
	}
}

func TestUpsertPatientProfile_AppendsThenMerges(t *testing.T) {
	f := newFixture()
	subj := Subject{UserID: f.patient.ID.String(), Email: f.patient.Email}

	created, err := f.svc.UpsertPatientProfile(context.Background(), f.doctor.ID, subj, PatientProfile{
		LinkedUserID: f.patient.ID.String(),
		Name:         "João",
		CPF:          "529.982.247-25",
		Phone:        "11999990000",
		Allergies:    StringList{"penicilina"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID.IsZero() || created.CreatedAt == "" {
		t.Errorf("new profile must get an id and createdAt, got %+v", created)
	}

	merged, err := f.svc.UpsertPatientProfile(context.Background(), f.doctor.ID, subj, PatientProfile{
		Phone:   "11888880000",
		Address: "Rua A, 1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if merged.ID != created.ID || merged.CreatedAt != created.CreatedAt {
		t.Error("merge must keep id and createdAt")
	}
	if merged.Name != "João" || merged.Phone != "11888880000" || merged.Address != "Rua A, 1" {
		t.Errorf("unexpected merge result: %+v", merged)
	}
	if len(merged.Allergies) != 1 {
		t.Error("empty incoming lists must not clear stored ones")
	}

	doc := f.repo.docs[docKey{f.doctor.ID, Patients}]
	if len(doc) != 1 {
		t.Fatalf("expected exactly one profile after upsert twice, got %d", len(doc))
	}
}

func TestUpsertPatientProfile_KeepsForeignRecords(t *testing.T) {
	f := newFixture()
	f.repo.seed(f.doctor.ID, Patients, `"legacy string entry"`, `{"id":7,"name":"Maria","custom":"x"}`)

	_, err := f.svc.UpsertPatientProfile(context.Background(), f.doctor.ID,
		Subject{UserID: "7"}, PatientProfile{Phone: "123"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := f.repo.docs[docKey{f.doctor.ID, Patients}]
	if len(doc) != 2 || string(doc[0]) != `"legacy string entry"` {
		t.Fatalf("non-profile entries must be preserved, got %s", doc)
	}
	var m map[string]interface{}
	json.Unmarshal(doc[1], &m)
	if m["id"] != float64(7) || m["custom"] != "x" || m["phone"] != "123" {
		t.Errorf("expected numeric id and unknown keys preserved, got %v", m)
	}
}

func TestLooselyTypedProfile_StillMatched(t *testing.T) {
	f := newFixture()
	f.repo.seed(f.doctor.ID, Patients,
		`{"id":"p1","linkedUserId":"`+f.patient.ID.String()+`","name":"João","phone":11999990000,"address":{"street":"Rua A"}}`,
		`{"id":"p2","name":"Maria"}`)

	b, err := f.svc.PatientProjection(context.Background(), f.patient)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(b.Patients) != 1 {
		t.Fatalf("expected own profile in projection, got %d", len(b.Patients))
	}

	found, err := f.svc.FindPatientProfile(context.Background(), f.doctor.ID, Subject{UserID: f.patient.ID.String()})
	if err != nil || found == nil {
		t.Fatalf("expected profile to be found, got %v, %v", found, err)
	}
	if found.Phone != "11999990000" {
		t.Errorf("expected numeric phone as text, got %q", found.Phone)
	}

	_, err = f.svc.UpsertPatientProfile(context.Background(), f.doctor.ID,
		Subject{UserID: f.patient.ID.String()}, PatientProfile{DateOfBirth: "1990-05-01"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	doc := f.repo.docs[docKey{f.doctor.ID, Patients}]
	if len(doc) != 2 {
		t.Fatalf("upsert must merge into the existing entry, got %d entries", len(doc))
	}
	var m map[string]interface{}
	if err := json.Unmarshal(doc[0], &m); err != nil {
		t.Fatalf("decode stored profile: %v", err)
	}
	if m["dateOfBirth"] != "1990-05-01" || m["name"] != "João" {
		t.Errorf("expected merged fields, got %v", m)
	}
	if m["phone"] != float64(11999990000) {
		t.Errorf("untouched phone must keep its type, got %#v", m["phone"])
	}
	if addr, ok := m["address"].(map[string]interface{}); !ok || addr["street"] != "Rua A" {
		t.Errorf("address object must be preserved, got %#v", m["address"])
	}
}

func TestRequestAppointment(t *testing.T) {
	f := newFixture()
	f.repo.seed(f.doctor.ID, Patients, `{"id":"p9","name":"João da Silva","linkedUserId":"`+f.patient.ID.String()+`"}`)

	appt, doctor, err := f.svc.RequestAppointment(context.Background(), f.patient, AppointmentRequest{
		Date: "2026-03-10", Time: "14:00", Reason: "retorno",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if appt.PatientID.String() != f.patient.ID.String() || appt.Status != AppointmentStatusRequested {
		t.Errorf("unexpected appointment: %+v", appt)
	}
	if appt.PatientName != "João da Silva" {
		t.Errorf("expected profile name, got %q", appt.PatientName)
	}
	if doctor.ID != f.doctor.ID || doctor.Name != "Dr. Ana" {
		t.Errorf("unexpected doctor summary: %+v", doctor)
	}
	if got := f.repo.docs[docKey{f.doctor.ID, Appointments}]; len(got) != 1 {
		t.Errorf("expected appointment appended to doctor's document, got %d", len(got))
	}
}

func TestRequestAppointment_Errors(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, _, err := f.svc.RequestAppointment(ctx, f.patient, AppointmentRequest{Date: "2026-03-10"})
	expectAppErr(t, err, http.StatusBadRequest, "invalid-appointment")

	unlinked := *f.patient
	unlinked.DoctorID = nil
	_, _, err = f.svc.RequestAppointment(ctx, &unlinked, AppointmentRequest{Date: "d", Time: "t"})
	expectAppErr(t, err, http.StatusBadRequest, "patient-doctor-missing")

	gone := uuid.New()
	orphan := *f.patient
	orphan.DoctorID = &gone
	_, _, err = f.svc.RequestAppointment(ctx, &orphan, AppointmentRequest{Date: "d", Time: "t"})
	expectAppErr(t, err, http.StatusNotFound, "doctor-not-found")
}
