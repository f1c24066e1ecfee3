package tenantdata

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DataType names one of the four documents a staff user owns.
type DataType string

const (
	Patients       DataType = "patients"
	Prescriptions  DataType = "prescriptions"
	Appointments   DataType = "appointments"
	MedicalRecords DataType = "medicalRecords"
)

// DataTypes in the order they are returned by GetAll.
var DataTypes = []DataType{Patients, Prescriptions, Appointments, MedicalRecords}

func ParseDataType(s string) (DataType, bool) {
	for _, t := range DataTypes {
		if string(t) == s {
			return t, true
		}
	}
	return "", false
}

// Document is the stored list for one (owner, type) pair. Payload is never
// nil.
type Document struct {
	OwnerID   uuid.UUID         `json:"ownerId"`
	Type      DataType          `json:"dataType"`
	Payload   []json.RawMessage `json:"payload"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// Bundle is the combined view of all four documents.
type Bundle struct {
	Patients       []json.RawMessage `json:"patients"`
	Prescriptions  []json.RawMessage `json:"prescriptions"`
	Appointments   []json.RawMessage `json:"appointments"`
	MedicalRecords []json.RawMessage `json:"medicalRecords"`
}

func NewBundle() *Bundle {
	return &Bundle{
		Patients:       []json.RawMessage{},
		Prescriptions:  []json.RawMessage{},
		Appointments:   []json.RawMessage{},
		MedicalRecords: []json.RawMessage{},
	}
}

func (b *Bundle) Get(t DataType) []json.RawMessage {
	switch t {
	case Patients:
		return b.Patients
	case Prescriptions:
		return b.Prescriptions
	case Appointments:
		return b.Appointments
	case MedicalRecords:
		return b.MedicalRecords
	}
	return nil
}

func (b *Bundle) Set(t DataType, payload []json.RawMessage) {
	if payload == nil {
		payload = []json.RawMessage{}
	}
	switch t {
	case Patients:
		b.Patients = payload
	case Prescriptions:
		b.Prescriptions = payload
	case Appointments:
		b.Appointments = payload
	case MedicalRecords:
		b.MedicalRecords = payload
	}
}

// RecordID is a record identifier as written by the client. Older records
// use numeric ids; those are re-emitted as numbers.
type RecordID struct {
	Value   string
	Numeric bool
}

func NewRecordID(s string) RecordID { return RecordID{Value: s} }

func (r RecordID) String() string { return r.Value }

func (r RecordID) IsZero() bool { return r.Value == "" }

func (r RecordID) MarshalJSON() ([]byte, error) {
	if r.Numeric {
		return []byte(r.Value), nil
	}
	return json.Marshal(r.Value)
}

func (r *RecordID) UnmarshalJSON(data []byte) error {
	switch {
	case string(data) == "null":
		*r = RecordID{}
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*r = RecordID{Value: s}
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*r = RecordID{Value: n.String(), Numeric: true}
	}
	return nil
}

// StringList decodes either a JSON array of strings or a single
// comma-separated string, which older clients send for allergies.
type StringList []string

func (l *StringList) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*l = nil
		return nil
	}
	var arr []string
	if err := json.Unmarshal(data, &arr); err == nil {
		*l = arr
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	*l = out
	return nil
}

// PatientProfile is one entry in a doctor's patients document. Keys the
// server does not model are kept in Extra and written back unchanged.
type PatientProfile struct {
	ID               RecordID   `json:"id"`
	LinkedUserID     string     `json:"linkedUserId,omitempty"`
	Name             string     `json:"name"`
	CPF              string     `json:"cpf,omitempty"`
	Email            string     `json:"email,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	DateOfBirth      string     `json:"dateOfBirth,omitempty"`
	Gender           string     `json:"gender,omitempty"`
	Address          string     `json:"address,omitempty"`
	HealthInsurance  string     `json:"healthInsurance,omitempty"`
	BloodType        string     `json:"bloodType,omitempty"`
	MedicalHistory   string     `json:"medicalHistory,omitempty"`
	Allergies        StringList `json:"allergies"`
	Medications      StringList `json:"medications"`
	Cid10Code        string     `json:"cid10Code,omitempty"`
	Cid10Description string     `json:"cid10Description,omitempty"`
	CreatedAt        string     `json:"createdAt,omitempty"`
	UpdatedAt        string     `json:"updatedAt,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type patientProfileAlias PatientProfile

// UnmarshalJSON accepts any JSON object. Values of an unexpected type, such
// as a numeric phone or a structured address, are kept in Extra.
func (p *PatientProfile) UnmarshalJSON(data []byte) error {
	var a patientProfileAlias
	extra, err := decodeLenient(data, &a)
	if err != nil {
		return err
	}
	a.Extra = extra
	*p = PatientProfile(a)
	return nil
}

func (p PatientProfile) MarshalJSON() ([]byte, error) {
	a := patientProfileAlias(p)
	if a.Allergies == nil {
		a.Allergies = StringList{}
	}
	if a.Medications == nil {
		a.Medications = StringList{}
	}
	return marshalWithExtra(a, p.Extra)
}

// Overlay copies every non-empty field of src onto p. ID and CreatedAt of p
// are kept when already set.
func (p *PatientProfile) Overlay(src PatientProfile) {
	setIf := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	if p.ID.IsZero() {
		p.ID = src.ID
	}
	if p.CreatedAt == "" {
		p.CreatedAt = src.CreatedAt
	}
	setIf(&p.LinkedUserID, src.LinkedUserID)
	setIf(&p.Name, src.Name)
	setIf(&p.CPF, src.CPF)
	setIf(&p.Email, src.Email)
	setIf(&p.Phone, src.Phone)
	setIf(&p.DateOfBirth, src.DateOfBirth)
	setIf(&p.Gender, src.Gender)
	setIf(&p.Address, src.Address)
	setIf(&p.HealthInsurance, src.HealthInsurance)
	setIf(&p.BloodType, src.BloodType)
	setIf(&p.MedicalHistory, src.MedicalHistory)
	setIf(&p.Cid10Code, src.Cid10Code)
	setIf(&p.Cid10Description, src.Cid10Description)
	setIf(&p.UpdatedAt, src.UpdatedAt)
	if len(src.Allergies) > 0 {
		p.Allergies = src.Allergies
	}
	if len(src.Medications) > 0 {
		p.Medications = src.Medications
	}
	for k, v := range src.Extra {
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage)
		}
		p.Extra[k] = v
	}
}

// Appointment is one entry in an appointments document.
type Appointment struct {
	ID          RecordID `json:"id"`
	PatientID   RecordID `json:"patientId"`
	PatientName string   `json:"patientName,omitempty"`
	DoctorID    string   `json:"doctorId,omitempty"`
	Date        string   `json:"date"`
	Time        string   `json:"time"`
	Reason      string   `json:"reason,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Status      string   `json:"status"`
	RequestedBy string   `json:"requestedBy,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

type appointmentAlias Appointment

func (a *Appointment) UnmarshalJSON(data []byte) error {
	var al appointmentAlias
	extra, err := decodeLenient(data, &al)
	if err != nil {
		return err
	}
	al.Extra = extra
	*a = Appointment(al)
	return nil
}

func (a Appointment) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(appointmentAlias(a), a.Extra)
}

// AppointmentStatusRequested marks appointments created by patients.
const AppointmentStatusRequested = "requested"

// AppointmentRequest is the body of POST /patient/appointments/request.
type AppointmentRequest struct {
	Date   string `json:"date"`
	Time   string `json:"time"`
	Reason string `json:"reason"`
	Notes  string `json:"notes"`
}

// DoctorSummary is the public view of the doctor an appointment went to.
type DoctorSummary struct {
	ID    uuid.UUID `json:"id"`
	Name  string    `json:"name"`
	Email string    `json:"email"`
}

// patientRef reads only the patientId of an opaque record.
type patientRef struct {
	PatientID RecordID `json:"patientId"`
}
