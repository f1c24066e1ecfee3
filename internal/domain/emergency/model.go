package emergency

import (
	"time"

	"github.com/google/uuid"
)

const (
	StatusOpen     = "open"
	StatusResolved = "resolved"

	// VideoProvider marks rooms minted on the public Jitsi deployment.
	VideoProvider = "jitsi"
)

// Request maps to the emergency_requests table. A patient has at most one
// open request; it is claimed by staff (attending and video fields set) and
// finally resolved. Resolved requests are never reopened.
type Request struct {
	ID                   uuid.UUID  `db:"id" json:"id"`
	PatientID            uuid.UUID  `db:"patient_id" json:"patientId"`
	DoctorID             *uuid.UUID `db:"doctor_id" json:"doctorId"`
	PatientName          string     `db:"patient_name" json:"patientName"`
	PatientEmail         string     `db:"patient_email" json:"patientEmail"`
	PatientPhone         string     `db:"patient_phone" json:"patientPhone"`
	Message              string     `db:"message" json:"message"`
	Status               string     `db:"status" json:"status"`
	AttendingDoctorID    *uuid.UUID `db:"attending_doctor_id" json:"attendingDoctorId"`
	AttendingDoctorName  *string    `db:"attending_doctor_name" json:"attendingDoctorName"`
	AttendingDoctorEmail *string    `db:"attending_doctor_email" json:"attendingDoctorEmail"`
	VideoCallURL         *string    `db:"video_call_url" json:"videoCallUrl"`
	VideoCallProvider    *string    `db:"video_call_provider" json:"videoCallProvider"`
	VideoCallStartedAt   *time.Time `db:"video_call_started_at" json:"videoCallStartedAt"`
	ResolvedBy           *uuid.UUID `db:"resolved_by" json:"resolvedBy"`
	ResolvedAt           *time.Time `db:"resolved_at" json:"resolvedAt"`
	CreatedAt            time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updatedAt"`
}

func (r *Request) IsResolved() bool { return r.Status == StatusResolved }

// Claim holds the fields written when a staff member starts the video call.
type Claim struct {
	DoctorID    uuid.UUID
	DoctorName  string
	DoctorEmail string
	CallURL     string
	Provider    string
	StartedAt   time.Time
}

// HelpRequest is the body of POST /patient/emergency/request.
type HelpRequest struct {
	Message string `json:"message"`
}

// StartVideoRequest is the body of POST /doctor/emergency/:id/start-video.
type StartVideoRequest struct {
	CallURL string `json:"callUrl"`
}
