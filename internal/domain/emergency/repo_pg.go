package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepo(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const requestCols = `e.id, e.patient_id, e.doctor_id, e.patient_name, e.patient_email, e.patient_phone,
	e.message, e.status, e.attending_doctor_id, e.attending_doctor_name, e.attending_doctor_email,
	e.video_call_url, e.video_call_provider, e.video_call_started_at,
	e.resolved_by, e.resolved_at, e.created_at, e.updated_at`

func scanRequest(row pgx.Row) (*Request, error) {
	var r Request
	err := row.Scan(&r.ID, &r.PatientID, &r.DoctorID, &r.PatientName, &r.PatientEmail, &r.PatientPhone,
		&r.Message, &r.Status, &r.AttendingDoctorID, &r.AttendingDoctorName, &r.AttendingDoctorEmail,
		&r.VideoCallURL, &r.VideoCallProvider, &r.VideoCallStartedAt,
		&r.ResolvedBy, &r.ResolvedAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// The partial unique index on (patient_id) WHERE status = 'open' makes the
// conflict target; concurrent requests from one patient converge on one row.
func (r *repoPG) UpsertOpen(ctx context.Context, req *Request) (*Request, error) {
	out, err := scanRequest(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO emergency_requests AS e (patient_id, doctor_id, patient_name, patient_email, patient_phone, message, status)
		VALUES ($1, $2, $3, $4, $5, $6, 'open')
		ON CONFLICT (patient_id) WHERE status = 'open' DO UPDATE SET
			doctor_id     = EXCLUDED.doctor_id,
			patient_name  = EXCLUDED.patient_name,
			patient_email = EXCLUDED.patient_email,
			patient_phone = EXCLUDED.patient_phone,
			message       = EXCLUDED.message,
			updated_at    = NOW()
		RETURNING `+requestCols,
		req.PatientID, req.DoctorID, req.PatientName, req.PatientEmail, req.PatientPhone, req.Message))
	if err != nil {
		return nil, fmt.Errorf("upsert emergency request: %w", err)
	}
	return out, nil
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM emergency_requests e WHERE e.id = $1`, id))
}

func (r *repoPG) LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Request, error) {
	return scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM emergency_requests e
		WHERE e.patient_id = $1
		ORDER BY e.updated_at DESC, e.created_at DESC
		LIMIT 1`, patientID))
}

func (r *repoPG) ListActive(ctx context.Context, since time.Time) ([]*Request, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+requestCols+` FROM emergency_requests e
		JOIN users u ON u.id = e.patient_id
		WHERE e.status = 'open' AND u.last_seen_at >= $1
		ORDER BY e.updated_at DESC`, since)
	if err != nil {
		return nil, fmt.Errorf("list active emergency requests: %w", err)
	}
	defer rows.Close()

	var out []*Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

func (r *repoPG) Claim(ctx context.Context, id uuid.UUID, c Claim) (*Request, error) {
	out, err := scanRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE emergency_requests AS e SET
			attending_doctor_id    = $2,
			attending_doctor_name  = $3,
			attending_doctor_email = $4,
			video_call_url         = $5,
			video_call_provider    = $6,
			video_call_started_at  = $7,
			updated_at             = NOW()
		WHERE e.id = $1 AND e.status = 'open'
		RETURNING `+requestCols,
		id, c.DoctorID, c.DoctorName, c.DoctorEmail, c.CallURL, c.Provider, c.StartedAt))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("claim emergency request: %w", err)
	}
	return out, err
}

func (r *repoPG) Resolve(ctx context.Context, id, by uuid.UUID, at time.Time) (*Request, error) {
	out, err := scanRequest(r.conn(ctx).QueryRow(ctx, `
		UPDATE emergency_requests AS e SET
			status      = 'resolved',
			resolved_by = $2,
			resolved_at = $3,
			updated_at  = NOW()
		WHERE e.id = $1 AND e.status = 'open'
		RETURNING `+requestCols,
		id, by, at))
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("resolve emergency request: %w", err)
	}
	return out, err
}
