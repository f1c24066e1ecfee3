package documents

import (
	"context"
	"fmt"
	"strings"

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

const docCols = `id, user_id, prescription_id, patient_id, document_type, status, provider_name,
	provider_document_id, provider_token, provider_payload, raw_response, error_message,
	created_at, updated_at`

func scanDocument(row pgx.Row) (*MevoDocument, error) {
	var d MevoDocument
	var payload, raw []byte
	err := row.Scan(&d.ID, &d.UserID, &d.PrescriptionID, &d.PatientID, &d.DocumentType, &d.Status, &d.ProviderName,
		&d.ProviderDocumentID, &d.ProviderToken, &payload, &raw, &d.ErrorMessage,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.ProviderPayload = payload
	d.RawResponse = raw
	return &d, nil
}

func (r *repoPG) Upsert(ctx context.Context, d *MevoDocument) error {
	payload := []byte(d.ProviderPayload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	var raw []byte
	if len(d.RawResponse) > 0 {
		raw = d.RawResponse
	}

	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO mevo_documents (user_id, prescription_id, patient_id, document_type, status, provider_name,
			provider_document_id, provider_token, provider_payload, raw_response, error_message)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id, prescription_id, document_type) DO UPDATE SET
			patient_id           = EXCLUDED.patient_id,
			status               = EXCLUDED.status,
			provider_name        = EXCLUDED.provider_name,
			provider_document_id = EXCLUDED.provider_document_id,
			provider_token       = EXCLUDED.provider_token,
			provider_payload     = EXCLUDED.provider_payload,
			raw_response         = EXCLUDED.raw_response,
			error_message        = EXCLUDED.error_message,
			updated_at           = NOW()
		RETURNING id, created_at, updated_at`,
		d.UserID, d.PrescriptionID, d.PatientID, d.DocumentType, d.Status, d.ProviderName,
		d.ProviderDocumentID, d.ProviderToken, payload, raw, d.ErrorMessage,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert mevo document: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, userID uuid.UUID, f Filter) ([]*MevoDocument, error) {
	where := []string{"user_id = $1"}
	args := []interface{}{userID}
	idx := 2

	if f.PrescriptionID != "" {
		where = append(where, fmt.Sprintf("prescription_id = $%d", idx))
		args = append(args, f.PrescriptionID)
		idx++
	}
	if f.DocumentType != "" {
		where = append(where, fmt.Sprintf("document_type = $%d", idx))
		args = append(args, f.DocumentType)
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+docCols+` FROM mevo_documents WHERE `+strings.Join(where, " AND ")+` ORDER BY updated_at DESC`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list mevo documents: %w", err)
	}
	defer rows.Close()

	var out []*MevoDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
