package tenantdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinic/clinic/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
	tx   *db.TxRunner
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool, tx: db.NewTxRunner(pool)}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

func (r *repoPG) Get(ctx context.Context, ownerID uuid.UUID, t DataType) (*Document, error) {
	doc := &Document{OwnerID: ownerID, Type: t}
	var raw []byte
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT payload, updated_at FROM user_data WHERE owner_id = $1 AND data_type = $2`,
		ownerID, string(t),
	).Scan(&raw, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		doc.Payload = []json.RawMessage{}
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %s document: %w", t, err)
	}
	if doc.Payload, err = decodePayload(raw); err != nil {
		return nil, fmt.Errorf("decode %s document: %w", t, err)
	}
	return doc, nil
}

func (r *repoPG) GetAll(ctx context.Context, ownerID uuid.UUID) (*Bundle, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT data_type, payload FROM user_data WHERE owner_id = $1`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	defer rows.Close()

	b := NewBundle()
	for rows.Next() {
		var (
			typ string
			raw []byte
		)
		if err := rows.Scan(&typ, &raw); err != nil {
			return nil, err
		}
		t, ok := ParseDataType(typ)
		if !ok {
			continue
		}
		payload, err := decodePayload(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s document: %w", t, err)
		}
		b.Set(t, payload)
	}
	return b, rows.Err()
}

func (r *repoPG) Put(ctx context.Context, ownerID uuid.UUID, t DataType, payload []json.RawMessage) (*Document, error) {
	if payload == nil {
		payload = []json.RawMessage{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s document: %w", t, err)
	}

	doc := &Document{OwnerID: ownerID, Type: t, Payload: payload}
	err = r.conn(ctx).QueryRow(ctx, `
		INSERT INTO user_data (owner_id, data_type, payload, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (owner_id, data_type)
		DO UPDATE SET payload = EXCLUDED.payload, updated_at = NOW()
		RETURNING updated_at`,
		ownerID, string(t), raw,
	).Scan(&doc.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("save %s document: %w", t, err)
	}
	return doc, nil
}

func (r *repoPG) Mutate(ctx context.Context, ownerID uuid.UUID, t DataType, fn MutateFunc) (*Document, error) {
	var doc *Document
	err := r.tx.InTx(ctx, func(ctx context.Context) error {
		q := r.conn(ctx)
		if _, err := q.Exec(ctx, `
			INSERT INTO user_data (owner_id, data_type) VALUES ($1, $2)
			ON CONFLICT (owner_id, data_type) DO NOTHING`,
			ownerID, string(t),
		); err != nil {
			return fmt.Errorf("ensure %s document: %w", t, err)
		}

		var raw []byte
		if err := q.QueryRow(ctx,
			`SELECT payload FROM user_data WHERE owner_id = $1 AND data_type = $2 FOR UPDATE`,
			ownerID, string(t),
		).Scan(&raw); err != nil {
			return fmt.Errorf("lock %s document: %w", t, err)
		}

		current, err := decodePayload(raw)
		if err != nil {
			return fmt.Errorf("decode %s document: %w", t, err)
		}
		next, err := fn(current)
		if err != nil {
			return err
		}

		doc, err = r.Put(ctx, ownerID, t, next)
		return err
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func decodePayload(raw []byte) ([]json.RawMessage, error) {
	payload := []json.RawMessage{}
	if len(raw) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		payload = []json.RawMessage{}
	}
	return payload, nil
}

