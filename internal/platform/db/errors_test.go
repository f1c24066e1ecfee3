package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestIsUniqueViolation(t *testing.T) {
	dup := &pgconn.PgError{Code: "23505", ConstraintName: "users_email_lower_idx"}

	if !IsUniqueViolation(dup, "") {
		t.Error("expected any-constraint match")
	}
	if !IsUniqueViolation(fmt.Errorf("insert user: %w", dup), "users_email_lower_idx") {
		t.Error("expected wrapped named match")
	}
	if IsUniqueViolation(dup, "other_idx") {
		t.Error("expected mismatch on different constraint")
	}
	if IsUniqueViolation(&pgconn.PgError{Code: "23503"}, "") {
		t.Error("foreign key violation is not a unique violation")
	}
	if IsUniqueViolation(errors.New("plain"), "") {
		t.Error("plain errors never match")
	}
}
