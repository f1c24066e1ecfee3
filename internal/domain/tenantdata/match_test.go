package tenantdata

import (
	"testing"
)

func TestMatchPatient_Precedence(t *testing.T) {
	profiles := []PatientProfile{
		{ID: NewRecordID("a"), Email: "joao@x.com", CPF: "52998224725"},
		{ID: NewRecordID("u-1")},
		{ID: NewRecordID("c"), LinkedUserID: "u-1"},
	}

	tests := []struct {
		name string
		subj Subject
		want int
	}{
		{"linkedUserId beats id", Subject{UserID: "u-1"}, 2},
		{"id match", Subject{UserID: "a"}, 0},
		{"email case-insensitive", Subject{Email: " JOAO@X.COM "}, 0},
		{"cpf digits", Subject{CPF: "529.982.247-25"}, 0},
		{"no match", Subject{UserID: "zzz", Email: "nobody@x.com"}, -1},
		{"empty subject never matches", Subject{}, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MatchPatient(profiles, tt.subj); got != tt.want {
				t.Errorf("MatchPatient() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestMatchPatient_EmptyFieldsDoNotMatch(t *testing.T) {
	profiles := []PatientProfile{{ID: NewRecordID("x")}}
	if got := MatchPatient(profiles, Subject{UserID: "u", Email: "", CPF: ""}); got != -1 {
		t.Errorf("profile without email/cpf must not match an empty subject field, got %d", got)
	}
}

func TestDigitsOnly(t *testing.T) {
	if got := DigitsOnly("529.982.247-25"); got != "52998224725" {
		t.Errorf("DigitsOnly() = %q", got)
	}
	if got := DigitsOnly("abc"); got != "" {
		t.Errorf("DigitsOnly() = %q, want empty", got)
	}
}
