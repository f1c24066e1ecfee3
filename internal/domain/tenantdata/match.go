package tenantdata

import (
	"strings"
)

// Subject identifies the patient a profile should belong to. Empty fields
// never match.
type Subject struct {
	UserID string
	Email  string
	CPF    string
}

// Matcher reports whether a profile belongs to a subject.
type Matcher struct {
	Name  string
	Match func(p *PatientProfile, s Subject) bool
}

// PatientMatchers are tried in order; the first matcher that selects any
// profile wins.
var PatientMatchers = []Matcher{
	{Name: "linkedUserId", Match: func(p *PatientProfile, s Subject) bool {
		return s.UserID != "" && p.LinkedUserID == s.UserID
	}},
	{Name: "id", Match: func(p *PatientProfile, s Subject) bool {
		return s.UserID != "" && p.ID.String() == s.UserID
	}},
	{Name: "email", Match: func(p *PatientProfile, s Subject) bool {
		email := strings.TrimSpace(s.Email)
		return email != "" && strings.EqualFold(strings.TrimSpace(p.Email), email)
	}},
	{Name: "cpf", Match: func(p *PatientProfile, s Subject) bool {
		d := DigitsOnly(s.CPF)
		return d != "" && DigitsOnly(p.CPF) == d
	}},
}

// MatchPatient returns the index of the profile that belongs to s, or -1.
func MatchPatient(profiles []PatientProfile, s Subject) int {
	for _, m := range PatientMatchers {
		for i := range profiles {
			if m.Match(&profiles[i], s) {
				return i
			}
		}
	}
	return -1
}

// DigitsOnly strips formatting from CPF and phone numbers.
func DigitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
