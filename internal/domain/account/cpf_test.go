package account

import "testing"

func TestValidCPF(t *testing.T) {
	tests := []struct {
		cpf  string
		want bool
	}{
		{"529.982.247-25", true},
		{"52998224725", true},
		{"111.111.111-11", false},
		{"000.000.000-00", false},
		{"529.982.247-24", false},
		{"529.982.247-2", false},
		{"", false},
		{"abc.def.ghi-jk", false},
	}

	for _, tt := range tests {
		if got := ValidCPF(tt.cpf); got != tt.want {
			t.Errorf("ValidCPF(%q) = %v, want %v", tt.cpf, got, tt.want)
		}
	}
}
