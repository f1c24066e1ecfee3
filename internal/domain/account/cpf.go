package account

import (
	"github.com/clinic/clinic/internal/domain/tenantdata"
)

// ValidCPF checks the two verification digits of a Brazilian CPF. Formatting
// characters are ignored; numbers made of one repeated digit are rejected.
func ValidCPF(cpf string) bool {
	d := tenantdata.DigitsOnly(cpf)
	if len(d) != 11 {
		return false
	}

	same := true
	for i := 1; i < 11; i++ {
		if d[i] != d[0] {
			same = false
			break
		}
	}
	if same {
		return false
	}

	return cpfCheckDigit(d[:9], 10) == int(d[9]-'0') &&
		cpfCheckDigit(d[:10], 11) == int(d[10]-'0')
}

func cpfCheckDigit(digits string, weight int) int {
	sum := 0
	for i := 0; i < len(digits); i++ {
		sum += int(digits[i]-'0') * (weight - i)
	}
	r := (sum * 10) % 11
	if r == 10 {
		return 0
	}
	return r
}
