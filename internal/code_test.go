package internal

import (
	"strconv"
	"testing"
)

func TestNewVerificationCode(t *testing.T) {
	for i := 0; i < 1000; i++ {
		code, err := NewVerificationCode()
		if err != nil {
			t.Fatalf("NewVerificationCode: %v", err)
		}
		if len(code) != 6 {
			t.Fatalf("expected six characters, got %q", code)
		}
		n, err := strconv.Atoi(code)
		if err != nil {
			t.Fatalf("code %q is not numeric", code)
		}
		if n < 100000 || n > 999999 {
			t.Fatalf("code %d outside [100000, 999999]", n)
		}
	}
}
