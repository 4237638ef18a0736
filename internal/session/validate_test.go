package session

import "testing"

func TestValidateName(t *testing.T) {
	valid := []string{"main", "work", "a", "session_1", "my-session"}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) error = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "UPPER", "has space", "dot.name", "über", "x/y"}
	for _, name := range invalid {
		if err := ValidateName(name); err == nil {
			t.Errorf("ValidateName(%q) = nil, want error", name)
		}
	}
}
