package common

import (
	"testing"
)

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"user@example.com", true},
		{"test.user+tag@domain.co.uk", true},
		{"", false},
		{"invalid", false},
		{"@domain.com", false},
		{"user@", false},
		{"user @domain.com", false},
	}

	for _, tt := range tests {
		result := ValidateEmail(tt.email)
		if result != tt.valid {
			t.Errorf("ValidateEmail(%q) = %v, want %v", tt.email, result, tt.valid)
		}
	}
}

func TestValidateMonth(t *testing.T) {
	tests := []struct {
		input string
		valid bool
	}{
		{"2026-01", true},
		{"2026-12", true},
		{"2026-13", false},
		{"2026-00", false},
		{"2026-1", false},
		{"26-01", false},
		{"", false},
	}

	for _, tt := range tests {
		result := ValidateMonth(tt.input)
		if result != tt.valid {
			t.Errorf("ValidateMonth(%q) = %v, want %v", tt.input, result, tt.valid)
		}
	}
}

func TestValidateRequired(t *testing.T) {
	if err := ValidateRequired("name", "Maria"); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	err := ValidateRequired("name", "   ")
	if err == nil {
		t.Fatal("expected error for blank value")
	}
	if err.Field != "name" || err.Message != "name is required" {
		t.Errorf("unexpected error %+v", err)
	}
}

func TestValidateEnum(t *testing.T) {
	allowed := []string{"new", "won"}
	if err := ValidateEnum("status", "won", allowed); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
	err := ValidateEnum("status", "lost", allowed)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Message != "status must be one of: new, won" {
		t.Errorf("unexpected message %q", err.Message)
	}
}

func TestValidationError(t *testing.T) {
	result := NewValidationResult(1)

	// Initially valid, no errors
	if !result.Valid || len(result.Errors) != 0 {
		t.Error("New result should be valid with no errors")
	}

	result.AddError("email", "Invalid email format")

	if result.Valid {
		t.Error("Result should be invalid after adding error")
	}

	if len(result.Errors) != 1 {
		t.Errorf("Expected 1 error, got %d", len(result.Errors))
	}

	if result.Errors[0].Field != "email" {
		t.Errorf("Expected field 'email', got %q", result.Errors[0].Field)
	}

	result.Add(ValidateRequired("name", ""))
	result.Add(nil)

	if len(result.Errors) != 2 {
		t.Errorf("Expected 2 errors, got %d", len(result.Errors))
	}

	json := result.ToJSON()
	if json == "" {
		t.Error("ToJSON should return non-empty string")
	}
}
