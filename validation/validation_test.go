package validation

import (
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/kbukum/scribe/errors"
)

func TestValidatorRequired(t *testing.T) {
	v := New().Required("text", "  ")
	if !v.HasErrors() {
		t.Fatal("expected blank value to fail")
	}
	if v.Errors()[0].Field != "text" {
		t.Errorf("unexpected field %q", v.Errors()[0].Field)
	}
	if New().Required("text", "hello").HasErrors() {
		t.Error("expected non-blank value to pass")
	}
}

func TestValidatorRequiredUUID(t *testing.T) {
	tests := []struct {
		name  string
		value string
		msg   string
	}{
		{"empty", "", "is required"},
		{"malformed", "not-a-uuid", "must be a valid UUID"},
		{"nil uuid", uuid.Nil.String(), "must not be empty"},
		{"valid", uuid.NewString(), ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			v := New().RequiredUUID("session_id", tc.value)
			if tc.msg == "" {
				if v.HasErrors() {
					t.Errorf("unexpected errors %v", v.Errors())
				}
				return
			}
			if !v.HasErrors() || v.Errors()[0].Message != tc.msg {
				t.Errorf("expected %q, got %v", tc.msg, v.Errors())
			}
		})
	}
}

func TestValidatorRangeOneOfCustom(t *testing.T) {
	v := New().
		Range("chunk_length_s", 45, 1, 30).
		OneOf("backend", "onnx", []string{"fake", "whisper"}).
		OneOf("format", "", []string{"json"}).
		Custom(false, "stride_length_s", "must be smaller than chunk_length_s")
	if len(v.Errors()) != 3 {
		t.Fatalf("expected 3 errors, got %v", v.Errors())
	}
	err := v.Validate()
	appErr, ok := errors.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %T", err)
	}
	if !strings.Contains(appErr.Message, "chunk_length_s: must be between 1 and 30") {
		t.Errorf("unexpected message %q", appErr.Message)
	}
	if fields, _ := appErr.Details["fields"].([]FieldError); len(fields) != 3 {
		t.Errorf("unexpected details %v", appErr.Details)
	}
}

func TestValidatorValidateNoErrors(t *testing.T) {
	if err := New().Validate(); err != nil {
		t.Errorf("expected nil, got %v", err)
	}
}

func TestValidateUUID(t *testing.T) {
	id := uuid.New()
	got, err := ValidateUUID("session_id", id.String())
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}
	if _, err := ValidateUUID("session_id", "nope"); err == nil {
		t.Error("expected error for malformed uuid")
	}
}

type translateRequest struct {
	TargetLanguage string `json:"target_language" validate:"required,langcode"`
	SourceLanguage string `json:"source_language" validate:"omitempty,langcode"`
	Beams          int    `json:"beams" validate:"gte=0,lte=4"`
	RunID          string `validate:"omitempty,uuid"`
}

func TestStructValidate(t *testing.T) {
	tests := []struct {
		name   string
		req    translateRequest
		fields []string
	}{
		{"valid", translateRequest{TargetLanguage: "fra_Latn"}, nil},
		{"missing target", translateRequest{}, []string{"target_language"}},
		{"placeholder target", translateRequest{TargetLanguage: "Select Language"}, []string{"target_language"}},
		{"bad source", translateRequest{TargetLanguage: "deu_Latn", SourceLanguage: "english"}, []string{"source_language"}},
		{"bounds and uuid", translateRequest{TargetLanguage: "deu_Latn", Beams: 9, RunID: "x"}, []string{"beams", "run_id"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := Validate(tc.req)
			if len(tc.fields) == 0 {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			appErr, ok := errors.AsAppError(err)
			if !ok {
				t.Fatalf("expected AppError, got %v", err)
			}
			for _, f := range tc.fields {
				if !strings.Contains(appErr.Message, f+":") {
					t.Errorf("expected %s in %q", f, appErr.Message)
				}
			}
		})
	}
}

func TestIsLanguageCode(t *testing.T) {
	for code, want := range map[string]bool{
		"eng_Latn":        true,
		"zho_Hans":        true,
		"eng":             false,
		"ENG_latn":        false,
		"Select Language": false,
	} {
		if got := IsLanguageCode(code); got != want {
			t.Errorf("IsLanguageCode(%q) = %v, want %v", code, got, want)
		}
	}
}
