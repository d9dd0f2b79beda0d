// Package validation validates scribe inputs.
//
// Struct tag validation wraps go-playground/validator and reports failures
// as errors.AppError with per-field details. It also registers the
// "langcode" tag for NLLB language codes such as fra_Latn:
//
//	type TranslateRequest struct {
//	    TargetLanguage string `json:"target_language" validate:"required,langcode"`
//	}
//	err := validation.Validate(req)
//
// The fluent Validator collects ad hoc checks:
//
//	v := validation.New()
//	v.RequiredUUID("session_id", id).Range("chunk_length_s", n, 1, 30)
//	err := v.Validate()
package validation
