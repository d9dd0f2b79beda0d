package orchestrator

import "github.com/kbukum/scribe/backend"

// Tab is the view the user has selected.
type Tab string

const (
	TabTranscription Tab = "transcription"
	TabTranslation   Tab = "translation"
)

// Valid reports whether t names a known tab.
func (t Tab) Valid() bool { return t == TabTranscription || t == TabTranslation }

// TranscriptState holds the cumulative finalized text and the in-flight
// text of the current chunk. A CHUNK replaces Finalized wholesale and
// clears Partial.
type TranscriptState struct {
	Finalized string
	Partial   string
}

// Displayed is the transcript as shown to the user.
func (t TranscriptState) Displayed() string { return t.Finalized + t.Partial }

// TranslationState holds the latest cumulative translation. Text is nil
// until the first update of a run.
type TranslationState struct {
	Text   *string
	Output *backend.TranslationOutput
}

// TranscriptionFlags describe the transcription pipeline as seen by the
// session.
type TranscriptionFlags struct {
	Loading      bool `json:"loading"`
	Transcribing bool `json:"transcribing"`
	Failed       bool `json:"failed"`
}

// TranslationFlags describe the translation pipeline as seen by the
// session.
type TranslationFlags struct {
	Loading     bool `json:"loading"`
	Translating bool `json:"translating"`
	Failed      bool `json:"failed"`
}

// Snapshot is the JSON view of a session.
type Snapshot struct {
	SessionID     string            `json:"session_id"`
	Tab           Tab               `json:"tab"`
	Active        bool              `json:"active"`
	Transcription TranscriptionView `json:"transcription"`
	Translation   TranslationView   `json:"translation"`
}

// TranscriptionView is the transcription part of a Snapshot.
type TranscriptionView struct {
	TranscriptionFlags
	RunID     string             `json:"run_id,omitempty"`
	Text      string             `json:"text"`
	Finalized string             `json:"finalized"`
	Partial   string             `json:"partial"`
	Progress  int                `json:"progress"`
	Files     map[string]float64 `json:"files,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// TranslationView is the translation part of a Snapshot.
type TranslationView struct {
	TranslationFlags
	RunID          string                     `json:"run_id,omitempty"`
	SourceLanguage string                     `json:"source_language"`
	TargetLanguage string                     `json:"target_language"`
	Text           string                     `json:"text"`
	Output         *backend.TranslationOutput `json:"output,omitempty"`
	Progress       int                        `json:"progress"`
	Files          map[string]float64         `json:"files,omitempty"`
	Error          string                     `json:"error,omitempty"`
}
