package interfaces

import "context"

// Transcriber is the single-operation capability of a speech-to-text
// provider. Implementations wrap concrete vendors; callers depend only on
// the returned text, never on which provider served the call.
type Transcriber interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Transcribe converts audio bytes in the given language to text.
	Transcribe(ctx context.Context, audio []byte, languageCode string) (string, error)
}

// Translator is the single-operation capability of a text translation
// provider.
type Translator interface {
	// Name identifies the provider in logs and metrics.
	Name() string

	// Translate converts text from sourceLang to targetLang.
	Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error)
}
