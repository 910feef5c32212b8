// Package provider implements the ordered fallback chains used for every
// transcription and translation call. Providers are attempted strictly in
// registration order; the first success short-circuits the rest. Callers
// depend only on the operation result, never on which provider served it.
package provider

import (
	"context"
	"fmt"
	"log"

	"lingocast/pkg/interfaces"
)

// attempt runs call against each provider in order and returns the first
// success. Each failure is logged with its cause before the next provider
// is tried. The terminal error wraps the last provider's failure.
func attempt[P any, R any](ctx context.Context, operation string, providers []P, name func(P) string, call func(P) (R, error)) (R, error) {
	var zero R
	if len(providers) == 0 {
		return zero, ErrNoProviders
	}

	var lastErr error
	for _, p := range providers {
		result, err := call(p)
		if err == nil {
			return result, nil
		}
		lastErr = err
		log.Printf("provider: %s provider %s failed: %v", operation, name(p), err)

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("%w: %s: %v", ErrAllProvidersFailed, operation, lastErr)
}

// TranscriptionChain tries transcription providers in order. Exhausting
// the chain propagates the terminal failure: there is no safe synthetic
// text to substitute for a transcript.
type TranscriptionChain struct {
	providers []interfaces.Transcriber
}

// NewTranscriptionChain builds a chain over the given ordered providers.
// A single-element chain is the static-configuration case.
func NewTranscriptionChain(providers ...interfaces.Transcriber) *TranscriptionChain {
	return &TranscriptionChain{providers: providers}
}

// Transcribe returns the first provider's successful text, or the terminal
// chain error once every provider has failed.
func (c *TranscriptionChain) Transcribe(ctx context.Context, audio []byte, languageCode string) (string, error) {
	return attempt(ctx, "transcription", c.providers,
		func(p interfaces.Transcriber) string { return p.Name() },
		func(p interfaces.Transcriber) (string, error) {
			return p.Transcribe(ctx, audio, languageCode)
		})
}

// TranslationChain tries translation providers in order. Exhausting the
// chain degrades to the original untranslated text so listeners still
// receive something.
type TranslationChain struct {
	providers []interfaces.Translator
}

// NewTranslationChain builds a chain over the given ordered providers.
func NewTranslationChain(providers ...interfaces.Translator) *TranslationChain {
	return &TranslationChain{providers: providers}
}

// Translate returns the first provider's successful translation. When the
// whole chain fails the original text is returned verbatim with a nil
// error; the degradation is logged, not propagated.
func (c *TranslationChain) Translate(ctx context.Context, text, sourceLang, targetLang string) (string, error) {
	result, err := attempt(ctx, "translation", c.providers,
		func(p interfaces.Translator) string { return p.Name() },
		func(p interfaces.Translator) (string, error) {
			return p.Translate(ctx, text, sourceLang, targetLang)
		})
	if err != nil {
		log.Printf("provider: all translation providers failed for %s->%s, delivering original text: %v",
			sourceLang, targetLang, err)
		return text, nil
	}
	return result, nil
}
