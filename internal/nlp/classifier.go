// Package nlp classifies free-text emergency utterances into a fixed
// taxonomy of intents using an ordered synonym table with a fuzzy fallback.
// Classification is pure and deterministic: no I/O, no randomness.
package nlp

import (
	"strings"
	"unicode"
)

// Intent is one category of emergency situation.
type Intent string

const (
	IntentParadaRespiratoria Intent = "parada_respiratoria"
	IntentAtragantamiento    Intent = "atragantamiento"
	IntentHemorragia         Intent = "hemorragia"
	IntentInconsciente       Intent = "inconsciente"
	IntentConvulsiones       Intent = "convulsiones"
	IntentQuemadura          Intent = "quemadura"
)

// FallbackIntent is used when no confident classification is available.
// An unresponsive victim is the safest assumption for an unclear report.
const FallbackIntent = IntentInconsciente

const (
	exactMatchConfidence = 0.95
	emptyInputConfidence = 0.3
	fuzzyBaseConfidence  = 0.6
	fuzzyScaleConfidence = 0.4
	maxFuzzyConfidence   = 0.98
)

// synonymEntry pairs an intent with its ordered trigger phrases.
// Declaration order matters: both the substring pass and fuzzy
// tie-breaking enumerate entries in this exact order.
type synonymEntry struct {
	intent  Intent
	phrases []string
}

var intentSynonyms = []synonymEntry{
	{IntentParadaRespiratoria, []string{
		"no respira", "no está respirando", "no respira nada", "no hay respiración",
		"dejó de respirar", "respiración ausente", "dejó de resp",
	}},
	{IntentAtragantamiento, []string{
		"se atraganta", "atragantamiento", "se ahoga", "ahogo", "obstrucción",
		"no puede respirar por comida",
	}},
	{IntentHemorragia, []string{
		"sangra", "mucha sangre", "hemorragia", "sangrado", "sangra mucho",
	}},
	{IntentInconsciente, []string{
		"no responde", "inconsciente", "desmayado", "no contesta", "se desmayó",
	}},
	{IntentConvulsiones, []string{
		"convulsiona", "convulsiones", "ataque epiléptico", "temblores",
	}},
	{IntentQuemadura, []string{
		"quemadura", "se quemó", "quemado", "quemadura grave",
	}},
}

// Normalize lowercases the text, replaces everything that is not a letter
// or whitespace with a space, collapses whitespace runs and trims.
// Accented Spanish letters survive normalization. Idempotent.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// Classify maps an utterance to an (intent, confidence) pair.
//
// Empty or whitespace-only input yields the fallback intent at a fixed low
// confidence. Otherwise the first synonym phrase (in declaration order) found
// as a substring of the normalized text wins at 0.95. When no phrase matches,
// the best fuzzy similarity across all phrases decides, with confidence
// mapped to 0.6 + 0.4*score, capped at 0.98. Never fails.
func Classify(text string) (Intent, float64) {
	txt := Normalize(text)
	if txt == "" {
		return FallbackIntent, emptyInputConfidence
	}

	// Exact-substring pass: first match in enumeration order wins.
	for _, entry := range intentSynonyms {
		for _, phrase := range entry.phrases {
			if strings.Contains(txt, phrase) {
				return entry.intent, exactMatchConfidence
			}
		}
	}

	// Fuzzy fallback: best score over all (intent, phrase) pairs, ties
	// resolved by first-seen order. Strict > keeps the earliest maximum.
	best := FallbackIntent
	bestScore := 0.0
	for _, entry := range intentSynonyms {
		for _, phrase := range entry.phrases {
			if score := similarityRatio(txt, phrase); score > bestScore {
				bestScore = score
				best = entry.intent
			}
		}
	}

	conf := fuzzyBaseConfidence + fuzzyScaleConfidence*bestScore
	if conf > maxFuzzyConfidence {
		conf = maxFuzzyConfidence
	}
	return best, conf
}
