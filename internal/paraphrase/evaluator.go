package paraphrase

import (
	"context"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/content"
)

// Outcome of evaluating one reply.
type Outcome int

const (
	// OutcomeEmpty means the reply was blank; the prompt is repeated
	// without a verdict.
	OutcomeEmpty Outcome = iota
	OutcomePass
	OutcomeFail
)

// Judgment is the structured answer expected from the language model.
type Judgment struct {
	PreservesMeaning bool   `json:"preserves_meaning"`
	ExcludesStopword bool   `json:"excludes_stopword"`
	UsedSynonym      bool   `json:"used_synonym"`
	DetectedStopword string `json:"detected_stopword"`
}

// LanguageModel judges a free-text rewrite against the stop-word rubric.
type LanguageModel interface {
	Judge(ctx context.Context, ex content.ParaphraseExercise, reply string) (Judgment, error)
}

// Evaluator applies the deterministic scoring rules, delegating the
// semantic check to the language model and absorbing its unavailability
// into a token-presence fallback. Evaluate never fails.
type Evaluator struct {
	llm LanguageModel
}

func NewEvaluator(llm LanguageModel) *Evaluator {
	return &Evaluator{llm: llm}
}

func (e *Evaluator) Evaluate(ctx context.Context, ex content.ParaphraseExercise, reply string) Outcome {
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return OutcomeEmpty
	}

	sameAsOriginal := equalFoldTrimmed(reply, ex.Sentence)

	// When the marked stop-word does not actually occur in the original,
	// the only correct reply is the original verbatim.
	if !containsPhrase(ex.Sentence, ex.Stopword) {
		if sameAsOriginal {
			return OutcomePass
		}
		return OutcomeFail
	}

	if containsPhrase(reply, ex.Stopword) {
		return OutcomeFail
	}
	if sameAsOriginal {
		return OutcomeFail
	}

	if e.llm != nil {
		j, err := e.llm.Judge(ctx, ex, reply)
		if err == nil {
			if j.UsedSynonym {
				j.ExcludesStopword = false
			}
			if j.PreservesMeaning && j.ExcludesStopword {
				return OutcomePass
			}
			return OutcomeFail
		}
		log.Warn().Err(err).Str("stopword", ex.Stopword).Msg("Language model unavailable, falling back to token check")
	}

	// Fallback: the stop-word is already known to be absent from the reply.
	return OutcomePass
}

func equalFoldTrimmed(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// tokens splits text into lowercased runs of letters and digits, so that
// punctuation never hides or fabricates a stop-word match.
func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// containsPhrase reports whether the stop-word (possibly multi-word)
// occurs in the text as a run of whole tokens. A substring of a larger
// word never matches.
func containsPhrase(text, phrase string) bool {
	want := tokens(phrase)
	if len(want) == 0 {
		return false
	}
	have := tokens(text)
	for i := 0; i+len(want) <= len(have); i++ {
		match := true
		for j := range want {
			if have[i+j] != want[j] {
				match = false
				break
			}
		}
		if match {
			return true
		}
	}
	return false
}
