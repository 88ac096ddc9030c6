package paraphrase

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"github.com/vkotov/talentflow/config"
	"github.com/vkotov/talentflow/internal/content"
)

// GeminiJudge asks Gemini whether a rewrite preserves the meaning of the
// original while excluding the stop-word. Without an API key the judge is
// non-functional and every call errors, which the Evaluator absorbs.
type GeminiJudge struct {
	client *genai.GenerativeModel
}

func NewGeminiJudge(cfg *config.Config) (*GeminiJudge, error) {
	if cfg.GeminiApiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set. Paraphrase judging will use the token fallback.")
		return &GeminiJudge{client: nil}, nil
	}
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiApiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	model := client.GenerativeModel("gemini-1.5-flash")
	return &GeminiJudge{client: model}, nil
}

func (g *GeminiJudge) Judge(ctx context.Context, ex content.ParaphraseExercise, reply string) (Judgment, error) {
	if g.client == nil {
		return Judgment{}, fmt.Errorf("gemini client not initialized")
	}

	prompt := buildJudgePrompt(ex, reply)
	resp, err := g.client.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		log.Error().Err(err).Msg("Gemini API error during paraphrase judging")
		return Judgment{}, fmt.Errorf("gemini request failed: %w", err)
	}

	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return Judgment{}, fmt.Errorf("gemini returned no content")
	}

	full := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			full += string(txt)
		}
	}
	if full == "" {
		return Judgment{}, fmt.Errorf("gemini returned no text content")
	}

	return parseJudgment(full)
}

// buildJudgePrompt assembles the structured rubric prompt: the original
// sentence, the stop-word with its description and recommended
// replacement, exemplar pass/fail cases, and the strict JSON contract.
func buildJudgePrompt(ex content.ParaphraseExercise, reply string) string {
	var b strings.Builder
	b.WriteString("You are an expert editor of Russian business correspondence.\n")
	b.WriteString("The user was asked to rewrite a sentence so that it no longer contains a specific stop-word while keeping the meaning.\n\n")
	b.WriteString(fmt.Sprintf("Original sentence:\n---\n%s\n---\n\n", ex.Sentence))
	b.WriteString(fmt.Sprintf("Stop-word: %q\n", ex.Stopword))
	if ex.Description != "" {
		b.WriteString(fmt.Sprintf("Why it is a stop-word: %s\n", ex.Description))
	}
	if ex.Replacement != "" {
		b.WriteString(fmt.Sprintf("Recommended replacement approach: %s\n", ex.Replacement))
	}
	if len(ex.Examples) > 0 {
		b.WriteString("\nExamples:\n")
		for _, c := range ex.Examples {
			verdict := "FAIL"
			if c.Pass {
				verdict = "PASS"
			}
			b.WriteString(fmt.Sprintf("- %q -> %s\n", c.Reply, verdict))
		}
	}
	b.WriteString(fmt.Sprintf("\nUser's rewrite:\n---\n%s\n---\n\n", reply))
	b.WriteString("Answer with a single JSON object and nothing else, exactly this shape:\n")
	b.WriteString(`{"preserves_meaning": bool, "excludes_stopword": bool, "used_synonym": bool, "detected_stopword": "word or empty"}`)
	b.WriteString("\n\"used_synonym\" must be true when the rewrite merely swaps the stop-word for a synonym with the same problematic tone.\n")
	return b.String()
}

// parseJudgment tolerates markdown fences and prose around the JSON
// object; anything without a parseable object is an error.
func parseJudgment(raw string) (Judgment, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end < start {
		return Judgment{}, fmt.Errorf("no JSON object in model reply: %s", raw)
	}
	var j Judgment
	if err := json.Unmarshal([]byte(raw[start:end+1]), &j); err != nil {
		return Judgment{}, fmt.Errorf("unparseable model reply: %w", err)
	}
	return j, nil
}
