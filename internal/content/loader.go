package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Loader materializes immutable content by identifier.
type Loader interface {
	LoadText(id string) string
	LoadQuiz(id string) (*Quiz, error)
	LoadParaphrase(id string) (*ParaphraseSet, error)
	LoadSurvey(id string) (*Survey, error)
	AssetPath(name string) string
}

type fsLoader struct {
	dir string
}

// NewLoader returns a Loader over a flat directory of .txt and .json files.
func NewLoader(dir string) Loader {
	return &fsLoader{dir: dir}
}

// LoadText never fails from the caller's point of view: missing or corrupt
// prose degrades to a placeholder.
func (l *fsLoader) LoadText(id string) string {
	data, err := os.ReadFile(filepath.Join(l.dir, id+".txt"))
	if err != nil {
		log.Error().Err(err).Str("content_id", id).Msg("Failed to read text content")
		return Unavailable
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		log.Warn().Str("content_id", id).Msg("Text content is empty")
		return Unavailable
	}
	return text
}

// AssetPath resolves a known binary asset filename against the content
// directory. Existence is checked at send time by the transport.
func (l *fsLoader) AssetPath(name string) string {
	return filepath.Join(l.dir, name)
}

// rawQuestion tolerates the key variants found in the quiz files.
type rawQuestion struct {
	Prompt        string          `json:"prompt"`
	Question      string          `json:"question"`
	Options       []string        `json:"options"`
	Correct       json.RawMessage `json:"correct"`
	CorrectAnswer json.RawMessage `json:"correct_answer"`
	CorrectIndex  json.RawMessage `json:"correct_index"`
}

type rawQuizObject struct {
	Questions        []rawQuestion `json:"questions"`
	TimeLimit        *int          `json:"time_limit"`
	TimeLimitSeconds *int          `json:"time_limit_seconds"`
}

// LoadQuiz reads and normalizes one of the two on-disk quiz shapes: a bare
// array of questions, or an object with a "questions" key and an optional
// time limit. An error means the caller treats the test as unavailable.
func (l *fsLoader) LoadQuiz(id string) (*Quiz, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, id+".json"))
	if err != nil {
		log.Error().Err(err).Str("quiz_id", id).Msg("Failed to read quiz file")
		return nil, fmt.Errorf("quiz %q unavailable: %w", id, err)
	}
	return parseQuiz(id, data)
}

func parseQuiz(id string, data []byte) (*Quiz, error) {
	var raws []rawQuestion
	var limit time.Duration

	trimmed := strings.TrimSpace(string(data))
	switch {
	case strings.HasPrefix(trimmed, "["):
		if err := json.Unmarshal(data, &raws); err != nil {
			return nil, fmt.Errorf("quiz %q: malformed question list: %w", id, err)
		}
	case strings.HasPrefix(trimmed, "{"):
		var obj rawQuizObject
		if err := json.Unmarshal(data, &obj); err != nil {
			return nil, fmt.Errorf("quiz %q: malformed quiz object: %w", id, err)
		}
		raws = obj.Questions
		if obj.TimeLimit != nil {
			limit = time.Duration(*obj.TimeLimit) * time.Second
		} else if obj.TimeLimitSeconds != nil {
			limit = time.Duration(*obj.TimeLimitSeconds) * time.Second
		}
	default:
		return nil, fmt.Errorf("quiz %q: unrecognized shape", id)
	}

	if len(raws) == 0 {
		return nil, fmt.Errorf("quiz %q has no questions", id)
	}

	quiz := &Quiz{TimeLimit: limit}
	for i, rq := range raws {
		prompt := rq.Prompt
		if prompt == "" {
			prompt = rq.Question
		}
		if prompt == "" || len(rq.Options) < 2 {
			return nil, fmt.Errorf("quiz %q: question %d lacks a prompt or options", id, i+1)
		}
		idx, err := normalizeCorrect(rq)
		if err != nil {
			return nil, fmt.Errorf("quiz %q: question %d: %w", id, i+1, err)
		}
		if idx < 0 || idx >= len(rq.Options) {
			return nil, fmt.Errorf("quiz %q: question %d: correct index %d out of range", id, i+1, idx)
		}
		quiz.Questions = append(quiz.Questions, Question{
			Prompt:       prompt,
			Options:      rq.Options,
			CorrectIndex: idx,
		})
	}
	return quiz, nil
}

// normalizeCorrect maps the three correct-answer encodings to a 0-based
// index. "correct_index" is taken as 0-based; "correct"/"correct_answer"
// integers are 1-based except a literal 0; strings are matched against the
// options.
func normalizeCorrect(rq rawQuestion) (int, error) {
	if len(rq.CorrectIndex) > 0 {
		var n int
		if err := json.Unmarshal(rq.CorrectIndex, &n); err != nil {
			return 0, fmt.Errorf("correct_index must be an integer: %w", err)
		}
		return n, nil
	}

	raw := rq.CorrectAnswer
	if len(raw) == 0 {
		raw = rq.Correct
	}
	if len(raw) == 0 {
		return 0, fmt.Errorf("no correct answer given")
	}

	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		if n == 0 {
			return 0, nil
		}
		return n - 1, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("correct answer is neither integer nor string")
	}
	for i, opt := range rq.Options {
		if strings.EqualFold(strings.TrimSpace(opt), strings.TrimSpace(s)) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("correct answer %q does not match any option", s)
}

type rawParaphraseSet struct {
	Exercises        []ParaphraseExercise `json:"exercises"`
	Questions        []ParaphraseExercise `json:"questions"`
	TimeLimit        *int                 `json:"time_limit"`
	TimeLimitSeconds *int                 `json:"time_limit_seconds"`
}

// LoadParaphrase reads the stop-word exercise list for the rewrite test.
func (l *fsLoader) LoadParaphrase(id string) (*ParaphraseSet, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, id+".json"))
	if err != nil {
		log.Error().Err(err).Str("content_id", id).Msg("Failed to read paraphrase exercises")
		return nil, fmt.Errorf("paraphrase set %q unavailable: %w", id, err)
	}

	var set rawParaphraseSet
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &set.Exercises); err != nil {
			return nil, fmt.Errorf("paraphrase set %q: malformed list: %w", id, err)
		}
	} else {
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, fmt.Errorf("paraphrase set %q: malformed object: %w", id, err)
		}
		if len(set.Exercises) == 0 {
			set.Exercises = set.Questions
		}
	}

	if len(set.Exercises) == 0 {
		return nil, fmt.Errorf("paraphrase set %q has no exercises", id)
	}
	for i, ex := range set.Exercises {
		if ex.Sentence == "" {
			return nil, fmt.Errorf("paraphrase set %q: exercise %d has no sentence", id, i+1)
		}
	}

	out := &ParaphraseSet{Exercises: set.Exercises}
	if set.TimeLimit != nil {
		out.TimeLimit = time.Duration(*set.TimeLimit) * time.Second
	} else if set.TimeLimitSeconds != nil {
		out.TimeLimit = time.Duration(*set.TimeLimitSeconds) * time.Second
	}
	return out, nil
}

// LoadSurvey reads the preparation-materials survey definition.
func (l *fsLoader) LoadSurvey(id string) (*Survey, error) {
	data, err := os.ReadFile(filepath.Join(l.dir, id+".json"))
	if err != nil {
		log.Error().Err(err).Str("content_id", id).Msg("Failed to read survey file")
		return nil, fmt.Errorf("survey %q unavailable: %w", id, err)
	}
	var s Survey
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("survey %q: malformed: %w", id, err)
	}
	if len(s.Options) == 0 {
		return nil, fmt.Errorf("survey %q has no options", id)
	}
	return &s, nil
}
