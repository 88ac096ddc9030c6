package content

import "time"

// Text identifiers resolved against the content directory. Stage prose is
// keyed directly by stage id; these name the texts that live outside the
// stage catalog.
const (
	TextWelcomeMessage = "welcome_message"
	TextPastTheTest    = "past_the_test"
)

// Quiz identifiers; each maps to a JSON file in the content directory.
const (
	QuizPrimary       = "primary_test"
	QuizWhereToStart  = "where_to_start_test"
	QuizLogic         = "logic_test"
	QuizInterviewPrep = "interview_prep_test"
	SurveyPreparation = "materials_for_prepare_survey"
)

// Binary assets referenced by known filenames.
const (
	AssetPreparationVideo = "preparation_video.mp4"
	AssetLogicStudyPDF    = "logic_test_guide.pdf"
)

// Placeholder shown to the user when a piece of content cannot be read.
const Unavailable = "Материал временно недоступен."

// Question is the normalized multiple-choice form: CorrectIndex is always a
// 0-based index into Options.
type Question struct {
	Prompt       string
	Options      []string
	CorrectIndex int
}

// Quiz is the normalized on-disk quiz. TimeLimit of zero means the test
// runs without a countdown.
type Quiz struct {
	Questions []Question
	TimeLimit time.Duration
}

// ExemplarCase is a pass/fail example handed to the language model for the
// stop-word rubric.
type ExemplarCase struct {
	Reply string `json:"reply"`
	Pass  bool   `json:"pass"`
}

// ParaphraseExercise is one stop-word rewrite prompt.
type ParaphraseExercise struct {
	Sentence    string         `json:"sentence"`
	Stopword    string         `json:"stopword"`
	Description string         `json:"description"`
	Replacement string         `json:"replacement"`
	Examples    []ExemplarCase `json:"examples"`
}

// ParaphraseSet is the full stop-word exercise list with its deadline.
type ParaphraseSet struct {
	Exercises []ParaphraseExercise
	TimeLimit time.Duration
}

// Survey is a multi-select question shown on the preparation stage.
type Survey struct {
	Prompt  string   `json:"prompt"`
	Options []string `json:"options"`
}
