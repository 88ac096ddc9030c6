package catalog

import "github.com/vkotov/talentflow/internal/content"

// StageID identifies one step of the candidate journey. The ids double as
// callback tokens on the main menu.
type StageID string

const (
	StageAboutCompany      StageID = "about_company"
	StagePrimaryFile       StageID = "primary_file"
	StageWhereToStart      StageID = "where_to_start"
	StageLogicTest         StageID = "logic_test"
	StagePreparation       StageID = "preparation_materials"
	StageTakeTest          StageID = "take_test"
	StageInterviewPrep     StageID = "interview_prep"
	StageScheduleInterview StageID = "schedule_interview"
)

// Test identifiers recorded in the per-user results map.
const (
	TestPrimary       = "primary_test"
	TestWhereToStart  = "where_to_start_test"
	TestLogic         = "logic_test_result"
	TestPractical     = "take_test_result"
	TestInterviewPrep = "interview_prep_test"
)

// Kind distinguishes how a stage is driven.
type Kind int

const (
	KindInfo Kind = iota
	KindQuiz
	KindParaphrase
	KindSurvey
	KindSubmission
	KindTerminal
)

// Stage is one row of the declarative catalog.
type Stage struct {
	ID    StageID
	Label string
	Kind  Kind
	// GateTest gates the transition to the next stage; empty for purely
	// informational stages.
	GateTest string
	// Asset is a binary attachment delivered alongside the stage view.
	Asset string
	Index int
}

var ordered = []Stage{
	{ID: StageAboutCompany, Label: "О компании", Kind: KindInfo, Index: 0},
	{ID: StagePrimaryFile, Label: "Первичный файл", Kind: KindQuiz, GateTest: TestPrimary, Index: 1},
	{ID: StageWhereToStart, Label: "С чего начать", Kind: KindParaphrase, GateTest: TestWhereToStart, Index: 2},
	{ID: StageLogicTest, Label: "Тест на логику", Kind: KindQuiz, GateTest: TestLogic, Asset: content.AssetLogicStudyPDF, Index: 3},
	{ID: StagePreparation, Label: "Материалы для подготовки", Kind: KindSurvey, Asset: content.AssetPreparationVideo, Index: 4},
	{ID: StageTakeTest, Label: "Тестовое задание", Kind: KindSubmission, GateTest: TestPractical, Index: 5},
	{ID: StageInterviewPrep, Label: "Подготовка к собеседованию", Kind: KindQuiz, GateTest: TestInterviewPrep, Index: 6},
	{ID: StageScheduleInterview, Label: "Запись на собеседование", Kind: KindTerminal, Index: 7},
}

var byID = func() map[StageID]Stage {
	m := make(map[StageID]Stage, len(ordered))
	for _, s := range ordered {
		m[s.ID] = s
	}
	return m
}()

var byTest = func() map[string]Stage {
	m := make(map[string]Stage)
	for _, s := range ordered {
		if s.GateTest != "" {
			m[s.GateTest] = s
		}
	}
	return m
}()

// Ordered returns the canonical stage sequence.
func Ordered() []Stage {
	out := make([]Stage, len(ordered))
	copy(out, ordered)
	return out
}

// ByID looks up a stage; ok is false for unknown ids.
func ByID(id StageID) (Stage, bool) {
	s, ok := byID[id]
	return s, ok
}

// ByTest resolves the stage gated by the given test id.
func ByTest(testID string) (Stage, bool) {
	s, ok := byTest[testID]
	return s, ok
}

// Next returns the stage following the given one; ok is false for the
// terminal stage.
func Next(id StageID) (Stage, bool) {
	s, ok := byID[id]
	if !ok || s.Index+1 >= len(ordered) {
		return Stage{}, false
	}
	return ordered[s.Index+1], true
}

// GatedTests lists the five test ids that feed interview eligibility, in
// stage order.
func GatedTests() []string {
	return []string{TestPrimary, TestWhereToStart, TestLogic, TestPractical, TestInterviewPrep}
}

// InitialStages is the unlocked set a fresh user starts with.
func InitialStages() []string {
	return []string{string(StageAboutCompany), string(StagePrimaryFile)}
}
