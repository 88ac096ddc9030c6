package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vkotov/talentflow/config"
	"github.com/vkotov/talentflow/internal/catalog"
	"github.com/vkotov/talentflow/internal/content"
	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/paraphrase"
	"github.com/vkotov/talentflow/internal/quiz"
	"github.com/vkotov/talentflow/internal/repository/memory"
	"github.com/vkotov/talentflow/internal/transport"
)

type renderRec struct {
	op    string
	msgID int
	text  string
	kb    transport.Keyboard
}

type fakeTransport struct {
	mu     sync.Mutex
	nextID int
	recs   []renderRec
}

func (f *fakeTransport) Send(_ context.Context, _ int64, text string, kb transport.Keyboard, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.recs = append(f.recs, renderRec{op: "send", msgID: f.nextID, text: text, kb: kb})
	return f.nextID, nil
}

func (f *fakeTransport) Edit(_ context.Context, _ int64, msgID int, text string, kb transport.Keyboard, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recs = append(f.recs, renderRec{op: "edit", msgID: msgID, text: text, kb: kb})
	return nil
}

func (f *fakeTransport) Delete(_ context.Context, _ int64, _ int) error { return nil }

func (f *fakeTransport) SendDocument(_ context.Context, _ int64, path, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.recs = append(f.recs, renderRec{op: "document", msgID: f.nextID, text: path})
	return f.nextID, nil
}

func (f *fakeTransport) documents() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var paths []string
	for _, rec := range f.recs {
		if rec.op == "document" {
			paths = append(paths, rec.text)
		}
	}
	return paths
}

func (f *fakeTransport) last() renderRec {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.recs) == 0 {
		return renderRec{}
	}
	return f.recs[len(f.recs)-1]
}

func (f *fakeTransport) lastID() int {
	return f.last().msgID
}

type fakeLoader struct {
	quizzes map[string]*content.Quiz
	sets    map[string]*content.ParaphraseSet
	surveys map[string]*content.Survey
}

func (l *fakeLoader) LoadText(id string) string { return "Текст раздела: " + id }

func (l *fakeLoader) AssetPath(name string) string { return "assets/" + name }

func (l *fakeLoader) LoadQuiz(id string) (*content.Quiz, error) {
	if q, ok := l.quizzes[id]; ok {
		return q, nil
	}
	return nil, errors.New("no such quiz")
}

func (l *fakeLoader) LoadParaphrase(id string) (*content.ParaphraseSet, error) {
	if s, ok := l.sets[id]; ok {
		return s, nil
	}
	return nil, errors.New("no such exercise set")
}

func (l *fakeLoader) LoadSurvey(id string) (*content.Survey, error) {
	if s, ok := l.surveys[id]; ok {
		return s, nil
	}
	return nil, errors.New("no such survey")
}

type fixture struct {
	engine      *Engine
	transport   *fakeTransport
	users       *memory.UserRepository
	submissions *memory.SubmissionRepository
	interviews  *memory.InterviewRepository
	messages    *memory.MessageRepository
}

func adminWords() config.AdminCommands {
	return config.AdminCommands{
		Activate: []string{"admin123!", "admin_mode"},
		Reset:    []string{"!reload2!", "reset_progress"},
		Skip:     []string{"!skip2!", "skip_module"},
		MarkGood: "!good!",
		MarkBad:  "!bad!",
		Rewind:   "!prev!",
	}
}

func newFixture() *fixture {
	ft := &fakeTransport{}
	renderer := transport.NewRenderer(ft)
	loader := &fakeLoader{
		quizzes: map[string]*content.Quiz{
			content.QuizPrimary: {Questions: []content.Question{
				{Prompt: "2+2?", Options: []string{"4", "5"}, CorrectIndex: 0},
				{Prompt: "3+3?", Options: []string{"6", "7"}, CorrectIndex: 0},
			}},
		},
		sets: map[string]*content.ParaphraseSet{
			content.QuizWhereToStart: {Exercises: []content.ParaphraseExercise{
				{Sentence: "Пожалуйста, подготовьте отчет.", Stopword: "пожалуйста"},
			}},
		},
		surveys: map[string]*content.Survey{
			content.SurveyPreparation: {
				Prompt:  "Какие материалы пригодились?",
				Options: []string{"Видео", "Статья", "Гайд"},
			},
		},
	}

	users := memory.NewUserRepository()
	submissions := memory.NewSubmissionRepository()
	interviews := memory.NewInterviewRepository()
	messages := memory.NewMessageRepository()

	engine := NewEngine(
		renderer, loader, users, submissions, interviews, messages,
		quiz.NewRunner(renderer),
		paraphrase.NewRunner(renderer, paraphrase.NewEvaluator(nil)),
		adminWords(),
	)
	return &fixture{
		engine:      engine,
		transport:   ft,
		users:       users,
		submissions: submissions,
		interviews:  interviews,
		messages:    messages,
	}
}

func textEv(text string) transport.Event {
	return transport.Event{
		ChatID: 1,
		Kind:   transport.EventText,
		Text:   text,
		User:   transport.UserInfo{ID: 1, Username: "candidate"},
	}
}

func cbEv(data string, msgID int) transport.Event {
	return transport.Event{
		ChatID:    1,
		Kind:      transport.EventCallback,
		Text:      data,
		MessageID: msgID,
		User:      transport.UserInfo{ID: 1, Username: "candidate"},
	}
}

func markerFor(kb transport.Keyboard, stage catalog.StageID) string {
	for _, row := range kb {
		for _, btn := range row {
			if btn.Data == string(stage) {
				return string([]rune(btn.Label)[0])
			}
		}
	}
	return ""
}

func runPrimaryTest(t *testing.T, f *fixture, firstAnswer, secondAnswer string) {
	t.Helper()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	menuID := f.transport.lastID()

	f.engine.Handle(ctx, cbEv(string(catalog.StagePrimaryFile), menuID))
	assert.Contains(t, f.transport.last().text, "Текст раздела: primary_file")

	f.engine.Handle(ctx, cbEv("take_"+catalog.TestPrimary, menuID))
	assert.Contains(t, f.transport.last().text, "Ограничение по времени: 5 минут")

	f.engine.Handle(ctx, cbEv("begin_"+catalog.TestPrimary, menuID))
	assert.Contains(t, f.transport.last().text, "Вопрос 1/2")

	f.engine.Handle(ctx, cbEv(firstAnswer, menuID))
	f.engine.Handle(ctx, cbEv(secondAnswer, menuID))
}

func TestHappyPathThroughPrimaryTest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	menu := f.transport.last()
	assert.Contains(t, menu.text, "Главное меню")
	assert.Equal(t, markUnlocked, markerFor(menu.kb, catalog.StageAboutCompany))
	assert.Equal(t, markUnlocked, markerFor(menu.kb, catalog.StagePrimaryFile))
	assert.Equal(t, markLocked, markerFor(menu.kb, catalog.StageWhereToStart))
	assert.Equal(t, markLocked, markerFor(menu.kb, catalog.StageScheduleInterview))

	runPrimaryTest(t, f, "answer_0", "answer_0")
	assert.Contains(t, f.transport.last().text, "Правильных ответов: 2 из 2")
	assert.Contains(t, f.transport.last().text, "пройден ✅")

	user, err := f.users.FindByID(1)
	require.NoError(t, err)
	results := user.TestResults.Data()
	assert.True(t, results[catalog.TestPrimary])
	assert.Contains(t, []string(user.UnlockedStages), string(catalog.StageWhereToStart))

	f.engine.Handle(ctx, cbEv(cbMainMenu, f.transport.lastID()))
	menu = f.transport.last()
	assert.Equal(t, markUnlocked, markerFor(menu.kb, catalog.StageWhereToStart))
}

func TestFailureStillUnlocksNextStage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	runPrimaryTest(t, f, "answer_1", "answer_1")
	assert.Contains(t, f.transport.last().text, "не пройден ❌")

	user, err := f.users.FindByID(1)
	require.NoError(t, err)
	assert.False(t, user.TestResults.Data()[catalog.TestPrimary])
	assert.Contains(t, []string(user.UnlockedStages), string(catalog.StageWhereToStart))

	f.engine.Handle(ctx, cbEv(cbMainMenu, f.transport.lastID()))
	menu := f.transport.last()
	assert.Equal(t, markFailed, markerFor(menu.kb, catalog.StagePrimaryFile))
	assert.Equal(t, markUnlocked, markerFor(menu.kb, catalog.StageWhereToStart))
}

func TestDuplicateAttemptIsRejected(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	runPrimaryTest(t, f, "answer_0", "answer_0")

	f.engine.Handle(ctx, cbEv("begin_"+catalog.TestPrimary, f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "уже пройден")

	user, err := f.users.FindByID(1)
	require.NoError(t, err)
	assert.True(t, user.TestResults.Data()[catalog.TestPrimary], "first verdict must survive")

	// The stage view shows the verdict instead of a launch button.
	f.engine.Handle(ctx, cbEv(string(catalog.StagePrimaryFile), f.transport.lastID()))
	rec := f.transport.last()
	assert.Contains(t, rec.text, "уже пройден")
	for _, row := range rec.kb {
		for _, btn := range row {
			assert.NotEqual(t, "take_"+catalog.TestPrimary, btn.Data)
		}
	}
}

func TestLockedStagePressExplains(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	f.engine.Handle(ctx, cbEv(string(catalog.StageLogicTest), f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "пока закрыт")
}

func TestScheduleBlockedUntilEligible(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	f.engine.Handle(ctx, cbEv(string(catalog.StageScheduleInterview), f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "откроется после")
}

func makeEligible(t *testing.T, f *fixture) {
	t.Helper()
	ctx := context.Background()
	f.engine.Handle(ctx, textEv("/start"))
	require.NoError(t, f.users.Unlock(1, []string{
		string(catalog.StageInterviewPrep),
		string(catalog.StageScheduleInterview),
	}))
	require.NoError(t, f.users.RecordTestResult(1, catalog.TestPrimary, true))
	require.NoError(t, f.users.RecordTestResult(1, catalog.TestWhereToStart, true))
	require.NoError(t, f.users.RecordTestResult(1, catalog.TestLogic, true))
}

func TestInterviewScheduling(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	makeEligible(t, f)

	f.engine.Handle(ctx, cbEv(string(catalog.StageScheduleInterview), f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "Выберите удобный день")

	f.engine.Handle(ctx, cbEv("day_0", f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "Понедельник")

	f.engine.Handle(ctx, cbEv("time_1", f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "Заявка отправлена: Понедельник, 12:00 - 14:00")

	pending, err := f.interviews.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "Понедельник", pending[0].PreferredDay)
	assert.Equal(t, "12:00 - 14:00", pending[0].PreferredTime)

	// A second request while one is pending is rejected.
	f.engine.Handle(ctx, cbEv(string(catalog.StageScheduleInterview), f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "уже отправлена")
}

func TestPracticalSubmissionFlow(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	require.NoError(t, f.users.Unlock(1, []string{string(catalog.StageTakeTest)}))

	f.engine.Handle(ctx, cbEv(string(catalog.StageTakeTest), f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "Текст раздела: take_test")

	f.engine.Handle(ctx, cbEv(cbSubmitWork, f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "Пришлите решение")

	f.engine.Handle(ctx, textEv("коротко"))
	assert.Contains(t, f.transport.last().text, "Слишком короткое")

	f.engine.Handle(ctx, textEv(strings.Repeat("Решение задачи подробно. ", 4)))
	pending, err := f.submissions.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, model.SubmissionKindPractical, pending[0].Kind)

	// While the first one is pending, a second submission is refused.
	f.engine.Handle(ctx, cbEv(string(catalog.StageTakeTest), f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "на проверке")
}

// The take_test stage id starts with the launch-token prefix; pressing its
// menu button must open the stage, not a test confirmation.
func TestPracticalStageOpensFromMenu(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	require.NoError(t, f.users.Unlock(1, []string{string(catalog.StageTakeTest)}))

	f.engine.Handle(ctx, cbEv(string(catalog.StageTakeTest), f.transport.lastID()))
	rec := f.transport.last()
	assert.Contains(t, rec.text, "Текст раздела: take_test")

	var hasSubmit bool
	for _, row := range rec.kb {
		for _, btn := range row {
			if btn.Data == cbSubmitWork {
				hasSubmit = true
			}
		}
	}
	assert.True(t, hasSubmit, "practical stage must offer the submit button")
}

func TestPracticalStageShowsVerdictOnceReviewed(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	require.NoError(t, f.users.Unlock(1, []string{string(catalog.StageTakeTest)}))
	require.NoError(t, f.users.RecordTestResult(1, catalog.TestPractical, true))

	f.engine.Handle(ctx, cbEv(string(catalog.StageTakeTest), f.transport.lastID()))
	rec := f.transport.last()
	assert.Contains(t, rec.text, "Текст раздела: past_the_test")
	assert.Contains(t, rec.text, "уже проверено")
	assert.Contains(t, rec.text, "пройден ✅")
}

func TestDocumentSubmission(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	require.NoError(t, f.users.Unlock(1, []string{string(catalog.StageTakeTest)}))
	f.engine.Handle(ctx, cbEv(string(catalog.StageTakeTest), f.transport.lastID()))
	f.engine.Handle(ctx, cbEv(cbSubmitWork, f.transport.lastID()))

	f.engine.Handle(ctx, transport.Event{
		ChatID: 1, Kind: transport.EventDocument,
		Document: &transport.DocumentInfo{FileID: "file-123", FileName: "solution.zip"},
	})

	pending, err := f.submissions.ListPending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "file-123", pending[0].Payload.Data().FileID)
	assert.Equal(t, "solution.zip", pending[0].Payload.Data().FileName)
}

func TestSurveyToggleAndSubmit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	require.NoError(t, f.users.Unlock(1, []string{string(catalog.StagePreparation)}))

	f.engine.Handle(ctx, cbEv(string(catalog.StagePreparation), f.transport.lastID()))
	rec := f.transport.last()
	assert.Contains(t, rec.text, "Какие материалы пригодились?")
	assert.Contains(t, rec.kb[0][0].Label, "☐")

	f.engine.Handle(ctx, cbEv("survey_toggle_0", f.transport.lastID()))
	assert.Contains(t, f.transport.last().kb[0][0].Label, "☑")

	f.engine.Handle(ctx, cbEv("survey_submit", f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "Ответы сохранены")
}

func TestDeveloperMessage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	f.engine.Handle(ctx, cbEv(cbContactDevs, f.transport.lastID()))
	f.engine.Handle(ctx, textEv("Кнопка меню не нажимается"))

	unread, err := f.messages.ListUnread()
	require.NoError(t, err)
	require.Len(t, unread, 1)
	assert.Equal(t, "Кнопка меню не нажимается", unread[0].Text)
	assert.Equal(t, "candidate", unread[0].Username)
}

func TestAdminCommands(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))

	// Commands are inert until activation.
	f.engine.Handle(ctx, textEv("!skip2!"))
	user, err := f.users.FindByID(1)
	require.NoError(t, err)
	assert.Empty(t, user.TestResults.Data())

	f.engine.Handle(ctx, textEv("admin123!"))
	f.engine.Handle(ctx, textEv("!skip2!"))
	user, err = f.users.FindByID(1)
	require.NoError(t, err)
	assert.True(t, user.TestResults.Data()[catalog.TestPrimary])
	assert.Contains(t, []string(user.UnlockedStages), string(catalog.StageWhereToStart))

	// Force-fail the next reached gated test.
	f.engine.Handle(ctx, textEv("!bad!"))
	user, err = f.users.FindByID(1)
	require.NoError(t, err)
	assert.False(t, user.TestResults.Data()[catalog.TestWhereToStart])

	// Reset wipes progress back to the first two stages.
	f.engine.Handle(ctx, textEv("!reload2!"))
	user, err = f.users.FindByID(1)
	require.NoError(t, err)
	assert.Empty(t, user.TestResults.Data())
	assert.Equal(t, catalog.InitialStages(), []string(user.UnlockedStages))
}

func TestAdminModeOpensEveryStage(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	f.engine.Handle(ctx, textEv("admin123!"))

	menu := f.transport.last()
	assert.Contains(t, menu.text, "Главное меню")
	assert.Equal(t, markUnlocked, markerFor(menu.kb, catalog.StageLogicTest))
	assert.Equal(t, markUnlocked, markerFor(menu.kb, catalog.StageScheduleInterview))

	f.engine.Handle(ctx, cbEv(string(catalog.StageLogicTest), f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "Текст раздела: logic_test")

	// The walkthrough never touches the stored progress.
	user, err := f.users.FindByID(1)
	require.NoError(t, err)
	assert.Equal(t, catalog.InitialStages(), []string(user.UnlockedStages))

	f.engine.Handle(ctx, cbEv(cbMainMenu, f.transport.lastID()))
	f.engine.Handle(ctx, cbEv(string(catalog.StageScheduleInterview), f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "Выберите удобный день")
}

func TestStageAssetsAreDelivered(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	require.NoError(t, f.users.Unlock(1, []string{string(catalog.StagePreparation)}))

	f.engine.Handle(ctx, cbEv(string(catalog.StagePreparation), f.transport.lastID()))
	assert.Equal(t, []string{"assets/" + content.AssetPreparationVideo}, f.transport.documents())
	assert.Contains(t, f.transport.last().text, "Какие материалы пригодились?")
}

// Menu presses land while the quiz session finishes on its own goroutine;
// the verdict must still be recorded exactly once.
func TestConcurrentMenuPressesDuringQuiz(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	menuID := f.transport.lastID()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			f.engine.Handle(ctx, cbEv(cbMainMenu, menuID))
		}
	}()
	go func() {
		defer wg.Done()
		f.engine.Handle(ctx, cbEv("take_"+catalog.TestPrimary, menuID))
		f.engine.Handle(ctx, cbEv("begin_"+catalog.TestPrimary, menuID))
		f.engine.Handle(ctx, cbEv("answer_0", menuID))
		f.engine.Handle(ctx, cbEv("answer_0", menuID))
	}()
	wg.Wait()

	user, err := f.users.FindByID(1)
	require.NoError(t, err)
	assert.True(t, user.TestResults.Data()[catalog.TestPrimary])
}

func TestParaphraseStageEndToEnd(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.engine.Handle(ctx, textEv("/start"))
	require.NoError(t, f.users.Unlock(1, []string{string(catalog.StageWhereToStart)}))

	f.engine.Handle(ctx, cbEv(string(catalog.StageWhereToStart), f.transport.lastID()))
	f.engine.Handle(ctx, cbEv("take_"+catalog.TestWhereToStart, f.transport.lastID()))
	f.engine.Handle(ctx, cbEv("begin_"+catalog.TestWhereToStart, f.transport.lastID()))
	assert.Contains(t, f.transport.last().text, "Задание 1/1")

	f.engine.Handle(ctx, textEv("Жду подготовленный отчет."))
	assert.Contains(t, f.transport.last().text, "пройден ✅")

	user, err := f.users.FindByID(1)
	require.NoError(t, err)
	assert.True(t, user.TestResults.Data()[catalog.TestWhereToStart])
	assert.Contains(t, []string(user.UnlockedStages), string(catalog.StageLogicTest))
}
