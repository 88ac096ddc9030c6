package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/catalog"
	"github.com/vkotov/talentflow/internal/content"
	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/progression"
	"github.com/vkotov/talentflow/internal/quiz"
	"github.com/vkotov/talentflow/internal/transport"
)

const lockedExplanation = "Этот раздел пока закрыт. Пройдите предыдущие этапы, чтобы открыть его."

const scheduleBlockedExplanation = "Запись на собеседование откроется после успешного прохождения " +
	"большинства тестов. Продолжайте выполнять задания."

// openStage renders a stage view in place of the pressed menu message.
// Locked stages explain themselves instead of opening; admin mode walks
// through every stage as if the whole funnel were already passed.
func (e *Engine) openStage(ctx context.Context, chatID int64, stage catalog.Stage, msgID int) {
	user, err := e.loadUser(chatID)
	if err != nil {
		e.edit(ctx, chatID, msgID, storeApology, menuKeyboard())
		return
	}
	admin := e.isAdmin(chatID)
	unlocked := stageSet(user.UnlockedStages)
	results := user.TestResults.Data()

	if stage.ID == catalog.StageScheduleInterview {
		if !admin && !progression.ScheduleAccessible(unlocked, results) {
			e.edit(ctx, chatID, msgID, scheduleBlockedExplanation, menuKeyboard())
			return
		}
		e.openScheduling(ctx, chatID, msgID)
		return
	}
	if !admin && !unlocked[string(stage.ID)] {
		e.edit(ctx, chatID, msgID, lockedExplanation, menuKeyboard())
		return
	}

	st := e.state(chatID)
	e.mu.Lock()
	st.mode = stateViewing
	st.viewStage = stage.ID
	e.mu.Unlock()

	if stage.Asset != "" {
		e.sendAsset(ctx, chatID, stage.Asset)
	}

	switch stage.Kind {
	case catalog.KindInfo:
		e.edit(ctx, chatID, msgID, e.loader.LoadText(string(stage.ID)), menuKeyboard())

	case catalog.KindQuiz, catalog.KindParaphrase:
		e.openGatedStage(ctx, chatID, stage, results, msgID)

	case catalog.KindSurvey:
		e.openSurvey(ctx, chatID, stage, msgID)

	case catalog.KindSubmission:
		e.openPractical(ctx, chatID, stage, results, msgID)

	default:
		e.edit(ctx, chatID, msgID, content.Unavailable, menuKeyboard())
	}
}

// openGatedStage shows the reading material and either the launch button or
// the recorded verdict.
func (e *Engine) openGatedStage(ctx context.Context, chatID int64, stage catalog.Stage, results map[string]bool, msgID int) {
	text := e.loader.LoadText(string(stage.ID))

	if passed, recorded := results[stage.GateTest]; recorded {
		text += "\n\nТест по этому разделу уже пройден. Результат: " + verdictLabel(passed)
		e.edit(ctx, chatID, msgID, text, menuKeyboard())
		return
	}

	kb := transport.Keyboard{
		{{Label: "Пройти тест", Data: "take_" + stage.GateTest}},
		{{Label: "Назад", Data: cbMainMenu}},
	}
	e.edit(ctx, chatID, msgID, text, kb)
}

// confirmTest warns that the test is timed and cannot be restarted, then
// waits for an explicit launch.
func (e *Engine) confirmTest(ctx context.Context, chatID int64, testID string, msgID int) {
	stage, ok := catalog.ByTest(testID)
	if !ok {
		log.Warn().Str("test", testID).Msg("Confirmation requested for unknown test")
		return
	}

	e.setMode(chatID, stateConfirmingTest)

	text := "Тест начнётся сразу после подтверждения.\n"
	if limit := quiz.DefaultTimeLimits[testID]; limit > 0 {
		text += fmt.Sprintf("Ограничение по времени: %d минут.\n", int(limit.Minutes()))
	}
	text += "Перезапустить тест будет нельзя, результат записывается один раз."

	kb := transport.Keyboard{
		{{Label: "Начать", Data: "begin_" + testID}},
		{{Label: "Отмена", Data: string(stage.ID)}},
	}
	e.edit(ctx, chatID, msgID, text, kb)
}

func (e *Engine) openPractical(ctx context.Context, chatID int64, stage catalog.Stage, results map[string]bool, msgID int) {
	text := e.loader.LoadText(string(stage.ID))

	if passed, recorded := results[stage.GateTest]; recorded {
		text = e.loader.LoadText(content.TextPastTheTest) +
			"\n\nТестовое задание уже проверено. Результат: " + verdictLabel(passed)
		e.edit(ctx, chatID, msgID, text, menuKeyboard())
		return
	}
	if pending, err := e.submissions.HasPending(chatID, model.SubmissionKindPractical); err == nil && pending {
		text += "\n\nВаше решение на проверке. Ответ придёт сюда же."
		e.edit(ctx, chatID, msgID, text, menuKeyboard())
		return
	}

	kb := transport.Keyboard{
		{{Label: "Отправить решение", Data: cbSubmitWork}},
		{{Label: "Назад", Data: cbMainMenu}},
	}
	e.edit(ctx, chatID, msgID, text, kb)
}

func (e *Engine) openSurvey(ctx context.Context, chatID int64, stage catalog.Stage, msgID int) {
	survey, err := e.loader.LoadSurvey(content.SurveyPreparation)
	if err != nil {
		e.edit(ctx, chatID, msgID, e.loader.LoadText(string(stage.ID)), menuKeyboard())
		return
	}

	st := e.state(chatID)
	e.mu.Lock()
	st.mode = stateInSurvey
	st.surveyPicks = make(map[int]bool)
	e.mu.Unlock()

	text := e.loader.LoadText(string(stage.ID)) + "\n\n" + survey.Prompt
	e.edit(ctx, chatID, msgID, text, surveyKeyboard(survey, st.surveyPicks))
}

func surveyKeyboard(survey *content.Survey, picks map[int]bool) transport.Keyboard {
	var kb transport.Keyboard
	for i, opt := range survey.Options {
		mark := "☐"
		if picks[i] {
			mark = "☑"
		}
		kb = append(kb, []transport.Button{{
			Label: mark + " " + opt,
			Data:  "survey_toggle_" + strconv.Itoa(i),
		}})
	}
	kb = append(kb,
		[]transport.Button{{Label: "Отправить", Data: "survey_submit"}},
		[]transport.Button{{Label: "Назад", Data: cbMainMenu}},
	)
	return kb
}

func (e *Engine) handleSurveyCallback(ctx context.Context, chatID int64, data string, msgID int) {
	st := e.state(chatID)
	if e.currentMode(chatID) != stateInSurvey {
		return
	}

	if data == "survey_submit" {
		e.setMode(chatID, stateMainMenu)
		st.surveyPicks = nil
		e.edit(ctx, chatID, msgID, "Спасибо! Ответы сохранены, материалы остаются доступными в этом разделе.", menuKeyboard())
		return
	}

	idx, err := strconv.Atoi(strings.TrimPrefix(data, "survey_toggle_"))
	if err != nil {
		return
	}
	survey, loadErr := e.loader.LoadSurvey(content.SurveyPreparation)
	if loadErr != nil || idx < 0 || idx >= len(survey.Options) {
		return
	}
	st.surveyPicks[idx] = !st.surveyPicks[idx]

	text := e.loader.LoadText(string(catalog.StagePreparation)) + "\n\n" + survey.Prompt
	e.edit(ctx, chatID, msgID, text, surveyKeyboard(survey, st.surveyPicks))
}
