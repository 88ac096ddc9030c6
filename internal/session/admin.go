package session

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/catalog"
	"github.com/vkotov/talentflow/internal/progression"
)

// handleAdminCommand intercepts the secret service commands. Admin mode is
// per-session and evaporates on restart; a progress reset is persistent.
// Returns true when the text was consumed as a command.
func (e *Engine) handleAdminCommand(ctx context.Context, chatID int64, text string) bool {
	st := e.state(chatID)

	if matchesAny(text, e.admin.Activate) {
		e.mu.Lock()
		st.admin = true
		e.mu.Unlock()
		log.Info().Int64("chat_id", chatID).Msg("Admin mode activated")
		e.send(ctx, chatID, "Режим администратора активирован. Все разделы открыты для просмотра.", nil)
		e.showMenu(ctx, chatID)
		return true
	}
	if !e.isAdmin(chatID) {
		return false
	}

	switch {
	case matchesAny(text, e.admin.Reset):
		e.adminReset(ctx, chatID)
	case matchesAny(text, e.admin.Skip):
		e.adminForceResult(ctx, chatID, true, "Текущий модуль пропущен.")
	case text == e.admin.MarkGood:
		e.adminForceResult(ctx, chatID, true, "Последний тест отмечен как пройденный.")
	case text == e.admin.MarkBad:
		e.adminForceResult(ctx, chatID, false, "Последний тест отмечен как проваленный.")
	case text == e.admin.Rewind:
		e.adminRewind(ctx, chatID)
	default:
		return false
	}
	return true
}

func matchesAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && text == w {
			return true
		}
	}
	return false
}

// adminReset wipes progress back to the initial stages and aborts any
// running test session without recording a verdict.
func (e *Engine) adminReset(ctx context.Context, chatID int64) {
	e.quizzes.Cancel(chatID)
	e.rewrites.Cancel(chatID)

	if err := withRetry(func() error { return e.users.ResetProgress(chatID, catalog.InitialStages()) }); err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to reset progress")
		e.send(ctx, chatID, storeApology, nil)
		return
	}

	st := e.state(chatID)
	e.mu.Lock()
	st.mode = stateMainMenu
	st.menuMsgID = 0
	e.mu.Unlock()

	log.Info().Int64("chat_id", chatID).Msg("Progress reset")
	e.send(ctx, chatID, "Прогресс сброшен. Путь начинается заново.", nil)
	e.showMenu(ctx, chatID)
}

// adminForceResult writes a verdict for the latest reached gated test. The
// write-once rule holds: an already recorded result stays as it is, but the
// unlock still applies so the walkthrough can continue.
func (e *Engine) adminForceResult(ctx context.Context, chatID int64, passed bool, reply string) {
	user, err := e.loadUser(chatID)
	if err != nil {
		e.send(ctx, chatID, storeApology, nil)
		return
	}
	stage, ok := progression.LatestGated(stageSet(user.UnlockedStages))
	if !ok {
		e.send(ctx, chatID, "Нет доступного модуля с тестом.", nil)
		return
	}

	e.recordOutcome(chatID, stage.GateTest, passed)
	e.send(ctx, chatID, reply, nil)
	e.showMenu(ctx, chatID)
}

// adminRewind steps the stage view one stage back.
func (e *Engine) adminRewind(ctx context.Context, chatID int64) {
	st := e.state(chatID)

	current, ok := catalog.ByID(st.viewStage)
	if e.currentMode(chatID) != stateViewing || !ok || current.Index == 0 {
		e.send(ctx, chatID, "Назад идти некуда.", nil)
		return
	}
	prev := catalog.Ordered()[current.Index-1]
	e.openStage(ctx, chatID, prev, st.menuMsgID)
}
