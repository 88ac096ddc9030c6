package session

import (
	"context"

	"github.com/vkotov/talentflow/internal/catalog"
	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/progression"
	"github.com/vkotov/talentflow/internal/transport"
)

// Stage markers on the main menu.
const (
	markUnlocked = "✅"
	markFailed   = "❌"
	markLocked   = "🔒"
)

func menuKeyboard() transport.Keyboard {
	return transport.Keyboard{{{Label: "В меню", Data: cbMainMenu}}}
}

func backKeyboard() transport.Keyboard {
	return transport.Keyboard{{{Label: "Назад", Data: cbMainMenu}}}
}

// showMenu renders the main menu, editing the tracked menu message when one
// exists and sending a fresh one otherwise.
func (e *Engine) showMenu(ctx context.Context, chatID int64) {
	st := e.state(chatID)
	e.showMenuAt(ctx, chatID, st.menuMsgID)
}

func (e *Engine) showMenuAt(ctx context.Context, chatID int64, msgID int) {
	user, err := e.loadUser(chatID)
	if err != nil {
		e.send(ctx, chatID, "Отправьте /start, чтобы начать.", nil)
		return
	}

	text, kb := menuView(user, e.isAdmin(chatID))
	op := transport.RenderOp{ChatID: chatID, Op: transport.OpSend, Text: text, Keyboard: kb}
	if msgID != 0 {
		op.Op = transport.OpEdit
		op.MessageID = msgID
	}
	id, err := e.renderer.Render(ctx, op)
	if err == nil {
		st := e.state(chatID)
		e.mu.Lock()
		st.menuMsgID = id
		e.mu.Unlock()
	}
}

// menuView builds the menu text and one button row per stage, each row
// prefixed with the user's progress marker. Admin mode shows every stage
// as open without touching the stored progress.
func menuView(user *model.User, admin bool) (string, transport.Keyboard) {
	unlocked := stageSet(user.UnlockedStages)
	results := user.TestResults.Data()

	var kb transport.Keyboard
	for _, stage := range catalog.Ordered() {
		marker := markUnlocked
		if !admin {
			marker = stageMarker(stage, unlocked, results)
		}
		kb = append(kb, []transport.Button{{
			Label: marker + " " + stage.Label,
			Data:  string(stage.ID),
		}})
	}
	kb = append(kb, []transport.Button{{Label: "Связаться с разработчиками", Data: cbContactDevs}})
	return "Главное меню\nВыберите раздел:", kb
}

func stageMarker(stage catalog.Stage, unlocked map[string]bool, results map[string]bool) string {
	if stage.ID == catalog.StageScheduleInterview {
		if progression.ScheduleAccessible(unlocked, results) {
			return markUnlocked
		}
		return markLocked
	}
	if !unlocked[string(stage.ID)] {
		return markLocked
	}
	if stage.GateTest != "" {
		if passed, recorded := results[stage.GateTest]; recorded && !passed {
			return markFailed
		}
	}
	return markUnlocked
}

func (e *Engine) send(ctx context.Context, chatID int64, text string, kb transport.Keyboard) {
	_, _ = e.renderer.Render(ctx, transport.RenderOp{
		ChatID: chatID, Op: transport.OpSend, Text: text, Keyboard: kb,
	})
}

// edit repaints the given message; the renderer falls back to a fresh send
// when the platform rejects the edit.
func (e *Engine) edit(ctx context.Context, chatID int64, msgID int, text string, kb transport.Keyboard) {
	_, _ = e.renderer.Render(ctx, transport.RenderOp{
		ChatID: chatID, Op: transport.OpEdit, MessageID: msgID, Text: text, Keyboard: kb,
	})
}

// sendAsset attaches a stage's binary material (the preparation video, the
// logic study guide) as a separate document message.
func (e *Engine) sendAsset(ctx context.Context, chatID int64, name string) {
	_, _ = e.renderer.Render(ctx, transport.RenderOp{
		ChatID: chatID, Op: transport.OpDocument, FilePath: e.loader.AssetPath(name),
	})
}
