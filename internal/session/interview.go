package session

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/transport"
)

// interviewDays are the offered weekdays; weekends are never offered.
var interviewDays = []string{"Понедельник", "Вторник", "Среда", "Четверг", "Пятница"}

// interviewSlots are the fixed two-hour windows of an interview day.
var interviewSlots = []string{
	"10:00 - 12:00",
	"12:00 - 14:00",
	"14:00 - 16:00",
	"16:00 - 18:00",
}

// openScheduling starts the day-then-time slot picker, unless a request is
// already waiting for the recruiter.
func (e *Engine) openScheduling(ctx context.Context, chatID int64, msgID int) {
	if pending, err := e.interviews.HasPending(chatID); err == nil && pending {
		e.edit(ctx, chatID, msgID, "Заявка на собеседование уже отправлена. Ожидайте ответа рекрутера.", menuKeyboard())
		return
	}

	st := e.state(chatID)
	e.setMode(chatID, stateSchedulingDay)
	st.interviewDay = ""

	var kb transport.Keyboard
	for i, day := range interviewDays {
		kb = append(kb, []transport.Button{{Label: day, Data: "day_" + strconv.Itoa(i)}})
	}
	kb = append(kb, []transport.Button{{Label: "Назад", Data: cbMainMenu}})
	e.edit(ctx, chatID, msgID, "Выберите удобный день собеседования:", kb)
}

func (e *Engine) handleScheduleCallback(ctx context.Context, chatID int64, data string, msgID int) {
	st := e.state(chatID)

	switch {
	case strings.HasPrefix(data, "day_") && e.currentMode(chatID) == stateSchedulingDay:
		idx, err := strconv.Atoi(strings.TrimPrefix(data, "day_"))
		if err != nil || idx < 0 || idx >= len(interviewDays) {
			return
		}
		e.setMode(chatID, stateSchedulingTime)
		st.interviewDay = interviewDays[idx]

		var kb transport.Keyboard
		for i, slot := range interviewSlots {
			kb = append(kb, []transport.Button{{Label: slot, Data: "time_" + strconv.Itoa(i)}})
		}
		kb = append(kb, []transport.Button{{Label: "Назад", Data: cbMainMenu}})
		e.edit(ctx, chatID, msgID,
			fmt.Sprintf("День: %s.\nТеперь выберите время:", st.interviewDay), kb)

	case strings.HasPrefix(data, "time_") && e.currentMode(chatID) == stateSchedulingTime:
		idx, err := strconv.Atoi(strings.TrimPrefix(data, "time_"))
		if err != nil || idx < 0 || idx >= len(interviewSlots) {
			return
		}
		day := st.interviewDay
		slot := interviewSlots[idx]

		request := &model.InterviewRequest{
			TelegramID:    chatID,
			PreferredDay:  day,
			PreferredTime: slot,
			Status:        model.StatusPending,
		}
		if err := withRetry(func() error { return e.interviews.Create(request) }); err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("Failed to store interview request")
			e.edit(ctx, chatID, msgID, storeApology, menuKeyboard())
			return
		}

		e.setMode(chatID, stateMainMenu)
		st.interviewDay = ""
		e.edit(ctx, chatID, msgID,
			fmt.Sprintf("Заявка отправлена: %s, %s.\nРекрутер подтвердит время в этом чате.", day, slot),
			menuKeyboard())
	}
}
