package quiz

import (
	"fmt"
	"strings"
	"time"

	"github.com/vkotov/talentflow/internal/content"
	"github.com/vkotov/talentflow/internal/transport"
)

// renderPrompt builds the question text. Tests without a time limit omit
// the countdown line.
func renderPrompt(testID string, q content.Question, number, total int, remaining time.Duration) string {
	var b strings.Builder
	if remaining > 0 {
		b.WriteString(fmt.Sprintf("Оставшееся время: %s\n", formatCountdown(remaining)))
	}
	b.WriteString(fmt.Sprintf("Вопрос %d/%d:\n%s\n", number, total, q.Prompt))
	b.WriteString("Варианты ответа:\n")
	for i, opt := range q.Options {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, opt))
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Seconds())
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// optionKeyboard emits one numbered button per option; the callback token
// carries the 0-based option index.
func optionKeyboard(n int) transport.Keyboard {
	var row []transport.Button
	var kb transport.Keyboard
	for i := 0; i < n; i++ {
		row = append(row, transport.Button{
			Label: fmt.Sprintf("%d", i+1),
			Data:  fmt.Sprintf("answer_%d", i),
		})
		// Keep rows short so wide quizzes stay tappable.
		if len(row) == 4 {
			kb = append(kb, row)
			row = nil
		}
	}
	if len(row) > 0 {
		kb = append(kb, row)
	}
	return kb
}
