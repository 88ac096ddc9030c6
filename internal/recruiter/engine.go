package recruiter

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/jinzhu/copier"
	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/model"
	"github.com/vkotov/talentflow/internal/repository"
	"github.com/vkotov/talentflow/internal/transport"
)

// Recruiter conversation states.
const (
	stateMenu             = "menu"
	stateAwaitingFeedback = "awaiting_feedback"
	stateAwaitingResponse = "awaiting_interview_response"
)

// skipToken skips the optional comment on a decision.
const skipToken = "-"

type pendingDecision struct {
	id      uint
	approve bool
}

type state struct {
	mode      string
	menuMsgID int
	decision  pendingDecision
}

// SubmissionView is the list row shown to the recruiter.
type SubmissionView struct {
	ID         uint
	TelegramID int64
	Kind       string
	Status     string
}

// Engine drives the recruiter bot: metrics, submission review, interview
// responses and developer messages. All candidate-visible effects go
// through the store and the outbox, never directly to the other bot.
type Engine struct {
	renderer    *transport.Renderer
	metrics     MetricsService
	reviews     ReviewService
	submissions repository.SubmissionRepository
	interviews  repository.InterviewRepository
	messages    repository.MessageRepository

	mu     sync.Mutex
	states map[int64]*state
}

func NewEngine(
	renderer *transport.Renderer,
	metrics MetricsService,
	reviews ReviewService,
	submissions repository.SubmissionRepository,
	interviews repository.InterviewRepository,
	messages repository.MessageRepository,
) *Engine {
	return &Engine{
		renderer:    renderer,
		metrics:     metrics,
		reviews:     reviews,
		submissions: submissions,
		interviews:  interviews,
		messages:    messages,
		states:      make(map[int64]*state),
	}
}

func (e *Engine) state(chatID int64) *state {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.states[chatID]
	if !ok {
		st = &state{mode: stateMenu}
		e.states[chatID] = st
	}
	return st
}

func (e *Engine) Handle(ctx context.Context, ev transport.Event) {
	switch ev.Kind {
	case transport.EventCallback:
		e.handleCallback(ctx, ev)
	default:
		e.handleText(ctx, ev)
	}
}

func (e *Engine) handleText(ctx context.Context, ev transport.Event) {
	text := strings.TrimSpace(ev.Text)
	st := e.state(ev.ChatID)

	switch {
	case text == "/start":
		st.mode = stateMenu
		e.showMenu(ctx, ev.ChatID, 0)

	case st.mode == stateAwaitingFeedback:
		e.finishSubmissionReview(ctx, ev.ChatID, text)

	case st.mode == stateAwaitingResponse:
		e.finishInterviewAnswer(ctx, ev.ChatID, text)

	default:
		e.showMenu(ctx, ev.ChatID, 0)
	}
}

func (e *Engine) handleCallback(ctx context.Context, ev transport.Event) {
	data := ev.Text
	chatID := ev.ChatID
	msgID := ev.MessageID

	switch {
	case data == "recruiter_menu":
		e.state(chatID).mode = stateMenu
		e.showMenu(ctx, chatID, msgID)

	case data == "metrics":
		e.showMetrics(ctx, chatID, msgID)

	case data == "submissions":
		e.listSubmissions(ctx, chatID, msgID)

	case data == "interviews":
		e.listInterviews(ctx, chatID, msgID)

	case data == "messages":
		e.showMessages(ctx, chatID, msgID)

	case strings.HasPrefix(data, "sub_"):
		e.openSubmission(ctx, chatID, parseID(data, "sub_"), msgID)

	case strings.HasPrefix(data, "approve_"):
		e.askForFeedback(ctx, chatID, parseID(data, "approve_"), true, msgID)

	case strings.HasPrefix(data, "reject_"):
		e.askForFeedback(ctx, chatID, parseID(data, "reject_"), false, msgID)

	case strings.HasPrefix(data, "int_ok_"):
		e.askForResponse(ctx, chatID, parseID(data, "int_ok_"), true, msgID)

	case strings.HasPrefix(data, "int_no_"):
		e.askForResponse(ctx, chatID, parseID(data, "int_no_"), false, msgID)

	case strings.HasPrefix(data, "int_"):
		e.openInterview(ctx, chatID, parseID(data, "int_"), msgID)

	default:
		log.Warn().Str("data", data).Msg("Unknown recruiter callback token")
	}
}

func parseID(data, prefix string) uint {
	id, err := strconv.ParseUint(strings.TrimPrefix(data, prefix), 10, 32)
	if err != nil {
		return 0
	}
	return uint(id)
}

func menuButton() []transport.Button {
	return []transport.Button{{Label: "В меню", Data: "recruiter_menu"}}
}

func (e *Engine) showMenu(ctx context.Context, chatID int64, msgID int) {
	kb := transport.Keyboard{
		{{Label: "Метрики воронки", Data: "metrics"}},
		{{Label: "Решения на проверке", Data: "submissions"}},
		{{Label: "Заявки на собеседование", Data: "interviews"}},
		{{Label: "Сообщения разработчикам", Data: "messages"}},
	}
	id := e.render(ctx, chatID, msgID, "Панель рекрутера\nВыберите раздел:", kb)
	st := e.state(chatID)
	e.mu.Lock()
	st.menuMsgID = id
	e.mu.Unlock()
}

func (e *Engine) showMetrics(ctx context.Context, chatID int64, msgID int) {
	m, err := e.metrics.Collect()
	if err != nil {
		log.Error().Err(err).Msg("Failed to collect metrics")
		e.render(ctx, chatID, msgID, "Не удалось собрать метрики, попробуйте позже.", transport.Keyboard{menuButton()})
		return
	}
	e.render(ctx, chatID, msgID, FormatMetrics(m), transport.Keyboard{menuButton()})
}

func (e *Engine) listSubmissions(ctx context.Context, chatID int64, msgID int) {
	pending, err := e.submissions.ListPending()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending submissions")
		e.render(ctx, chatID, msgID, "Не удалось получить список решений.", transport.Keyboard{menuButton()})
		return
	}
	if len(pending) == 0 {
		e.render(ctx, chatID, msgID, "Решений на проверке нет.", transport.Keyboard{menuButton()})
		return
	}

	var kb transport.Keyboard
	for _, sub := range pending {
		var view SubmissionView
		if err := copier.Copy(&view, &sub); err != nil {
			log.Error().Err(err).Uint("submission_id", sub.ID).Msg("Failed to map submission")
			continue
		}
		kb = append(kb, []transport.Button{{
			Label: fmt.Sprintf("#%d от кандидата %d", view.ID, view.TelegramID),
			Data:  "sub_" + strconv.FormatUint(uint64(view.ID), 10),
		}})
	}
	kb = append(kb, menuButton())
	e.render(ctx, chatID, msgID, "Решения, ожидающие проверки:", kb)
}

func (e *Engine) openSubmission(ctx context.Context, chatID int64, id uint, msgID int) {
	sub, err := e.submissions.FindByID(id)
	if err != nil {
		e.render(ctx, chatID, msgID, "Решение не найдено.", transport.Keyboard{menuButton()})
		return
	}

	payload := sub.Payload.Data()
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Решение #%d\nКандидат: %d\n", sub.ID, sub.TelegramID))
	if payload.FileName != "" {
		b.WriteString("Файл: " + payload.FileName + "\n")
	}
	if payload.Text != "" {
		b.WriteString("\n" + payload.Text + "\n")
	}

	suffix := strconv.FormatUint(uint64(id), 10)
	kb := transport.Keyboard{
		{{Label: "Принять ✅", Data: "approve_" + suffix}, {Label: "Отклонить ❌", Data: "reject_" + suffix}},
		menuButton(),
	}
	e.render(ctx, chatID, msgID, b.String(), kb)
}

func (e *Engine) askForFeedback(ctx context.Context, chatID int64, id uint, approve bool, msgID int) {
	st := e.state(chatID)
	e.mu.Lock()
	st.mode = stateAwaitingFeedback
	st.decision = pendingDecision{id: id, approve: approve}
	e.mu.Unlock()
	e.render(ctx, chatID, msgID,
		"Отправьте комментарий для кандидата одним сообщением, либо «-», чтобы обойтись без него.", nil)
}

func (e *Engine) finishSubmissionReview(ctx context.Context, chatID int64, text string) {
	st := e.state(chatID)
	e.mu.Lock()
	decision := st.decision
	st.mode = stateMenu
	st.decision = pendingDecision{}
	e.mu.Unlock()

	feedback := text
	if feedback == skipToken {
		feedback = ""
	}

	sub, err := e.reviews.ReviewSubmission(decision.id, decision.approve, feedback)
	if err != nil {
		log.Error().Err(err).Uint("submission_id", decision.id).Msg("Submission review failed")
		e.send(ctx, chatID, "Не удалось сохранить решение: возможно, его уже проверили.")
		return
	}
	e.send(ctx, chatID, fmt.Sprintf("Решение #%d: %s. Кандидат получит уведомление.", sub.ID, statusLabel(sub.Status)))
	e.showMenu(ctx, chatID, 0)
}

func (e *Engine) listInterviews(ctx context.Context, chatID int64, msgID int) {
	pending, err := e.interviews.ListPending()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list interview requests")
		e.render(ctx, chatID, msgID, "Не удалось получить заявки.", transport.Keyboard{menuButton()})
		return
	}
	if len(pending) == 0 {
		e.render(ctx, chatID, msgID, "Новых заявок на собеседование нет.", transport.Keyboard{menuButton()})
		return
	}

	var kb transport.Keyboard
	for _, req := range pending {
		kb = append(kb, []transport.Button{{
			Label: fmt.Sprintf("#%d: %s, %s", req.ID, req.PreferredDay, req.PreferredTime),
			Data:  "int_" + strconv.FormatUint(uint64(req.ID), 10),
		}})
	}
	kb = append(kb, menuButton())
	e.render(ctx, chatID, msgID, "Заявки на собеседование:", kb)
}

func (e *Engine) openInterview(ctx context.Context, chatID int64, id uint, msgID int) {
	req, err := e.interviews.FindByID(id)
	if err != nil {
		e.render(ctx, chatID, msgID, "Заявка не найдена.", transport.Keyboard{menuButton()})
		return
	}

	text := fmt.Sprintf("Заявка #%d\nКандидат: %d\nДень: %s\nВремя: %s",
		req.ID, req.TelegramID, req.PreferredDay, req.PreferredTime)
	suffix := strconv.FormatUint(uint64(id), 10)
	kb := transport.Keyboard{
		{{Label: "Подтвердить ✅", Data: "int_ok_" + suffix}, {Label: "Отклонить ❌", Data: "int_no_" + suffix}},
		menuButton(),
	}
	e.render(ctx, chatID, msgID, text, kb)
}

func (e *Engine) askForResponse(ctx context.Context, chatID int64, id uint, approve bool, msgID int) {
	st := e.state(chatID)
	e.mu.Lock()
	st.mode = stateAwaitingResponse
	st.decision = pendingDecision{id: id, approve: approve}
	e.mu.Unlock()
	e.render(ctx, chatID, msgID,
		"Отправьте текст ответа кандидату одним сообщением, либо «-» для стандартного ответа.", nil)
}

func (e *Engine) finishInterviewAnswer(ctx context.Context, chatID int64, text string) {
	st := e.state(chatID)
	e.mu.Lock()
	decision := st.decision
	st.mode = stateMenu
	st.decision = pendingDecision{}
	e.mu.Unlock()

	response := text
	if response == skipToken {
		response = ""
	}

	req, err := e.reviews.AnswerInterview(decision.id, decision.approve, response)
	if err != nil {
		log.Error().Err(err).Uint("request_id", decision.id).Msg("Interview answer failed")
		e.send(ctx, chatID, "Не удалось сохранить ответ: возможно, на заявку уже ответили.")
		return
	}
	e.send(ctx, chatID, fmt.Sprintf("Заявка #%d: %s. Кандидат получит уведомление.", req.ID, statusLabel(req.Status)))
	e.showMenu(ctx, chatID, 0)
}

// showMessages lists unread developer messages and marks them read.
func (e *Engine) showMessages(ctx context.Context, chatID int64, msgID int) {
	unread, err := e.messages.ListUnread()
	if err != nil {
		log.Error().Err(err).Msg("Failed to list developer messages")
		e.render(ctx, chatID, msgID, "Не удалось получить сообщения.", transport.Keyboard{menuButton()})
		return
	}
	if len(unread) == 0 {
		e.render(ctx, chatID, msgID, "Новых сообщений нет.", transport.Keyboard{menuButton()})
		return
	}

	var b strings.Builder
	b.WriteString("Сообщения от кандидатов:\n")
	ids := make([]uint, 0, len(unread))
	for _, m := range unread {
		b.WriteString(fmt.Sprintf("\n@%s (%d):\n%s\n", m.Username, m.TelegramID, m.Text))
		ids = append(ids, m.ID)
	}
	if err := e.messages.MarkRead(ids); err != nil {
		log.Error().Err(err).Msg("Failed to mark messages read")
	}
	e.render(ctx, chatID, msgID, b.String(), transport.Keyboard{menuButton()})
}

func statusLabel(status string) string {
	if status == model.StatusApproved {
		return "принято"
	}
	return "отклонено"
}

func (e *Engine) render(ctx context.Context, chatID int64, msgID int, text string, kb transport.Keyboard) int {
	op := transport.RenderOp{ChatID: chatID, Op: transport.OpSend, Text: text, Keyboard: kb}
	if msgID != 0 {
		op.Op = transport.OpEdit
		op.MessageID = msgID
	}
	id, err := e.renderer.Render(ctx, op)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("Render failed")
	}
	return id
}

func (e *Engine) send(ctx context.Context, chatID int64, text string) {
	e.render(ctx, chatID, 0, text, nil)
}
