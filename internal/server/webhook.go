package server

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/vkotov/talentflow/internal/recruiter"
	"github.com/vkotov/talentflow/internal/transport"
)

// EventSink accepts decoded platform events for asynchronous processing.
type EventSink interface {
	Dispatch(ev transport.Event)
}

// CallbackAcker acknowledges callback presses so the client's spinner
// stops; acking is independent of event processing.
type CallbackAcker interface {
	AnswerCallback(ctx context.Context, callbackID string)
}

// Telegram update payload, reduced to the fields the funnel consumes.
type tgUser struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgDocument struct {
	FileID   string `json:"file_id"`
	FileName string `json:"file_name"`
}

type tgMessage struct {
	MessageID int         `json:"message_id"`
	From      *tgUser     `json:"from"`
	Chat      tgChat      `json:"chat"`
	Text      string      `json:"text"`
	Caption   string      `json:"caption"`
	Document  *tgDocument `json:"document"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	From    *tgUser    `json:"from"`
	Message *tgMessage `json:"message"`
	Data    string     `json:"data"`
}

type tgUpdate struct {
	UpdateID      int              `json:"update_id"`
	Message       *tgMessage       `json:"message"`
	CallbackQuery *tgCallbackQuery `json:"callback_query"`
}

// WebhookController terminates the two bot webhooks and the ops API.
type WebhookController struct {
	candidate    EventSink
	recruiter    EventSink
	candidateBot CallbackAcker
	recruiterBot CallbackAcker
	metrics      recruiter.MetricsService
}

func NewWebhookController(
	candidate EventSink,
	recruiterSink EventSink,
	candidateBot CallbackAcker,
	recruiterBot CallbackAcker,
	metrics recruiter.MetricsService,
) *WebhookController {
	return &WebhookController{
		candidate:    candidate,
		recruiter:    recruiterSink,
		candidateBot: candidateBot,
		recruiterBot: recruiterBot,
		metrics:      metrics,
	}
}

// CandidateWebhook godoc
// @Summary Candidate bot update webhook
// @Description Accepts a Telegram update for the candidate bot and queues it for processing.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param update body object true "Telegram update"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Router /webhook/candidate [post]
func (c *WebhookController) CandidateWebhook(ctx *gin.Context) {
	c.ingest(ctx, c.candidate, c.candidateBot)
}

// RecruiterWebhook godoc
// @Summary Recruiter bot update webhook
// @Description Accepts a Telegram update for the recruiter bot and queues it for processing.
// @Tags webhooks
// @Accept json
// @Produce json
// @Param update body object true "Telegram update"
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Router /webhook/recruiter [post]
func (c *WebhookController) RecruiterWebhook(ctx *gin.Context) {
	c.ingest(ctx, c.recruiter, c.recruiterBot)
}

func (c *WebhookController) ingest(ctx *gin.Context, sink EventSink, acker CallbackAcker) {
	var update tgUpdate
	if err := ctx.ShouldBindJSON(&update); err != nil {
		log.Warn().Err(err).Msg("Malformed webhook update")
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "malformed update"})
		return
	}

	ev, callbackID, ok := toEvent(update)
	if ok {
		if callbackID != "" && acker != nil {
			acker.AnswerCallback(ctx.Request.Context(), callbackID)
		}
		sink.Dispatch(ev)
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true})
}

// toEvent flattens a Telegram update into the engine's event shape. Updates
// without chat context (channel posts, edits) are dropped.
func toEvent(update tgUpdate) (transport.Event, string, bool) {
	if cq := update.CallbackQuery; cq != nil && cq.Message != nil {
		return transport.Event{
			ChatID:    cq.Message.Chat.ID,
			Kind:      transport.EventCallback,
			Text:      cq.Data,
			MessageID: cq.Message.MessageID,
			User:      userInfo(cq.From),
		}, cq.ID, true
	}

	if msg := update.Message; msg != nil {
		ev := transport.Event{
			ChatID:    msg.Chat.ID,
			MessageID: msg.MessageID,
			User:      userInfo(msg.From),
		}
		if msg.Document != nil {
			ev.Kind = transport.EventDocument
			ev.Text = msg.Caption
			ev.Document = &transport.DocumentInfo{
				FileID:   msg.Document.FileID,
				FileName: msg.Document.FileName,
			}
		} else {
			ev.Kind = transport.EventText
			ev.Text = msg.Text
		}
		return ev, "", true
	}

	return transport.Event{}, "", false
}

func userInfo(u *tgUser) transport.UserInfo {
	if u == nil {
		return transport.UserInfo{}
	}
	return transport.UserInfo{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
}

// Metrics godoc
// @Summary Funnel metrics
// @Description Returns the hiring funnel snapshot: per-test taken/passed counts, pending reviews and requests.
// @Tags ops
// @Produce json
// @Success 200 {object} recruiter.Metrics
// @Failure 500 {object} map[string]string
// @Router /metrics [get]
func (c *WebhookController) Metrics(ctx *gin.Context) {
	m, err := c.metrics.Collect()
	if err != nil {
		log.Error().Err(err).Msg("Metrics collection failed")
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "metrics unavailable"})
		return
	}
	ctx.JSON(http.StatusOK, m)
}

// Health godoc
// @Summary Liveness probe
// @Tags ops
// @Produce json
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (c *WebhookController) Health(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// RegisterRoutes attaches the webhook and ops endpoints.
func RegisterRoutes(router *gin.Engine, ctrl *WebhookController) {
	router.POST("/webhook/candidate", ctrl.CandidateWebhook)
	router.POST("/webhook/recruiter", ctrl.RecruiterWebhook)
	router.GET("/healthz", ctrl.Health)

	api := router.Group("/api/v1")
	{
		api.GET("/metrics", ctrl.Metrics)
	}
}
