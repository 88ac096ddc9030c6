package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// TelegramClient talks to the Bot API over plain HTTP. One client per bot
// token; both bots share the configured timeout.
type TelegramClient struct {
	base   string
	token  string
	client *http.Client
}

func NewTelegramClient(base, token string, timeout time.Duration) *TelegramClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &TelegramClient{
		base:   base,
		token:  token,
		client: &http.Client{Timeout: timeout},
	}
}

type inlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type replyMarkup struct {
	InlineKeyboard [][]inlineButton `json:"inline_keyboard"`
}

func markupFor(kb Keyboard) *replyMarkup {
	if len(kb) == 0 {
		return nil
	}
	m := &replyMarkup{}
	for _, row := range kb {
		var r []inlineButton
		for _, b := range row {
			r = append(r, inlineButton{Text: b.Label, CallbackData: b.Data})
		}
		m.InlineKeyboard = append(m.InlineKeyboard, r)
	}
	return m
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description"`
	Result      json.RawMessage `json:"result"`
}

func (c *TelegramClient) call(ctx context.Context, method string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.base, c.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s request failed: %w", method, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", method, err)
	}

	var api apiResponse
	if err := json.Unmarshal(data, &api); err != nil {
		return fmt.Errorf("decode %s response: %w", method, err)
	}
	if !api.OK {
		return fmt.Errorf("%s rejected: %s", method, api.Description)
	}
	if out != nil && len(api.Result) > 0 {
		if err := json.Unmarshal(api.Result, out); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}

func (c *TelegramClient) Send(ctx context.Context, chatID int64, text string, kb Keyboard, parseMode string) (int, error) {
	payload := map[string]any{
		"chat_id": chatID,
		"text":    text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	if m := markupFor(kb); m != nil {
		payload["reply_markup"] = m
	}

	var result struct {
		MessageID int `json:"message_id"`
	}
	if err := c.call(ctx, "sendMessage", payload, &result); err != nil {
		return 0, err
	}
	return result.MessageID, nil
}

func (c *TelegramClient) Edit(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard, parseMode string) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if parseMode != "" {
		payload["parse_mode"] = parseMode
	}
	if m := markupFor(kb); m != nil {
		payload["reply_markup"] = m
	}
	return c.call(ctx, "editMessageText", payload, nil)
}

func (c *TelegramClient) Delete(ctx context.Context, chatID int64, messageID int) error {
	payload := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}
	return c.call(ctx, "deleteMessage", payload, nil)
}

// SendDocument uploads a local file as a document attachment via multipart
// form data, which is the only upload encoding the Bot API accepts.
func (c *TelegramClient) SendDocument(ctx context.Context, chatID int64, path, caption string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open document %s: %w", path, err)
	}
	defer file.Close()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return 0, fmt.Errorf("write chat_id field: %w", err)
	}
	if caption != "" {
		if err := form.WriteField("caption", caption); err != nil {
			return 0, fmt.Errorf("write caption field: %w", err)
		}
	}
	part, err := form.CreateFormFile("document", filepath.Base(path))
	if err != nil {
		return 0, fmt.Errorf("create document part: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return 0, fmt.Errorf("copy document %s: %w", path, err)
	}
	if err := form.Close(); err != nil {
		return 0, fmt.Errorf("finalize form: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendDocument", c.base, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return 0, fmt.Errorf("build sendDocument request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sendDocument request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read sendDocument response: %w", err)
	}
	var api apiResponse
	if err := json.Unmarshal(data, &api); err != nil {
		return 0, fmt.Errorf("decode sendDocument response: %w", err)
	}
	if !api.OK {
		return 0, fmt.Errorf("sendDocument rejected: %s", api.Description)
	}
	var result struct {
		MessageID int `json:"message_id"`
	}
	if len(api.Result) > 0 {
		if err := json.Unmarshal(api.Result, &result); err != nil {
			return 0, fmt.Errorf("decode sendDocument result: %w", err)
		}
	}
	return result.MessageID, nil
}

// AnswerCallback acknowledges a callback press so the client stops showing
// the progress spinner. Failures are logged only.
func (c *TelegramClient) AnswerCallback(ctx context.Context, callbackID string) {
	payload := map[string]any{"callback_query_id": callbackID}
	if err := c.call(ctx, "answerCallbackQuery", payload, nil); err != nil {
		log.Warn().Err(err).Msg("answerCallbackQuery failed")
	}
}
