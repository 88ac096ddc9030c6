package transport

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Renderer encapsulates the edit-or-send fallback cascade so the state
// machine never branches on transport failures. Render returns the id of
// the message that is now live for the operation's content.
type Renderer struct {
	t Transport
}

func NewRenderer(t Transport) *Renderer {
	return &Renderer{t: t}
}

func (r *Renderer) Render(ctx context.Context, op RenderOp) (int, error) {
	switch op.Op {
	case OpSend:
		return r.t.Send(ctx, op.ChatID, op.Text, op.Keyboard, op.ParseMode)

	case OpEdit:
		err := r.t.Edit(ctx, op.ChatID, op.MessageID, op.Text, op.Keyboard, op.ParseMode)
		if err == nil {
			return op.MessageID, nil
		}
		// The target may be too old, deleted, or carry identical content.
		// Fall through to a fresh message and hand back the new handle.
		log.Warn().Err(err).Int64("chat_id", op.ChatID).Int("message_id", op.MessageID).
			Msg("Edit failed, sending a new message instead")
		return r.t.Send(ctx, op.ChatID, op.Text, op.Keyboard, op.ParseMode)

	case OpDelete:
		if err := r.t.Delete(ctx, op.ChatID, op.MessageID); err != nil {
			log.Warn().Err(err).Int64("chat_id", op.ChatID).Int("message_id", op.MessageID).
				Msg("Delete failed")
		}
		return 0, nil

	case OpDocument:
		ds, ok := r.t.(DocumentSender)
		if !ok {
			log.Warn().Int64("chat_id", op.ChatID).Str("file", op.FilePath).
				Msg("Transport cannot send documents, attachment skipped")
			return 0, nil
		}
		return ds.SendDocument(ctx, op.ChatID, op.FilePath, op.Text)
	}
	return 0, nil
}
