package transport

import "context"

// EventKind classifies inbound events from the messaging platform.
type EventKind string

const (
	EventText     EventKind = "text"
	EventCallback EventKind = "callback"
	EventDocument EventKind = "document"
)

// UserInfo is the identity attached to an inbound event.
type UserInfo struct {
	ID        int64
	Username  string
	FirstName string
	LastName  string
}

// DocumentInfo is an uploaded file handle; the engine never downloads the
// content, it only passes the handle through.
type DocumentInfo struct {
	FileID   string
	FileName string
}

// Event is the abstract inbound message the engine consumes.
type Event struct {
	ChatID    int64
	User      UserInfo
	Kind      EventKind
	Text      string
	Document  *DocumentInfo
	MessageID int
}

// Button is one inline keyboard button; Data is an opaque callback token.
type Button struct {
	Label string
	Data  string
}

// Keyboard is rows of inline buttons.
type Keyboard [][]Button

// Op selects the outbound operation.
type Op string

const (
	OpSend     Op = "send"
	OpEdit     Op = "edit"
	OpDelete   Op = "delete"
	OpDocument Op = "document"
)

// RenderOp is the abstract render instruction the engine emits. FilePath is
// only set for OpDocument.
type RenderOp struct {
	ChatID    int64
	Op        Op
	MessageID int
	Text      string
	Keyboard  Keyboard
	ParseMode string
	FilePath  string
}

// Transport performs outbound messaging operations. Send returns the id of
// the created message.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string, kb Keyboard, parseMode string) (int, error)
	Edit(ctx context.Context, chatID int64, messageID int, text string, kb Keyboard, parseMode string) error
	Delete(ctx context.Context, chatID int64, messageID int) error
}

// DocumentSender is implemented by transports that can attach local files.
// SendDocument returns the id of the created message.
type DocumentSender interface {
	SendDocument(ctx context.Context, chatID int64, path, caption string) (int, error)
}
