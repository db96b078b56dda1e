package transport

import "context"

type Update struct {
	Message *Message
}

type Message struct {
	ID           int
	ChatID       int64
	FromID       int64
	FromUsername string
	Text         string
	IsGroup      bool
}

type ChatTarget struct {
	ChatID int64
}

type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Sink is the messaging platform's delivery surface: composed messages out,
// previously sent status messages deleted.
type Sink interface {
	SendText(ctx context.Context, to ChatTarget, text string) (MessageRef, error)

	// SendPhotos sends the text block followed by each image as an
	// independent message, preserving input order.
	SendPhotos(ctx context.Context, to ChatTarget, text string, images [][]byte) error

	// SendAlbum delivers text plus images as one bundled unit.
	SendAlbum(ctx context.Context, to ChatTarget, text string, images [][]byte) error

	// SendDocument delivers a generated file: data when non-nil,
	// otherwise the file at path.
	SendDocument(ctx context.Context, to ChatTarget, name string, data []byte, path string) error

	DeleteMessage(ctx context.Context, ref MessageRef) error

	// SupportsAlbum reports whether the platform can bundle messages.
	SupportsAlbum() bool
}

// Adapter is a platform connection: it feeds incoming updates and
// implements the delivery sink.
type Adapter interface {
	Sink

	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	// Identity returns the connected bot account name, for logs and the
	// watch config's target-identity check.
	Identity() string
}
