// Package messenger abstracts the outbound message transport of one
// channel credential. Every call addresses a single recipient and fails
// independently of calls to other recipients.
package messenger

import (
	"context"

	"broadcastbot/internal/storage"
)

// Messenger is the per-channel transport capability used by dispatch and
// lifecycle fan-out. Implementations must fail fast rather than hang; the
// caller treats each error as scoped to one recipient.
type Messenger interface {
	// SendText delivers escaped MarkdownV2 text and returns the created
	// message id.
	SendText(ctx context.Context, recipientID int64, text string) (int, error)
	// SendMediaGroup delivers an ordered gallery, uploading each item
	// from its local path. File ids are scoped to the bot that obtained
	// them, so items captured by another bot must go up from disk. The
	// caption, if any, is attached to the first item only. One message id
	// is returned per transport message produced.
	SendMediaGroup(ctx context.Context, recipientID int64, items []storage.MediaItem, caption string) ([]int, error)
	// SendVideoNote uploads the square video at the given local path and
	// returns the created message id plus the remote file id the
	// transport assigned to the upload.
	SendVideoNote(ctx context.Context, recipientID int64, path string) (int, string, error)
	// SendVoice uploads the voice note at the given local path and
	// returns the created message id plus the remote file id.
	SendVoice(ctx context.Context, recipientID int64, path string) (int, string, error)

	// EditText replaces the text of a previously sent text message.
	EditText(ctx context.Context, recipientID int64, messageID int, text string) error
	// EditCaption replaces the caption of a previously sent media message.
	EditCaption(ctx context.Context, recipientID int64, messageID int, caption string) error
	// DeleteMessage removes a previously sent message.
	DeleteMessage(ctx context.Context, recipientID int64, messageID int) error
}
