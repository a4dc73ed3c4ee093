package messenger

import (
	"context"
	"fmt"
	"os"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"broadcastbot/internal/storage"
	"broadcastbot/pkg/telegoapi"
)

// TelegoMessenger implements Messenger for one channel's bot credential.
type TelegoMessenger struct {
	bot telegoapi.BotAPI
}

// NewTelego wraps a bot API instance as a Messenger.
func NewTelego(bot telegoapi.BotAPI) *TelegoMessenger {
	return &TelegoMessenger{bot: bot}
}

// SendText delivers MarkdownV2 text to one recipient.
func (m *TelegoMessenger) SendText(ctx context.Context, recipientID int64, text string) (int, error) {
	msg, err := m.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID:    tu.ID(recipientID),
		Text:      text,
		ParseMode: telego.ModeMarkdownV2,
	})
	if err != nil {
		return 0, fmt.Errorf("sendText to %d: %w", recipientID, err)
	}
	return msg.MessageID, nil
}

// SendMediaGroup delivers an ordered gallery to one recipient. Each item
// is uploaded from its local path because file ids minted by another bot
// credential are not replayable here. The caption goes on the first item
// only; per-item spoiler flags are passed through unchanged.
func (m *TelegoMessenger) SendMediaGroup(ctx context.Context, recipientID int64, items []storage.MediaItem, caption string) ([]int, error) {
	files := make([]*os.File, 0, len(items))
	defer func() {
		for _, file := range files {
			file.Close()
		}
	}()

	inputMedia := make([]telego.InputMedia, 0, len(items))
	for i, item := range items {
		file, err := os.Open(item.Path)
		if err != nil {
			return nil, fmt.Errorf("open media item %s: %w", item.Path, err)
		}
		files = append(files, file)

		itemCaption := ""
		parseMode := ""
		if i == 0 && caption != "" {
			itemCaption = caption
			parseMode = telego.ModeMarkdownV2
		}
		switch item.Kind {
		case storage.MediaPhoto:
			inputMedia = append(inputMedia, &telego.InputMediaPhoto{
				Type:       telego.MediaTypePhoto,
				Media:      tu.File(file),
				Caption:    itemCaption,
				ParseMode:  parseMode,
				HasSpoiler: item.Spoiler,
			})
		case storage.MediaVideo:
			inputMedia = append(inputMedia, &telego.InputMediaVideo{
				Type:       telego.MediaTypeVideo,
				Media:      tu.File(file),
				Caption:    itemCaption,
				ParseMode:  parseMode,
				HasSpoiler: item.Spoiler,
			})
		default:
			return nil, fmt.Errorf("unsupported media kind %q", item.Kind)
		}
	}

	msgs, err := m.bot.SendMediaGroup(ctx, &telego.SendMediaGroupParams{
		ChatID: tu.ID(recipientID),
		Media:  inputMedia,
	})
	if err != nil {
		return nil, fmt.Errorf("sendMediaGroup to %d: %w", recipientID, err)
	}
	ids := make([]int, 0, len(msgs))
	for _, msg := range msgs {
		ids = append(ids, msg.MessageID)
	}
	return ids, nil
}

// SendVideoNote uploads the square video at path to one recipient. The
// file is reopened per call because the transport consumes the reader.
// The returned file id is the remote handle the upload was assigned.
func (m *TelegoMessenger) SendVideoNote(ctx context.Context, recipientID int64, path string) (int, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("open video note %s: %w", path, err)
	}
	defer file.Close()

	msg, err := m.bot.SendVideoNote(ctx, &telego.SendVideoNoteParams{
		ChatID:    tu.ID(recipientID),
		VideoNote: tu.File(file),
	})
	if err != nil {
		return 0, "", fmt.Errorf("sendVideoNote to %d: %w", recipientID, err)
	}
	remoteID := ""
	if msg.VideoNote != nil {
		remoteID = msg.VideoNote.FileID
	}
	return msg.MessageID, remoteID, nil
}

// SendVoice uploads the voice note at path to one recipient and returns
// the remote file id the upload was assigned.
func (m *TelegoMessenger) SendVoice(ctx context.Context, recipientID int64, path string) (int, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, "", fmt.Errorf("open voice note %s: %w", path, err)
	}
	defer file.Close()

	msg, err := m.bot.SendVoice(ctx, &telego.SendVoiceParams{
		ChatID: tu.ID(recipientID),
		Voice:  tu.File(file),
	})
	if err != nil {
		return 0, "", fmt.Errorf("sendVoice to %d: %w", recipientID, err)
	}
	remoteID := ""
	if msg.Voice != nil {
		remoteID = msg.Voice.FileID
	}
	return msg.MessageID, remoteID, nil
}

// EditText replaces the text of a previously sent message.
func (m *TelegoMessenger) EditText(ctx context.Context, recipientID int64, messageID int, text string) error {
	_, err := m.bot.EditMessageText(ctx, &telego.EditMessageTextParams{
		ChatID:    tu.ID(recipientID),
		MessageID: messageID,
		Text:      text,
		ParseMode: telego.ModeMarkdownV2,
	})
	if err != nil {
		return fmt.Errorf("editText %d/%d: %w", recipientID, messageID, err)
	}
	return nil
}

// EditCaption replaces the caption of a previously sent media message.
func (m *TelegoMessenger) EditCaption(ctx context.Context, recipientID int64, messageID int, caption string) error {
	_, err := m.bot.EditMessageCaption(ctx, &telego.EditMessageCaptionParams{
		ChatID:    tu.ID(recipientID),
		MessageID: messageID,
		Caption:   caption,
		ParseMode: telego.ModeMarkdownV2,
	})
	if err != nil {
		return fmt.Errorf("editCaption %d/%d: %w", recipientID, messageID, err)
	}
	return nil
}

// DeleteMessage removes a previously sent message.
func (m *TelegoMessenger) DeleteMessage(ctx context.Context, recipientID int64, messageID int) error {
	err := m.bot.DeleteMessage(ctx, &telego.DeleteMessageParams{
		ChatID:    tu.ID(recipientID),
		MessageID: messageID,
	})
	if err != nil {
		return fmt.Errorf("deleteMessage %d/%d: %w", recipientID, messageID, err)
	}
	return nil
}
