package messenger

import (
	"context"

	"github.com/stretchr/testify/mock"

	"broadcastbot/internal/storage"
)

// Mock is a testify mock implementing Messenger, shared by the dispatch
// and lifecycle test suites.
type Mock struct {
	mock.Mock
}

func (m *Mock) SendText(ctx context.Context, recipientID int64, text string) (int, error) {
	args := m.Called(ctx, recipientID, text)
	return args.Int(0), args.Error(1)
}

func (m *Mock) SendMediaGroup(ctx context.Context, recipientID int64, items []storage.MediaItem, caption string) ([]int, error) {
	args := m.Called(ctx, recipientID, items, caption)
	if ids, ok := args.Get(0).([]int); ok {
		return ids, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Mock) SendVideoNote(ctx context.Context, recipientID int64, path string) (int, string, error) {
	args := m.Called(ctx, recipientID, path)
	return args.Int(0), args.String(1), args.Error(2)
}

func (m *Mock) SendVoice(ctx context.Context, recipientID int64, path string) (int, string, error) {
	args := m.Called(ctx, recipientID, path)
	return args.Int(0), args.String(1), args.Error(2)
}

func (m *Mock) EditText(ctx context.Context, recipientID int64, messageID int, text string) error {
	args := m.Called(ctx, recipientID, messageID, text)
	return args.Error(0)
}

func (m *Mock) EditCaption(ctx context.Context, recipientID int64, messageID int, caption string) error {
	args := m.Called(ctx, recipientID, messageID, caption)
	return args.Error(0)
}

func (m *Mock) DeleteMessage(ctx context.Context, recipientID int64, messageID int) error {
	args := m.Called(ctx, recipientID, messageID)
	return args.Error(0)
}
