package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"broadcastbot/internal/channel"
	"broadcastbot/internal/messenger"
	"broadcastbot/internal/storage"
)

func seedPost(t *testing.T, store storage.PostStore, post storage.Post, deliveries []storage.Delivery) {
	t.Helper()
	require.NoError(t, store.SavePost(context.Background(), &post))
	for i := range deliveries {
		require.NoError(t, store.RecordDelivery(context.Background(), &deliveries[i]))
	}
}

func TestEditTextPost(t *testing.T) {
	msgr := new(messenger.Mock)
	store := storage.NewMemoryPostStore("West")
	registry := channel.NewRegistry([]*channel.Channel{
		{Name: "West", Messenger: msgr, Store: store},
	})

	seedPost(t, store,
		storage.Post{ID: "p1", Content: "old", Kind: storage.KindText},
		[]storage.Delivery{
			{PostID: "p1", RecipientID: 1, MessageID: 11},
			{PostID: "p1", RecipientID: 2, MessageID: 12},
		})

	msgr.On("EditText", mock.Anything, int64(1), 11, `new\.`).Return(nil)
	msgr.On("EditText", mock.Anything, int64(2), 12, `new\.`).Return(errors.New("message gone"))

	report, err := NewManager(registry).Edit(context.Background(), "p1", "new.")
	require.NoError(t, err)
	assert.Equal(t, Report{Channels: 1, Succeeded: 1, Failed: 1}, report)
	msgr.AssertExpectations(t)

	// Content is updated in place; kind and deliveries are untouched.
	post, err := store.GetPost(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "new.", post.Content)
	assert.Equal(t, storage.KindText, post.Kind)

	deliveries, err := store.ListDeliveries(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	assert.Equal(t, 11, deliveries[0].MessageID)
	assert.Equal(t, 12, deliveries[1].MessageID)
}

func TestEditTextMediaPostEditsCaption(t *testing.T) {
	msgr := new(messenger.Mock)
	store := storage.NewMemoryPostStore("West")
	registry := channel.NewRegistry([]*channel.Channel{
		{Name: "West", Messenger: msgr, Store: store},
	})

	media := []storage.MediaItem{{Kind: storage.MediaPhoto, FileID: "f1"}}
	seedPost(t, store,
		storage.Post{ID: "p2", Content: "caption", Kind: storage.KindTextMedia, Media: media},
		[]storage.Delivery{{PostID: "p2", RecipientID: 5, MessageID: 50}})

	msgr.On("EditCaption", mock.Anything, int64(5), 50, "updated").Return(nil)

	report, err := NewManager(registry).Edit(context.Background(), "p2", "updated")
	require.NoError(t, err)
	assert.Equal(t, Report{Channels: 1, Succeeded: 1}, report)
	msgr.AssertExpectations(t)

	post, err := store.GetPost(context.Background(), "p2")
	require.NoError(t, err)
	assert.Equal(t, media, post.Media)
	assert.Equal(t, storage.KindTextMedia, post.Kind)
}

func TestEditUnknownPost(t *testing.T) {
	registry := channel.NewRegistry([]*channel.Channel{
		{Name: "West", Messenger: new(messenger.Mock), Store: storage.NewMemoryPostStore("West")},
	})
	_, err := NewManager(registry).Edit(context.Background(), "missing", "text")
	assert.ErrorIs(t, err, storage.ErrPostNotFound)
}

func TestDeleteAcrossChannels(t *testing.T) {
	msgrWest := new(messenger.Mock)
	msgrCaptain := new(messenger.Mock)
	storeWest := storage.NewMemoryPostStore("West")
	storeCaptain := storage.NewMemoryPostStore("Captain")
	registry := channel.NewRegistry([]*channel.Channel{
		{Name: "West", Messenger: msgrWest, Store: storeWest},
		{Name: "Captain", Messenger: msgrCaptain, Store: storeCaptain},
	})

	seedPost(t, storeWest,
		storage.Post{ID: "p3", Content: "hello", Kind: storage.KindText},
		[]storage.Delivery{{PostID: "p3", RecipientID: 1, MessageID: 21}})
	seedPost(t, storeCaptain,
		storage.Post{ID: "p3", Content: "hello", Kind: storage.KindText},
		[]storage.Delivery{
			{PostID: "p3", RecipientID: 2, MessageID: 31},
			{PostID: "p3", RecipientID: 3, MessageID: 32},
		})

	msgrWest.On("DeleteMessage", mock.Anything, int64(1), 21).Return(nil)
	msgrCaptain.On("DeleteMessage", mock.Anything, int64(2), 31).Return(errors.New("already deleted"))
	msgrCaptain.On("DeleteMessage", mock.Anything, int64(3), 32).Return(nil)

	report, err := NewManager(registry).Delete(context.Background(), "p3")
	require.NoError(t, err)
	assert.Equal(t, Report{Channels: 2, Succeeded: 2, Failed: 1}, report)

	// Both stores drop the post row and every delivery record, even where
	// a remote delete failed.
	for _, store := range []storage.PostStore{storeWest, storeCaptain} {
		_, err := store.GetPost(context.Background(), "p3")
		assert.ErrorIs(t, err, storage.ErrPostNotFound)
		deliveries, err := store.ListDeliveries(context.Background(), "p3")
		require.NoError(t, err)
		assert.Empty(t, deliveries)
	}
}

func TestDeleteUnknownPostHasNoSideEffects(t *testing.T) {
	msgr := new(messenger.Mock)
	store := storage.NewMemoryPostStore("West")
	registry := channel.NewRegistry([]*channel.Channel{
		{Name: "West", Messenger: msgr, Store: store},
	})

	_, err := NewManager(registry).Delete(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrPostNotFound)
	msgr.AssertNotCalled(t, "DeleteMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestFind(t *testing.T) {
	storeWest := storage.NewMemoryPostStore("West")
	storeCaptain := storage.NewMemoryPostStore("Captain")
	registry := channel.NewRegistry([]*channel.Channel{
		{Name: "West", Store: storeWest},
		{Name: "Captain", Store: storeCaptain},
	})
	seedPost(t, storeCaptain, storage.Post{ID: "p4", Kind: storage.KindVoice}, nil)

	holders, err := NewManager(registry).Find(context.Background(), "p4")
	require.NoError(t, err)
	require.Len(t, holders, 1)
	assert.Equal(t, "Captain", holders[0].Name)
}
