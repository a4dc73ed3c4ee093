package compose

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"broadcastbot/internal/channel"
	"broadcastbot/internal/dispatch"
	"broadcastbot/internal/lifecycle"
	"broadcastbot/internal/locales"
	"broadcastbot/internal/media"
	"broadcastbot/internal/storage"
)

// --- Mocks ---

// MockBot is a mock implementing the telegoapi.BotAPI interface
type MockBot struct {
	mock.Mock

	// sentTexts accumulates the text of every SendMessage call for
	// assertions about the dialogue flow.
	sentTexts []string
}

func (m *MockBot) SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	m.sentTexts = append(m.sentTexts, params.Text)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendMediaGroup(ctx context.Context, params *telego.SendMediaGroupParams) ([]telego.Message, error) {
	args := m.Called(ctx, params)
	if msgs, ok := args.Get(0).([]telego.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendVideoNote(ctx context.Context, params *telego.SendVideoNoteParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SendVoice(ctx context.Context, params *telego.SendVoiceParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) EditMessageText(ctx context.Context, params *telego.EditMessageTextParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) EditMessageCaption(ctx context.Context, params *telego.EditMessageCaptionParams) (*telego.Message, error) {
	args := m.Called(ctx, params)
	if msg, ok := args.Get(0).(*telego.Message); ok {
		return msg, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) DeleteMessage(ctx context.Context, params *telego.DeleteMessageParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *MockBot) GetMe(ctx context.Context) (*telego.User, error) {
	args := m.Called(ctx)
	if user, ok := args.Get(0).(*telego.User); ok {
		return user, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) GetFile(ctx context.Context, params *telego.GetFileParams) (*telego.File, error) {
	args := m.Called(ctx, params)
	if file, ok := args.Get(0).(*telego.File); ok {
		return file, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockBot) SetMyCommands(ctx context.Context, params *telego.SetMyCommandsParams) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

// MockDispatcher is a mock implementing the Dispatcher interface
type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, draft dispatch.Draft, ch *channel.Channel) (dispatch.Result, error) {
	args := m.Called(ctx, draft, ch)
	return args.Get(0).(dispatch.Result), args.Error(1)
}

// MockLifecycle is a mock implementing the Lifecycle interface
type MockLifecycle struct {
	mock.Mock
}

func (m *MockLifecycle) Edit(ctx context.Context, postID, newContent string) (lifecycle.Report, error) {
	args := m.Called(ctx, postID, newContent)
	return args.Get(0).(lifecycle.Report), args.Error(1)
}

func (m *MockLifecycle) Delete(ctx context.Context, postID string) (lifecycle.Report, error) {
	args := m.Called(ctx, postID)
	return args.Get(0).(lifecycle.Report), args.Error(1)
}

func (m *MockLifecycle) Find(ctx context.Context, postID string) ([]*channel.Channel, error) {
	args := m.Called(ctx, postID)
	if channels, ok := args.Get(0).([]*channel.Channel); ok {
		return channels, args.Error(1)
	}
	return nil, args.Error(1)
}

// MockTranscoder is a mock implementing the media.Transcoder interface
type MockTranscoder struct {
	mock.Mock
}

func (m *MockTranscoder) Probe(ctx context.Context, path string) (media.Info, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(media.Info), args.Error(1)
}

func (m *MockTranscoder) SquareVideoNote(ctx context.Context, path string) (string, error) {
	args := m.Called(ctx, path)
	return args.String(0), args.Error(1)
}

// MockDownloader is a mock implementing the FileDownloader interface
type MockDownloader struct {
	mock.Mock
}

func (m *MockDownloader) Download(ctx context.Context, fileID string) (string, error) {
	args := m.Called(ctx, fileID)
	return args.String(0), args.Error(1)
}

// --- Test Suite Setup ---

const (
	testOperatorID  = int64(98765)
	testChatID      = int64(98765)
	testChannelName = "main"
)

type composeSuite struct {
	mockBot        *MockBot
	mockDispatcher *MockDispatcher
	mockLifecycle  *MockLifecycle
	mockTranscoder *MockTranscoder
	mockDownloader *MockDownloader
	manager        *Manager
}

func setupComposeSuite(t *testing.T) *composeSuite {
	t.Helper()
	locales.Init("en")

	mockBot := new(MockBot)
	mockDispatcher := new(MockDispatcher)
	mockLifecycle := new(MockLifecycle)
	mockTranscoder := new(MockTranscoder)
	mockDownloader := new(MockDownloader)

	registry := channel.NewRegistry([]*channel.Channel{{Name: testChannelName}})

	manager, err := NewManager(Deps{
		Bot:        mockBot,
		Registry:   registry,
		Dispatcher: mockDispatcher,
		Lifecycle:  mockLifecycle,
		Transcoder: mockTranscoder,
		Downloader: mockDownloader,
	})
	require.NoError(t, err)

	// Dialogue replies are not the subject of most tests; accept them all.
	mockBot.On("SendMessage", mock.Anything, mock.AnythingOfType("*telego.SendMessageParams")).
		Return(&telego.Message{}, nil)

	return &composeSuite{
		mockBot:        mockBot,
		mockDispatcher: mockDispatcher,
		mockLifecycle:  mockLifecycle,
		mockTranscoder: mockTranscoder,
		mockDownloader: mockDownloader,
		manager:        manager,
	}
}

// send feeds one operator text message through the manager.
func (s *composeSuite) send(t *testing.T, text string) {
	t.Helper()
	err := s.manager.HandleMessage(context.Background(), textMessage(text))
	require.NoError(t, err)
}

// label resolves a localized button caption so tests press the same
// buttons an operator would see.
func label(btnID string) string {
	return locales.GetMessage(locales.NewLocalizer("en"), btnID, nil, nil)
}

func textMessage(text string) telego.Message {
	return telego.Message{
		From: &telego.User{ID: testOperatorID, LanguageCode: "en"},
		Chat: telego.Chat{ID: testChatID},
		Text: text,
	}
}

func photoMessage(fileID string, fileSize int) telego.Message {
	msg := textMessage("")
	msg.Photo = []telego.PhotoSize{
		{FileID: fileID + "-small", FileSize: fileSize / 2},
		{FileID: fileID, FileSize: fileSize},
	}
	return msg
}

// --- Tests ---

func TestComposeTextFlowDispatches(t *testing.T) {
	s := setupComposeSuite(t)

	var dispatched dispatch.Draft
	s.mockDispatcher.On("Dispatch", mock.Anything, mock.AnythingOfType("dispatch.Draft"), mock.AnythingOfType("*channel.Channel")).
		Run(func(args mock.Arguments) {
			dispatched = args.Get(1).(dispatch.Draft)
		}).
		Return(dispatch.Result{PostID: "post-1", Attempted: 3, Succeeded: 3}, nil).Once()

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))
	s.send(t, "hello world")
	s.send(t, label("BtnNo")) // no spoiler
	s.send(t, "/done")        // no media
	s.send(t, testChannelName)

	s.mockDispatcher.AssertExpectations(t)
	assert.Equal(t, storage.KindText, dispatched.Kind)
	assert.Equal(t, "hello world", dispatched.Content)
	assert.Empty(t, dispatched.Media)

	// The dialogue is back at the menu after the report.
	assert.Equal(t, StepMenu, s.manager.Session(testOperatorID).Step)
}

func TestComposeFragmentSpoiler(t *testing.T) {
	s := setupComposeSuite(t)

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))
	s.send(t, "secret code: 1234")
	s.send(t, label("BtnYes"))
	s.send(t, label("BtnHidePart"))
	s.send(t, "1234")

	session := s.manager.Session(testOperatorID)
	assert.Equal(t, "secret code: ||1234||", session.Text)
	assert.Equal(t, StepMediaIntake, session.Step)
}

func TestComposeFragmentNotFoundStays(t *testing.T) {
	s := setupComposeSuite(t)

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))
	s.send(t, "secret code: 1234")
	s.send(t, label("BtnYes"))
	s.send(t, label("BtnHidePart"))
	s.send(t, "not present")

	session := s.manager.Session(testOperatorID)
	assert.Equal(t, StepFragmentIntake, session.Step)
	assert.Equal(t, "secret code: 1234", session.Text)
}

func TestComposeWholeTextSpoiler(t *testing.T) {
	s := setupComposeSuite(t)

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))
	s.send(t, "all hidden")
	s.send(t, label("BtnYes"))
	s.send(t, label("BtnHideAll"))

	session := s.manager.Session(testOperatorID)
	assert.Equal(t, "||all hidden||", session.Text)
	assert.Equal(t, StepMediaIntake, session.Step)
}

func TestComposeMediaSpoilerDecision(t *testing.T) {
	s := setupComposeSuite(t)

	s.mockDownloader.On("Download", mock.Anything, "photo-1").Return("/tmp/photo-1.jpg", nil).Once()

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindMedia"))

	err := s.manager.HandleMessage(context.Background(), photoMessage("photo-1", 2048))
	require.NoError(t, err)
	assert.Equal(t, StepSpoilerMedia, s.manager.Session(testOperatorID).Step)

	// An answer that is neither yes nor no re-prompts in place.
	s.send(t, "maybe")
	assert.Equal(t, StepSpoilerMedia, s.manager.Session(testOperatorID).Step)

	s.send(t, label("BtnYes"))

	s.mockDownloader.AssertExpectations(t)
	session := s.manager.Session(testOperatorID)
	require.Len(t, session.Media, 1)
	assert.Equal(t, storage.MediaPhoto, session.Media[0].Kind)
	assert.Equal(t, "photo-1", session.Media[0].FileID) // largest size wins
	assert.Equal(t, "/tmp/photo-1.jpg", session.Media[0].Path)
	assert.Contains(t, session.TempPaths, "/tmp/photo-1.jpg")
	assert.True(t, session.Media[0].Spoiler)
	assert.Equal(t, StepMediaIntake, session.Step)
}

func TestComposeMediaFetchFailureStays(t *testing.T) {
	s := setupComposeSuite(t)

	s.mockDownloader.On("Download", mock.Anything, "photo-3").
		Return("", errors.New("file gone")).Once()

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindMedia"))

	err := s.manager.HandleMessage(context.Background(), photoMessage("photo-3", 2048))
	require.NoError(t, err)

	s.mockDownloader.AssertExpectations(t)
	session := s.manager.Session(testOperatorID)
	assert.Equal(t, StepMediaIntake, session.Step)
	assert.Nil(t, session.Staged)
	assert.Empty(t, session.Media)
}

func TestComposeTextAndMediaDerivesMixedKind(t *testing.T) {
	s := setupComposeSuite(t)

	var dispatched dispatch.Draft
	s.mockDispatcher.On("Dispatch", mock.Anything, mock.AnythingOfType("dispatch.Draft"), mock.AnythingOfType("*channel.Channel")).
		Run(func(args mock.Arguments) {
			dispatched = args.Get(1).(dispatch.Draft)
		}).
		Return(dispatch.Result{PostID: "post-2", Attempted: 1, Succeeded: 1}, nil).Once()

	s.mockDownloader.On("Download", mock.Anything, "photo-2").Return("/tmp/photo-2.jpg", nil).Once()

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))
	s.send(t, "caption text")
	s.send(t, label("BtnNo"))

	err := s.manager.HandleMessage(context.Background(), photoMessage("photo-2", 4096))
	require.NoError(t, err)
	s.send(t, label("BtnNo"))
	s.send(t, "/done")
	s.send(t, testChannelName)

	s.mockDispatcher.AssertExpectations(t)
	assert.Equal(t, storage.KindTextMedia, dispatched.Kind)
	assert.Equal(t, "caption text", dispatched.Content)
	require.Len(t, dispatched.Media, 1)
	assert.False(t, dispatched.Media[0].Spoiler)

	// The channel bots upload the item from the fetched local file; the
	// file id the admin bot received is not usable with their credentials.
	assert.Equal(t, "/tmp/photo-2.jpg", dispatched.Media[0].Path)
}

func TestComposeNothingToSendReturnsToMenu(t *testing.T) {
	s := setupComposeSuite(t)

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindMedia"))
	s.send(t, "/done")

	assert.Equal(t, StepMenu, s.manager.Session(testOperatorID).Step)
	s.mockDispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestComposeUnknownChannelReprompts(t *testing.T) {
	s := setupComposeSuite(t)

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))
	s.send(t, "hello")
	s.send(t, label("BtnNo"))
	s.send(t, "/done")
	s.send(t, "nosuchchannel")

	assert.Equal(t, StepChannelSelect, s.manager.Session(testOperatorID).Step)
	s.mockDispatcher.AssertNotCalled(t, "Dispatch", mock.Anything, mock.Anything, mock.Anything)
}

func TestComposeCancelResetsSession(t *testing.T) {
	s := setupComposeSuite(t)

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))
	s.send(t, "half-written")
	s.send(t, "/cancel")

	session := s.manager.Session(testOperatorID)
	assert.Equal(t, StepMenu, session.Step)
	assert.Empty(t, session.Text)
	assert.Nil(t, session.Draft)
}

func TestComposeVideoNoteConstraintStays(t *testing.T) {
	s := setupComposeSuite(t)

	s.mockDownloader.On("Download", mock.Anything, "video-1").Return("/tmp/video-1.mp4", nil).Once()
	s.mockTranscoder.On("SquareVideoNote", mock.Anything, "/tmp/video-1.mp4").
		Return("", media.ErrMediaConstraint).Once()

	s.send(t, "/start")
	s.send(t, label("BtnVideoNote"))

	msg := textMessage("")
	msg.Video = &telego.Video{FileID: "video-1"}
	err := s.manager.HandleMessage(context.Background(), msg)
	require.NoError(t, err)

	s.mockDownloader.AssertExpectations(t)
	s.mockTranscoder.AssertExpectations(t)
	assert.Equal(t, StepVideoNoteIntake, s.manager.Session(testOperatorID).Step)
}

func TestComposeVideoNoteSuccess(t *testing.T) {
	s := setupComposeSuite(t)

	s.mockDownloader.On("Download", mock.Anything, "video-2").Return("/tmp/video-2.mp4", nil).Once()
	s.mockTranscoder.On("SquareVideoNote", mock.Anything, "/tmp/video-2.mp4").
		Return("/tmp/video-2.note.mp4", nil).Once()

	s.send(t, "/start")
	s.send(t, label("BtnVideoNote"))

	msg := textMessage("")
	msg.Video = &telego.Video{FileID: "video-2"}
	err := s.manager.HandleMessage(context.Background(), msg)
	require.NoError(t, err)

	session := s.manager.Session(testOperatorID)
	require.NotNil(t, session.Draft)
	assert.Equal(t, storage.KindVideoNote, session.Draft.Kind)
	assert.Equal(t, "/tmp/video-2.note.mp4", session.Draft.VideoNotePath)
	assert.Equal(t, StepChannelSelect, session.Step)
}

func TestComposeVoiceFlow(t *testing.T) {
	s := setupComposeSuite(t)

	var dispatched dispatch.Draft
	s.mockDispatcher.On("Dispatch", mock.Anything, mock.AnythingOfType("dispatch.Draft"), mock.AnythingOfType("*channel.Channel")).
		Run(func(args mock.Arguments) {
			dispatched = args.Get(1).(dispatch.Draft)
		}).
		Return(dispatch.Result{PostID: "post-3", Attempted: 2, Succeeded: 2}, nil).Once()

	s.mockDownloader.On("Download", mock.Anything, "voice-1").Return("/tmp/voice-1.oga", nil).Once()

	s.send(t, "/start")
	s.send(t, label("BtnVoice"))

	msg := textMessage("")
	msg.Voice = &telego.Voice{FileID: "voice-1"}
	err := s.manager.HandleMessage(context.Background(), msg)
	require.NoError(t, err)

	s.send(t, testChannelName)

	s.mockDispatcher.AssertExpectations(t)
	s.mockDownloader.AssertExpectations(t)
	assert.Equal(t, storage.KindVoice, dispatched.Kind)
	// The draft carries the fetched local file, not the admin bot's file
	// id, so each channel bot can upload it under its own credential.
	assert.Equal(t, "/tmp/voice-1.oga", dispatched.VoicePath)
}

func TestComposeEditFlow(t *testing.T) {
	s := setupComposeSuite(t)

	holders := []*channel.Channel{{Name: testChannelName}}
	s.mockLifecycle.On("Find", mock.Anything, "post-9").Return(holders, nil).Once()
	s.mockLifecycle.On("Edit", mock.Anything, "post-9", "updated text").
		Return(lifecycle.Report{Channels: 1, Succeeded: 2}, nil).Once()

	s.send(t, "/start")
	s.send(t, label("BtnEditPost"))
	s.send(t, "post-9")
	s.send(t, "updated text")

	s.mockLifecycle.AssertExpectations(t)
	assert.Equal(t, StepMenu, s.manager.Session(testOperatorID).Step)
}

func TestComposeDeleteFlow(t *testing.T) {
	s := setupComposeSuite(t)

	holders := []*channel.Channel{{Name: testChannelName}}
	s.mockLifecycle.On("Find", mock.Anything, "post-9").Return(holders, nil).Once()
	s.mockLifecycle.On("Delete", mock.Anything, "post-9").
		Return(lifecycle.Report{Channels: 1, Succeeded: 2}, nil).Once()

	s.send(t, "/start")
	s.send(t, label("BtnDeletePost"))
	s.send(t, "post-9")

	s.mockLifecycle.AssertExpectations(t)
	assert.Equal(t, StepMenu, s.manager.Session(testOperatorID).Step)
}

func TestComposeLookupUnknownPostStays(t *testing.T) {
	s := setupComposeSuite(t)

	s.mockLifecycle.On("Find", mock.Anything, "missing").Return([]*channel.Channel{}, nil).Once()

	s.send(t, "/start")
	s.send(t, label("BtnDeletePost"))
	s.send(t, "missing")

	assert.Equal(t, StepPostLookup, s.manager.Session(testOperatorID).Step)
	s.mockLifecycle.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestComposeUnauthorizedStepInputReprompts(t *testing.T) {
	s := setupComposeSuite(t)

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))
	s.send(t, "text here")
	s.send(t, "whatever") // neither yes nor no

	assert.Equal(t, StepSpoilerText, s.manager.Session(testOperatorID).Step)
}

func TestComposeDispatchErrorResetsToMenu(t *testing.T) {
	s := setupComposeSuite(t)

	s.mockDispatcher.On("Dispatch", mock.Anything, mock.AnythingOfType("dispatch.Draft"), mock.AnythingOfType("*channel.Channel")).
		Return(dispatch.Result{}, errors.New("store unavailable")).Once()

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))
	s.send(t, "hello")
	s.send(t, label("BtnNo"))
	s.send(t, "/done")
	s.send(t, testChannelName)

	s.mockDispatcher.AssertExpectations(t)
	assert.Equal(t, StepMenu, s.manager.Session(testOperatorID).Step)
}

func TestComposeConcurrentMessagesSerialized(t *testing.T) {
	s := setupComposeSuite(t)

	s.send(t, "/start")
	s.send(t, label("BtnSendPost"))
	s.send(t, label("BtnKindText"))

	// The transport loop handles each update on its own goroutine. Steps
	// for one operator must still apply one at a time.
	texts := []string{"one", "two", "three", "four", "five", "six", "seven", "eight"}
	var wg sync.WaitGroup
	for _, text := range texts {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			assert.NoError(t, s.manager.HandleMessage(context.Background(), textMessage(text)))
		}(text)
	}
	wg.Wait()

	// Exactly one message became the draft text; the rest arrived at the
	// spoiler question and re-prompted without touching it.
	session := s.manager.Session(testOperatorID)
	assert.Equal(t, StepSpoilerText, session.Step)
	assert.Contains(t, texts, session.Text)
}
