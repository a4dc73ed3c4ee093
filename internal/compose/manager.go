// Package compose drives the operator dialogue that assembles a post
// draft step by step and hands finished drafts to the dispatch engine.
// The dialogue is single-session per operator: each operator has at most
// one in-flight Session, and re-entering the menu replaces it.
package compose

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	sentry "github.com/getsentry/sentry-go"
	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	"github.com/nicksnyder/go-i18n/v2/i18n"

	"broadcastbot/internal/channel"
	"broadcastbot/internal/dispatch"
	"broadcastbot/internal/lifecycle"
	"broadcastbot/internal/locales"
	"broadcastbot/internal/markup"
	"broadcastbot/internal/media"
	"broadcastbot/internal/storage"
	"broadcastbot/pkg/telegoapi"
)

// Dispatcher delivers a finished draft to a channel's recipient set.
type Dispatcher interface {
	Dispatch(ctx context.Context, draft dispatch.Draft, ch *channel.Channel) (dispatch.Result, error)
}

// Lifecycle edits or deletes an already-dispatched post everywhere it
// was delivered.
type Lifecycle interface {
	Edit(ctx context.Context, postID, newContent string) (lifecycle.Report, error)
	Delete(ctx context.Context, postID string) (lifecycle.Report, error)
	Find(ctx context.Context, postID string) ([]*channel.Channel, error)
}

// FileDownloader fetches an attachment from the transport into a local
// temporary file and returns its path.
type FileDownloader interface {
	Download(ctx context.Context, fileID string) (string, error)
}

// Deps bundles the collaborators of a composition Manager.
type Deps struct {
	Bot        telegoapi.BotAPI
	Registry   *channel.Registry
	Dispatcher Dispatcher
	Lifecycle  Lifecycle
	Transcoder media.Transcoder
	Downloader FileDownloader
}

// Manager walks operators through the composition dialogue. Sessions are
// keyed by operator id; a per-operator lock serializes steps, so updates
// arriving concurrently for one operator are applied one at a time.
type Manager struct {
	mu       sync.RWMutex
	sessions map[int64]*Session
	locks    map[int64]*sync.Mutex

	bot        telegoapi.BotAPI
	registry   *channel.Registry
	dispatcher Dispatcher
	lifecycle  Lifecycle
	transcoder media.Transcoder
	downloader FileDownloader
	localizer  *i18n.Localizer
}

// NewManager creates a composition manager from its dependencies.
func NewManager(deps Deps) (*Manager, error) {
	if deps.Bot == nil {
		return nil, fmt.Errorf("bot API cannot be nil")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("channel registry cannot be nil")
	}
	if deps.Dispatcher == nil {
		return nil, fmt.Errorf("dispatcher cannot be nil")
	}
	if deps.Lifecycle == nil {
		return nil, fmt.Errorf("lifecycle manager cannot be nil")
	}
	if deps.Transcoder == nil {
		return nil, fmt.Errorf("transcoder cannot be nil")
	}
	if deps.Downloader == nil {
		return nil, fmt.Errorf("file downloader cannot be nil")
	}
	return &Manager{
		sessions:   make(map[int64]*Session),
		locks:      make(map[int64]*sync.Mutex),
		bot:        deps.Bot,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		lifecycle:  deps.Lifecycle,
		transcoder: deps.Transcoder,
		downloader: deps.Downloader,
		localizer:  locales.NewLocalizer(locales.GetDefaultLanguageTag().String()),
	}, nil
}

// Session returns the current session for an operator, creating a fresh
// one resting at the main menu if none exists.
func (m *Manager) Session(operatorID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[operatorID]
	if !ok {
		s = newSession()
		m.sessions[operatorID] = s
	}
	return s
}

// operatorLock returns the mutex serializing dialogue steps for one
// operator. The transport loop handles updates concurrently, but session
// state must only ever advance one step at a time.
func (m *Manager) operatorLock(operatorID int64) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock, ok := m.locks[operatorID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[operatorID] = lock
	}
	return lock
}

// resetSession discards the operator's in-progress session, removing any
// staged temporary files, and returns the fresh replacement.
func (m *Manager) resetSession(operatorID int64) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.sessions[operatorID]; ok {
		old.cleanupTemp()
	}
	s := newSession()
	m.sessions[operatorID] = s
	return s
}

// HandleMessage processes one operator message against the operator's
// current session step. The caller has already authenticated the sender.
// Steps of the same operator never run concurrently; the per-operator
// lock is held for the whole step.
func (m *Manager) HandleMessage(ctx context.Context, message telego.Message) error {
	operatorID := message.From.ID
	chatID := message.Chat.ID
	text := strings.TrimSpace(message.Text)

	lock := m.operatorLock(operatorID)
	lock.Lock()
	defer lock.Unlock()

	// Commands act from any step.
	switch text {
	case "/start":
		m.resetSession(operatorID)
		return m.reply(ctx, chatID, "MsgMainMenu", nil, mainMenuKeyboard(m.localizer))
	case "/cancel":
		m.resetSession(operatorID)
		if err := m.reply(ctx, chatID, "MsgCancelled", nil, mainMenuKeyboard(m.localizer)); err != nil {
			return err
		}
		return nil
	}

	session := m.Session(operatorID)
	log.Printf("[Compose Operator:%d] Step %s", operatorID, session.Step)

	// /done is only meaningful while collecting media; any other slash
	// command is unknown here.
	if strings.HasPrefix(text, "/") && !(text == "/done" && session.Step == StepMediaIntake) {
		return m.reply(ctx, chatID, "MsgUnknownCommand", nil, nil)
	}

	switch session.Step {
	case StepMenu:
		return m.handleMenu(ctx, chatID, session, text)
	case StepKindSelect:
		return m.handleKindSelect(ctx, chatID, session, text)
	case StepTextIntake:
		return m.handleTextIntake(ctx, chatID, session, message)
	case StepSpoilerText:
		return m.handleSpoilerText(ctx, chatID, session, text)
	case StepSpoilerScope:
		return m.handleSpoilerScope(ctx, chatID, session, text)
	case StepFragmentIntake:
		return m.handleFragmentIntake(ctx, chatID, session, message)
	case StepMediaIntake:
		return m.handleMediaIntake(ctx, chatID, session, message)
	case StepSpoilerMedia:
		return m.handleSpoilerMedia(ctx, chatID, session, text)
	case StepVideoNoteIntake:
		return m.handleVideoNoteIntake(ctx, chatID, session, message)
	case StepVoiceIntake:
		return m.handleVoiceIntake(ctx, chatID, session, message)
	case StepChannelSelect:
		return m.handleChannelSelect(ctx, chatID, operatorID, session, text)
	case StepPostLookup:
		return m.handlePostLookup(ctx, chatID, operatorID, session, text)
	case StepEditIntake:
		return m.handleEditIntake(ctx, chatID, operatorID, session, message)
	default:
		log.Printf("[Compose Operator:%d] Unknown step %q, resetting", operatorID, session.Step)
		m.resetSession(operatorID)
		return m.reply(ctx, chatID, "MsgMainMenu", nil, mainMenuKeyboard(m.localizer))
	}
}

func (m *Manager) handleMenu(ctx context.Context, chatID int64, session *Session, text string) error {
	switch {
	case m.isButton(text, "BtnSendPost"):
		*session = *newSession()
		session.Step = StepKindSelect
		return m.reply(ctx, chatID, "MsgChoosePostKind", nil, kindKeyboard(m.localizer))
	case m.isButton(text, "BtnVideoNote"):
		*session = *newSession()
		session.Step = StepVideoNoteIntake
		return m.reply(ctx, chatID, "MsgSendVideoNote", nil, removeKeyboard())
	case m.isButton(text, "BtnVoice"):
		*session = *newSession()
		session.Step = StepVoiceIntake
		return m.reply(ctx, chatID, "MsgSendVoice", nil, removeKeyboard())
	case m.isButton(text, "BtnEditPost"):
		session.Action = actionEdit
		session.Step = StepPostLookup
		return m.reply(ctx, chatID, "MsgEnterPostID", nil, removeKeyboard())
	case m.isButton(text, "BtnDeletePost"):
		session.Action = actionDelete
		session.Step = StepPostLookup
		return m.reply(ctx, chatID, "MsgEnterPostID", nil, removeKeyboard())
	default:
		return m.reply(ctx, chatID, "MsgUseButtons", nil, mainMenuKeyboard(m.localizer))
	}
}

func (m *Manager) handleKindSelect(ctx context.Context, chatID int64, session *Session, text string) error {
	switch {
	case m.isButton(text, "BtnKindText"):
		session.Step = StepTextIntake
		return m.reply(ctx, chatID, "MsgEnterText", nil, removeKeyboard())
	case m.isButton(text, "BtnKindMedia"):
		session.Media = []storage.MediaItem{}
		session.Step = StepMediaIntake
		return m.reply(ctx, chatID, "MsgSendMedia", nil, removeKeyboard())
	default:
		return m.reply(ctx, chatID, "MsgUseButtons", nil, kindKeyboard(m.localizer))
	}
}

func (m *Manager) handleTextIntake(ctx context.Context, chatID int64, session *Session, message telego.Message) error {
	if message.Text == "" {
		return m.reply(ctx, chatID, "MsgEnterText", nil, nil)
	}
	session.Text = message.Text
	session.Step = StepSpoilerText
	return m.reply(ctx, chatID, "MsgSpoilerDecisionText", nil, yesNoKeyboard(m.localizer))
}

func (m *Manager) handleSpoilerText(ctx context.Context, chatID int64, session *Session, text string) error {
	switch {
	case m.isButton(text, "BtnYes"):
		session.Step = StepSpoilerScope
		return m.reply(ctx, chatID, "MsgSpoilerScope", nil, scopeKeyboard(m.localizer))
	case m.isButton(text, "BtnNo"):
		session.Media = []storage.MediaItem{}
		session.Step = StepMediaIntake
		return m.reply(ctx, chatID, "MsgSendMedia", nil, removeKeyboard())
	default:
		return m.reply(ctx, chatID, "MsgAnswerYesNo", nil, yesNoKeyboard(m.localizer))
	}
}

func (m *Manager) handleSpoilerScope(ctx context.Context, chatID int64, session *Session, text string) error {
	switch {
	case m.isButton(text, "BtnHideAll"):
		session.Text = markup.WrapSpoiler(session.Text)
		session.Media = []storage.MediaItem{}
		session.Step = StepMediaIntake
		return m.reply(ctx, chatID, "MsgSendMedia", nil, removeKeyboard())
	case m.isButton(text, "BtnHidePart"):
		session.Step = StepFragmentIntake
		return m.reply(ctx, chatID, "MsgEnterFragment", nil, removeKeyboard())
	default:
		return m.reply(ctx, chatID, "MsgUseButtons", nil, scopeKeyboard(m.localizer))
	}
}

func (m *Manager) handleFragmentIntake(ctx context.Context, chatID int64, session *Session, message telego.Message) error {
	wrapped, err := markup.WrapFragment(session.Text, message.Text)
	if err != nil {
		if errors.Is(err, markup.ErrFragmentNotFound) {
			return m.reply(ctx, chatID, "MsgFragmentNotFound", nil, nil)
		}
		return err
	}
	session.Text = wrapped
	session.Media = []storage.MediaItem{}
	session.Step = StepMediaIntake
	if err := m.reply(ctx, chatID, "MsgFragmentHidden", nil, nil); err != nil {
		return err
	}
	return m.reply(ctx, chatID, "MsgSendMedia", nil, removeKeyboard())
}

func (m *Manager) handleMediaIntake(ctx context.Context, chatID int64, session *Session, message telego.Message) error {
	if strings.TrimSpace(message.Text) == "/done" {
		return m.finalizeDraft(ctx, chatID, session)
	}

	item, ok := mediaItemFromMessage(message)
	if !ok {
		return m.reply(ctx, chatID, "MsgMediaExpected", nil, nil)
	}

	// The file id above belongs to the admin bot; channel bots cannot
	// replay it. Fetch the file now so dispatch can upload from disk.
	path, err := m.downloader.Download(ctx, item.FileID)
	if err != nil {
		log.Printf("[Compose Chat:%d] Failed to download media item: %v", chatID, err)
		sentry.CaptureException(err)
		return m.reply(ctx, chatID, "MsgMediaFetchFailed", nil, nil)
	}
	item.Path = path
	session.TempPaths = append(session.TempPaths, path)

	session.Staged = &item
	session.Step = StepSpoilerMedia
	return m.reply(ctx, chatID, "MsgMediaSpoilerDecision", nil, yesNoKeyboard(m.localizer))
}

func (m *Manager) handleSpoilerMedia(ctx context.Context, chatID int64, session *Session, text string) error {
	var spoiler bool
	switch {
	case m.isButton(text, "BtnYes"):
		spoiler = true
	case m.isButton(text, "BtnNo"):
		spoiler = false
	default:
		return m.reply(ctx, chatID, "MsgAnswerYesNo", nil, yesNoKeyboard(m.localizer))
	}

	if session.Staged != nil {
		session.Staged.Spoiler = spoiler
		session.Media = append(session.Media, *session.Staged)
		session.Staged = nil
	}
	session.Step = StepMediaIntake
	return m.reply(ctx, chatID, "MsgMediaAdded", nil, removeKeyboard())
}

// finalizeDraft derives the post kind from what the accumulator holds
// and moves on to channel selection, or back to the menu when there is
// nothing to send.
func (m *Manager) finalizeDraft(ctx context.Context, chatID int64, session *Session) error {
	var kind storage.PostKind
	switch {
	case session.Text != "" && len(session.Media) > 0:
		kind = storage.KindTextMedia
	case session.Text != "":
		kind = storage.KindText
	case len(session.Media) > 0:
		kind = storage.KindMedia
	default:
		session.Step = StepMenu
		return m.reply(ctx, chatID, "MsgNothingToSend", nil, mainMenuKeyboard(m.localizer))
	}

	session.Draft = &dispatch.Draft{
		Kind:    kind,
		Content: session.Text,
		Media:   session.Media,
	}
	session.Step = StepChannelSelect
	return m.reply(ctx, chatID, "MsgSelectChannel", nil, channelKeyboard(m.registry.Names()))
}

func (m *Manager) handleVideoNoteIntake(ctx context.Context, chatID int64, session *Session, message telego.Message) error {
	fileID := videoFileID(message)
	if fileID == "" {
		return m.reply(ctx, chatID, "MsgVideoExpected", nil, nil)
	}

	srcPath, err := m.downloader.Download(ctx, fileID)
	if err != nil {
		log.Printf("[Compose Chat:%d] Failed to download video: %v", chatID, err)
		sentry.CaptureException(err)
		return m.reply(ctx, chatID, "MsgVideoProcessFailed", nil, nil)
	}
	session.TempPaths = append(session.TempPaths, srcPath)

	notePath, err := m.transcoder.SquareVideoNote(ctx, srcPath)
	if err != nil {
		session.cleanupTemp()
		if errors.Is(err, media.ErrMediaConstraint) {
			return m.reply(ctx, chatID, "MsgVideoTooLarge", nil, nil)
		}
		log.Printf("[Compose Chat:%d] Failed to transcode video: %v", chatID, err)
		sentry.CaptureException(err)
		return m.reply(ctx, chatID, "MsgVideoProcessFailed", nil, nil)
	}
	if notePath != srcPath {
		session.TempPaths = append(session.TempPaths, notePath)
	}

	session.Draft = &dispatch.Draft{Kind: storage.KindVideoNote, VideoNotePath: notePath}
	session.Step = StepChannelSelect
	return m.reply(ctx, chatID, "MsgSelectChannel", nil, channelKeyboard(m.registry.Names()))
}

func (m *Manager) handleVoiceIntake(ctx context.Context, chatID int64, session *Session, message telego.Message) error {
	if message.Voice == nil {
		return m.reply(ctx, chatID, "MsgVoiceExpected", nil, nil)
	}

	path, err := m.downloader.Download(ctx, message.Voice.FileID)
	if err != nil {
		log.Printf("[Compose Chat:%d] Failed to download voice note: %v", chatID, err)
		sentry.CaptureException(err)
		return m.reply(ctx, chatID, "MsgMediaFetchFailed", nil, nil)
	}
	session.TempPaths = append(session.TempPaths, path)

	session.Draft = &dispatch.Draft{Kind: storage.KindVoice, VoicePath: path}
	session.Step = StepChannelSelect
	return m.reply(ctx, chatID, "MsgSelectChannel", nil, channelKeyboard(m.registry.Names()))
}

func (m *Manager) handleChannelSelect(ctx context.Context, chatID, operatorID int64, session *Session, text string) error {
	ch, err := m.registry.Resolve(text)
	if err != nil {
		return m.reply(ctx, chatID, "MsgChannelNotFound", nil, channelKeyboard(m.registry.Names()))
	}
	if session.Draft == nil {
		m.resetSession(operatorID)
		return m.reply(ctx, chatID, "MsgInternalError", nil, mainMenuKeyboard(m.localizer))
	}

	result, err := m.dispatcher.Dispatch(ctx, *session.Draft, ch)
	if err != nil {
		log.Printf("[Compose Operator:%d] Dispatch via %s failed: %v", operatorID, ch.Name, err)
		sentry.CaptureException(err)
		m.resetSession(operatorID)
		return m.reply(ctx, chatID, "MsgInternalError", nil, mainMenuKeyboard(m.localizer))
	}

	m.resetSession(operatorID)
	return m.reply(ctx, chatID, "MsgDispatchDone", map[string]interface{}{
		"Channel": ch.Name,
		"PostID":  result.PostID,
		"Count":   result.Succeeded,
		"Total":   result.Attempted,
	}, mainMenuKeyboard(m.localizer))
}

func (m *Manager) handlePostLookup(ctx context.Context, chatID, operatorID int64, session *Session, text string) error {
	postID := strings.TrimSpace(text)
	holders, err := m.lifecycle.Find(ctx, postID)
	if err != nil {
		log.Printf("[Compose Operator:%d] Post lookup failed: %v", operatorID, err)
		sentry.CaptureException(err)
		return m.reply(ctx, chatID, "MsgInternalError", nil, nil)
	}
	if len(holders) == 0 {
		return m.reply(ctx, chatID, "MsgPostNotFound", nil, nil)
	}

	session.PostID = postID
	switch session.Action {
	case actionEdit:
		session.Step = StepEditIntake
		return m.reply(ctx, chatID, "MsgEnterNewText", nil, nil)
	case actionDelete:
		if _, err := m.lifecycle.Delete(ctx, postID); err != nil && !errors.Is(err, storage.ErrPostNotFound) {
			log.Printf("[Compose Operator:%d] Delete of %s failed: %v", operatorID, postID, err)
			sentry.CaptureException(err)
			m.resetSession(operatorID)
			return m.reply(ctx, chatID, "MsgInternalError", nil, mainMenuKeyboard(m.localizer))
		}
		m.resetSession(operatorID)
		return m.reply(ctx, chatID, "MsgPostDeleted", nil, mainMenuKeyboard(m.localizer))
	default:
		m.resetSession(operatorID)
		return m.reply(ctx, chatID, "MsgUseButtons", nil, mainMenuKeyboard(m.localizer))
	}
}

func (m *Manager) handleEditIntake(ctx context.Context, chatID, operatorID int64, session *Session, message telego.Message) error {
	if message.Text == "" {
		return m.reply(ctx, chatID, "MsgEnterNewText", nil, nil)
	}
	if _, err := m.lifecycle.Edit(ctx, session.PostID, message.Text); err != nil && !errors.Is(err, storage.ErrPostNotFound) {
		log.Printf("[Compose Operator:%d] Edit of %s failed: %v", operatorID, session.PostID, err)
		sentry.CaptureException(err)
		m.resetSession(operatorID)
		return m.reply(ctx, chatID, "MsgInternalError", nil, mainMenuKeyboard(m.localizer))
	}
	m.resetSession(operatorID)
	return m.reply(ctx, chatID, "MsgPostUpdated", nil, mainMenuKeyboard(m.localizer))
}

// reply sends a localized message, optionally with a reply keyboard.
func (m *Manager) reply(ctx context.Context, chatID int64, msgID string, data map[string]interface{}, kb telego.ReplyMarkup) error {
	params := tu.Message(tu.ID(chatID), locales.GetMessage(m.localizer, msgID, data, nil))
	if kb != nil {
		params.ReplyMarkup = kb
	}
	_, err := m.bot.SendMessage(ctx, params)
	return err
}

// isButton reports whether the input matches a localized button label.
func (m *Manager) isButton(input, btnID string) bool {
	label := locales.GetMessage(m.localizer, btnID, nil, nil)
	return strings.EqualFold(strings.TrimSpace(input), label)
}

// mediaItemFromMessage extracts a gallery item from an attachment
// message. Photos use the largest available size; videos may also arrive
// as documents with a video mime type.
func mediaItemFromMessage(message telego.Message) (storage.MediaItem, bool) {
	if len(message.Photo) > 0 {
		best := message.Photo[0]
		for _, p := range message.Photo {
			if p.FileSize > best.FileSize {
				best = p
			}
		}
		return storage.MediaItem{Kind: storage.MediaPhoto, FileID: best.FileID}, true
	}
	if message.Video != nil {
		return storage.MediaItem{Kind: storage.MediaVideo, FileID: message.Video.FileID}, true
	}
	if message.Document != nil && strings.HasPrefix(message.Document.MimeType, "video/") {
		return storage.MediaItem{Kind: storage.MediaVideo, FileID: message.Document.FileID}, true
	}
	return storage.MediaItem{}, false
}

// videoFileID extracts the file id of a video sent either natively or as
// a document.
func videoFileID(message telego.Message) string {
	if message.Video != nil {
		return message.Video.FileID
	}
	if message.Document != nil && strings.HasPrefix(message.Document.MimeType, "video/") {
		return message.Document.FileID
	}
	return ""
}
