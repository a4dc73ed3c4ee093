// Package dispatch delivers one composed post to every recipient of a
// channel. Recipients are independent: one recipient's failure is logged
// and never aborts or retries delivery to the others.
package dispatch

import (
	"context"
	"fmt"
	"log"
	"sync"

	sentry "github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"broadcastbot/internal/channel"
	"broadcastbot/internal/markup"
	"broadcastbot/internal/storage"
)

// Draft is a finished, not-yet-persisted post produced by the
// composition dialogue. Kind determines which payload fields are set:
// Content and/or Media for post kinds, VideoNotePath for video notes,
// VoicePath for voice notes. Media items and the note paths point at
// local temp files the channel bots upload from.
type Draft struct {
	Kind          storage.PostKind
	Content       string
	Media         []storage.MediaItem
	VideoNotePath string
	VoicePath     string
}

// Result reports the outcome of one dispatch.
type Result struct {
	PostID    string
	Attempted int
	Succeeded int
}

// Engine fans a draft out to a channel's recipient set with bounded
// concurrency.
type Engine struct {
	workers int
}

// DefaultWorkers bounds fan-out concurrency when no explicit worker
// count is configured.
const DefaultWorkers = 4

// NewEngine creates a dispatch engine with the given worker count.
func NewEngine(workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{workers: workers}
}

// Dispatch persists the draft as a new post, snapshots the channel's
// recipient set and sends to every recipient exactly once. Successful
// sends are recorded in the channel's delivery index; failures are
// logged and skipped. The returned Result carries the fresh post id and
// the number of recipients reached.
func (e *Engine) Dispatch(ctx context.Context, draft Draft, ch *channel.Channel) (Result, error) {
	postID := uuid.NewString()

	post := &storage.Post{
		ID:      postID,
		Content: draft.Content,
		Kind:    draft.Kind,
		Media:   draft.Media,
		Channel: ch.Name,
	}
	if err := ch.Store.SavePost(ctx, post); err != nil {
		return Result{}, fmt.Errorf("failed to persist post: %w", err)
	}

	recipients, err := ch.Recipients.IDs(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	// The caption is formatted once; every recipient receives the same
	// escaped text.
	content := ""
	if draft.Content != "" {
		content = markup.EscapeMarkdownV2(draft.Content)
	}

	var (
		mu        sync.Mutex
		succeeded int
		mediaRef  string
	)
	jobs := make(chan int64)
	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for recipientID := range jobs {
				messageIDs, remoteRef, err := e.sendOne(ctx, ch, draft, content, recipientID)
				if err != nil {
					log.Printf("[Dispatch Channel:%s Recipient:%d] Send failed: %v", ch.Name, recipientID, err)
					sentry.CaptureException(fmt.Errorf("dispatch to %d via %s: %w", recipientID, ch.Name, err))
					continue
				}
				for _, messageID := range messageIDs {
					d := &storage.Delivery{
						PostID:      postID,
						RecipientID: recipientID,
						MessageID:   messageID,
					}
					if err := ch.Store.RecordDelivery(ctx, d); err != nil {
						log.Printf("[Dispatch Channel:%s Recipient:%d] Failed to record delivery: %v", ch.Name, recipientID, err)
						sentry.CaptureException(err)
					}
				}
				mu.Lock()
				succeeded++
				if mediaRef == "" && remoteRef != "" {
					mediaRef = remoteRef
				}
				mu.Unlock()
			}
		}()
	}
	for _, recipientID := range recipients {
		jobs <- recipientID
	}
	close(jobs)
	wg.Wait()

	// The first successful upload yields a file id owned by the channel
	// bot. Keep it on the post so the reference outlives the local temp
	// file the upload came from.
	if mediaRef != "" {
		post.MediaRef = mediaRef
		if err := ch.Store.SavePost(ctx, post); err != nil {
			log.Printf("[Dispatch Channel:%s Post:%s] Failed to store media reference: %v", ch.Name, postID, err)
			sentry.CaptureException(err)
		}
	}

	log.Printf("[Dispatch Channel:%s Post:%s] Reached %d of %d recipients", ch.Name, postID, succeeded, len(recipients))
	return Result{PostID: postID, Attempted: len(recipients), Succeeded: succeeded}, nil
}

// sendOne performs the kind-matching transport call for one recipient
// and returns the remote message ids it produced. For single-file kinds
// it also returns the remote file id assigned to the upload.
func (e *Engine) sendOne(ctx context.Context, ch *channel.Channel, draft Draft, content string, recipientID int64) ([]int, string, error) {
	if ch.Limiter != nil {
		ch.Limiter.Take()
	}

	switch draft.Kind {
	case storage.KindText:
		id, err := ch.Messenger.SendText(ctx, recipientID, content)
		if err != nil {
			return nil, "", err
		}
		return []int{id}, "", nil
	case storage.KindMedia:
		ids, err := ch.Messenger.SendMediaGroup(ctx, recipientID, draft.Media, "")
		return ids, "", err
	case storage.KindTextMedia:
		ids, err := ch.Messenger.SendMediaGroup(ctx, recipientID, draft.Media, content)
		return ids, "", err
	case storage.KindVideoNote:
		id, remoteRef, err := ch.Messenger.SendVideoNote(ctx, recipientID, draft.VideoNotePath)
		if err != nil {
			return nil, "", err
		}
		return []int{id}, remoteRef, nil
	case storage.KindVoice:
		id, remoteRef, err := ch.Messenger.SendVoice(ctx, recipientID, draft.VoicePath)
		if err != nil {
			return nil, "", err
		}
		return []int{id}, remoteRef, nil
	default:
		return nil, "", fmt.Errorf("unsupported post kind %q", draft.Kind)
	}
}
