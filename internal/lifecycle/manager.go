// Package lifecycle mutates or removes an already-dispatched post across
// every channel that holds it, using the per-channel delivery index.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"

	sentry "github.com/getsentry/sentry-go"

	"broadcastbot/internal/channel"
	"broadcastbot/internal/markup"
	"broadcastbot/internal/storage"
)

// Report aggregates the outcome of one edit or delete across channels.
// Per-recipient failures are counted, not individually surfaced.
type Report struct {
	Channels  int
	Succeeded int
	Failed    int
}

// Manager performs cross-channel edit and delete. One post id is
// processed end-to-end per call; the caller serializes lifecycle actions
// on the same post.
type Manager struct {
	registry *channel.Registry
}

// NewManager creates a lifecycle manager over the configured channels.
func NewManager(registry *channel.Registry) *Manager {
	return &Manager{registry: registry}
}

// Edit replaces the stored content of the post in every channel that
// holds it, then edits the text or caption of every delivered remote
// message. Kind and media are never touched. Returns
// storage.ErrPostNotFound when no channel holds the post.
func (m *Manager) Edit(ctx context.Context, postID, newContent string) (Report, error) {
	report := Report{}
	formatted := markup.EscapeMarkdownV2(newContent)

	for _, ch := range m.registry.List() {
		post, err := ch.Store.GetPost(ctx, postID)
		if err != nil {
			if errors.Is(err, storage.ErrPostNotFound) {
				continue
			}
			return report, fmt.Errorf("failed to look up post in %s: %w", ch.Name, err)
		}
		report.Channels++

		post.Content = newContent
		if err := ch.Store.SavePost(ctx, post); err != nil {
			return report, fmt.Errorf("failed to save edited post in %s: %w", ch.Name, err)
		}

		deliveries, err := ch.Store.ListDeliveries(ctx, postID)
		if err != nil {
			return report, fmt.Errorf("failed to list deliveries in %s: %w", ch.Name, err)
		}
		for _, d := range deliveries {
			if ch.Limiter != nil {
				ch.Limiter.Take()
			}
			var editErr error
			switch post.Kind {
			case storage.KindText:
				editErr = ch.Messenger.EditText(ctx, d.RecipientID, d.MessageID, formatted)
			case storage.KindTextMedia:
				editErr = ch.Messenger.EditCaption(ctx, d.RecipientID, d.MessageID, formatted)
			default:
				// Media-only, video-note and voice posts have no editable
				// text; the stored content update above is all there is.
				continue
			}
			if editErr != nil {
				report.Failed++
				log.Printf("[Edit Channel:%s Post:%s Recipient:%d] Edit failed: %v", ch.Name, postID, d.RecipientID, editErr)
				sentry.CaptureException(editErr)
				continue
			}
			report.Succeeded++
		}
	}

	if report.Channels == 0 {
		return report, storage.ErrPostNotFound
	}
	return report, nil
}

// Delete removes the post everywhere it was delivered: every remote
// message referenced by its delivery records is deleted (failures
// logged, not fatal), then the records are cleared and the post row
// removed. Deliveries go first so an interruption leaves recoverable
// dangling records rather than a post with no index.
func (m *Manager) Delete(ctx context.Context, postID string) (Report, error) {
	report := Report{}

	for _, ch := range m.registry.List() {
		if _, err := ch.Store.GetPost(ctx, postID); err != nil {
			if errors.Is(err, storage.ErrPostNotFound) {
				continue
			}
			return report, fmt.Errorf("failed to look up post in %s: %w", ch.Name, err)
		}
		report.Channels++

		deliveries, err := ch.Store.ListDeliveries(ctx, postID)
		if err != nil {
			return report, fmt.Errorf("failed to list deliveries in %s: %w", ch.Name, err)
		}
		for _, d := range deliveries {
			if ch.Limiter != nil {
				ch.Limiter.Take()
			}
			if err := ch.Messenger.DeleteMessage(ctx, d.RecipientID, d.MessageID); err != nil {
				report.Failed++
				log.Printf("[Delete Channel:%s Post:%s Recipient:%d] Remote delete failed: %v", ch.Name, postID, d.RecipientID, err)
				sentry.CaptureException(err)
				continue
			}
			report.Succeeded++
		}

		if err := ch.Store.ClearDeliveries(ctx, postID); err != nil {
			return report, fmt.Errorf("failed to clear deliveries in %s: %w", ch.Name, err)
		}
		if err := ch.Store.DeletePost(ctx, postID); err != nil {
			return report, fmt.Errorf("failed to delete post in %s: %w", ch.Name, err)
		}
		log.Printf("[Delete Channel:%s Post:%s] Removed post and %d delivery record(s)", ch.Name, postID, len(deliveries))
	}

	if report.Channels == 0 {
		return report, storage.ErrPostNotFound
	}
	return report, nil
}

// Find reports which channels currently hold the post. It is used by the
// operator dialogue to validate a post id before choosing an action.
func (m *Manager) Find(ctx context.Context, postID string) ([]*channel.Channel, error) {
	var holders []*channel.Channel
	for _, ch := range m.registry.List() {
		if _, err := ch.Store.GetPost(ctx, postID); err != nil {
			if errors.Is(err, storage.ErrPostNotFound) {
				continue
			}
			return nil, fmt.Errorf("failed to look up post in %s: %w", ch.Name, err)
		}
		holders = append(holders, ch)
	}
	return holders, nil
}
