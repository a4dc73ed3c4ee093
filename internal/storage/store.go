package storage

import (
	"context"
	"errors"
)

// ErrPostNotFound is returned when no post matches the requested id in a
// channel's store.
var ErrPostNotFound = errors.New("post not found")

// PostStore persists posts and their delivery index for one channel. The
// store never spans channels: each channel owns an independent backing
// store and cross-channel effects are achieved by iterating channels.
type PostStore interface {
	// SavePost inserts or replaces a post by id. It serves both initial
	// persistence at dispatch time and in-place content edits.
	SavePost(ctx context.Context, post *Post) error
	// GetPost returns the post with the given id, or ErrPostNotFound.
	GetPost(ctx context.Context, postID string) (*Post, error)
	// DeletePost removes the post row only; deliveries are cleared
	// separately via ClearDeliveries, and must be cleared first.
	DeletePost(ctx context.Context, postID string) error

	// RecordDelivery appends one delivery record for the post.
	RecordDelivery(ctx context.Context, d *Delivery) error
	// ListDeliveries returns every delivery recorded for the post.
	ListDeliveries(ctx context.Context, postID string) ([]Delivery, error)
	// ClearDeliveries removes every delivery recorded for the post.
	ClearDeliveries(ctx context.Context, postID string) error
}
