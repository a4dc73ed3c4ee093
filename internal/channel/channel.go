// Package channel models the set of configured distribution channels.
// Each channel is one independently configured outbound bot identity with
// its own transport credential, recipient set and post store. Channels
// are assembled once at startup and are immutable afterwards.
package channel

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/ratelimit"

	"broadcastbot/internal/messenger"
	"broadcastbot/internal/storage"
)

// ErrChannelNotFound is returned when no configured channel matches a
// requested name.
var ErrChannelNotFound = errors.New("channel not found")

// Recipients exposes the live membership set of one channel. Membership
// is maintained outside this process; it is queried once at dispatch
// time, and changes during a fan-out are not re-checked.
type Recipients interface {
	// IDs returns all current recipient ids.
	IDs(ctx context.Context) ([]int64, error)
}

// Channel binds one outbound identity together: its transport, its
// recipient registry and its post store, plus a limiter pacing transport
// calls during fan-out.
type Channel struct {
	Name       string
	Messenger  messenger.Messenger
	Recipients Recipients
	Store      storage.PostStore
	Limiter    ratelimit.Limiter
}

// Registry holds the configured channels. It has no dynamic
// registration; the slice is fixed at construction.
type Registry struct {
	channels []*Channel
}

// NewRegistry creates a registry over the given channels.
func NewRegistry(channels []*Channel) *Registry {
	return &Registry{channels: channels}
}

// List returns all configured channels in configuration order.
func (r *Registry) List() []*Channel {
	return r.channels
}

// Resolve finds a channel by name, case-insensitively.
func (r *Registry) Resolve(name string) (*Channel, error) {
	for _, ch := range r.channels {
		if strings.EqualFold(ch.Name, strings.TrimSpace(name)) {
			return ch, nil
		}
	}
	return nil, ErrChannelNotFound
}

// Names returns the configured channel names, for operator keyboards.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.channels))
	for _, ch := range r.channels {
		names = append(names, ch.Name)
	}
	return names
}
