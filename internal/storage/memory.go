package storage

import (
	"context"
	"sync"
)

// MemoryPostStore is an in-memory PostStore. It backs tests and local
// development runs where no MongoDB is available.
type MemoryPostStore struct {
	mu         sync.RWMutex
	channel    string
	posts      map[string]Post
	deliveries []Delivery
}

// NewMemoryPostStore creates an empty in-memory store for one channel.
func NewMemoryPostStore(channel string) *MemoryPostStore {
	return &MemoryPostStore{
		channel: channel,
		posts:   make(map[string]Post),
	}
}

func (s *MemoryPostStore) SavePost(_ context.Context, post *Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	post.Channel = s.channel
	s.posts[post.ID] = *post
	return nil
}

func (s *MemoryPostStore) GetPost(_ context.Context, postID string) (*Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	post, ok := s.posts[postID]
	if !ok {
		return nil, ErrPostNotFound
	}
	cp := post
	return &cp, nil
}

func (s *MemoryPostStore) DeletePost(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.posts, postID)
	return nil
}

func (s *MemoryPostStore) RecordDelivery(_ context.Context, d *Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d.Channel = s.channel
	s.deliveries = append(s.deliveries, *d)
	return nil
}

func (s *MemoryPostStore) ListDeliveries(_ context.Context, postID string) ([]Delivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Delivery
	for _, d := range s.deliveries {
		if d.PostID == postID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryPostStore) ClearDeliveries(_ context.Context, postID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.deliveries[:0]
	for _, d := range s.deliveries {
		if d.PostID != postID {
			kept = append(kept, d)
		}
	}
	s.deliveries = kept
	return nil
}
