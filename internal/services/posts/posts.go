// Package posts caches post and profile snapshots and hydrates feed entries
// with them. Feed entries carry only ids; the objects they reference are
// cached whole and invalidated whole on mutation.
package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/feedline/internal/cache"
	"github.com/rzbill/feedline/internal/feed"
	"github.com/rzbill/feedline/pkg/log"
)

// Post is the cached snapshot of a published post.
type Post struct {
	ID          int64  `json:"id"`
	AuthorID    int64  `json:"authorId"`
	Body        string `json:"body"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// Profile is the cached snapshot of a user profile.
type Profile struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
}

// Source is the system of record for posts and profiles.
type Source interface {
	Post(ctx context.Context, id int64) (Post, error)
	Profile(ctx context.Context, id int64) (Profile, error)
}

// ErrNotFound is returned when the source has no such object.
var ErrNotFound = errors.New("posts: not found")

// HydratedEntry is a feed entry joined with its referenced snapshots.
type HydratedEntry struct {
	feed.Entry
	Post   Post
	Author Profile
}

// Service is a read-through object cache over a Source.
type Service struct {
	objects cache.Objects
	source  Source
	ttl     time.Duration
	logger  log.Logger
}

// New creates the service.
func New(objects cache.Objects, source Source, ttl time.Duration, logger log.Logger) *Service {
	if logger == nil {
		logger = log.NewTestLogger()
	}
	return &Service{objects: objects, source: source, ttl: ttl, logger: logger.WithComponent("posts")}
}

func postKey(id int64) string    { return fmt.Sprintf("post:%d", id) }
func profileKey(id int64) string { return fmt.Sprintf("userprofile:%d", id) }

// GetPost returns the post snapshot, from cache when present.
func (s *Service) GetPost(ctx context.Context, id int64) (Post, error) {
	var p Post
	err := s.get(ctx, postKey(id), &p, func(ctx context.Context) (interface{}, error) {
		return s.source.Post(ctx, id)
	})
	return p, err
}

// GetProfile returns the profile snapshot, from cache when present.
func (s *Service) GetProfile(ctx context.Context, id int64) (Profile, error) {
	var p Profile
	err := s.get(ctx, profileKey(id), &p, func(ctx context.Context) (interface{}, error) {
		return s.source.Profile(ctx, id)
	})
	return p, err
}

// get is the shared read-through path: cache hit, else load and store.
// Cache unavailability degrades to source-only reads.
func (s *Service) get(ctx context.Context, key string, out interface{}, load func(context.Context) (interface{}, error)) error {
	raw, ok, err := s.objects.GetObject(ctx, key)
	if err != nil {
		s.logger.Warn("object cache read failed", log.F("key", key), log.Err(err))
	} else if ok {
		if err := json.Unmarshal(raw, out); err == nil {
			return nil
		}
		s.logger.Warn("cached object corrupt, reloading", log.F("key", key))
		_ = s.objects.DelObject(ctx, key)
	}

	val, err := load(ctx)
	if err != nil {
		return err
	}
	raw, err = json.Marshal(val)
	if err != nil {
		return err
	}
	if err := s.objects.SetObject(ctx, key, raw, s.ttl); err != nil {
		s.logger.Warn("object cache store failed", log.F("key", key), log.Err(err))
	}
	return json.Unmarshal(raw, out)
}

// InvalidatePost drops the cached post snapshot. Call after any mutation.
func (s *Service) InvalidatePost(ctx context.Context, id int64) {
	if err := s.objects.DelObject(ctx, postKey(id)); err != nil {
		s.logger.Warn("post invalidate failed", log.F("id", id), log.Err(err))
	}
}

// InvalidateProfile drops the cached profile snapshot.
func (s *Service) InvalidateProfile(ctx context.Context, id int64) {
	if err := s.objects.DelObject(ctx, profileKey(id)); err != nil {
		s.logger.Warn("profile invalidate failed", log.F("id", id), log.Err(err))
	}
}

// Hydrate joins feed entries with their post and author snapshots. Lookups
// dedupe within the call, so a page citing one author costs one profile
// fetch.
func (s *Service) Hydrate(ctx context.Context, entries []feed.Entry) ([]HydratedEntry, error) {
	postMemo := make(map[int64]Post)
	profileMemo := make(map[int64]Profile)

	out := make([]HydratedEntry, 0, len(entries))
	for _, e := range entries {
		p, ok := postMemo[e.PostID]
		if !ok {
			var err error
			p, err = s.GetPost(ctx, e.PostID)
			if err != nil {
				return nil, err
			}
			postMemo[e.PostID] = p
		}
		a, ok := profileMemo[e.AuthorID]
		if !ok {
			var err error
			a, err = s.GetProfile(ctx, e.AuthorID)
			if err != nil {
				return nil, err
			}
			profileMemo[e.AuthorID] = a
		}
		out = append(out, HydratedEntry{Entry: e, Post: p, Author: a})
	}
	return out, nil
}
