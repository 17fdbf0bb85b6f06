package posts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pebblestore "github.com/rzbill/feedline/internal/storage/pebble"
)

// Catalog is a Pebble-backed Source. Deployments that keep posts in an
// external system implement Source against it instead; the catalog serves
// embedded runs and the CLI.
type Catalog struct {
	db *pebblestore.DB
}

// NewCatalog creates a Catalog on the given database.
func NewCatalog(db *pebblestore.DB) *Catalog { return &Catalog{db: db} }

func catalogPostKey(id int64) []byte    { return []byte(fmt.Sprintf("ps/p/%d", id)) }
func catalogProfileKey(id int64) []byte { return []byte(fmt.Sprintf("ps/u/%d", id)) }

// PutPost stores a post snapshot.
func (c *Catalog) PutPost(_ context.Context, p Post) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.db.Set(catalogPostKey(p.ID), raw)
}

// PutProfile stores a profile snapshot.
func (c *Catalog) PutProfile(_ context.Context, p Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return c.db.Set(catalogProfileKey(p.ID), raw)
}

// Post implements Source.
func (c *Catalog) Post(_ context.Context, id int64) (Post, error) {
	raw, err := c.db.Get(catalogPostKey(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Post{}, ErrNotFound
	}
	if err != nil {
		return Post{}, err
	}
	var p Post
	if err := json.Unmarshal(raw, &p); err != nil {
		return Post{}, err
	}
	return p, nil
}

// Profile implements Source.
func (c *Catalog) Profile(_ context.Context, id int64) (Profile, error) {
	raw, err := c.db.Get(catalogProfileKey(id))
	if errors.Is(err, pebblestore.ErrNotFound) {
		return Profile{}, ErrNotFound
	}
	if err != nil {
		return Profile{}, err
	}
	var p Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return Profile{}, err
	}
	return p, nil
}
