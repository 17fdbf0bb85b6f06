// Package feed defines the feed entry model and the durable storage contract
// with its two interchangeable backends.
//
// A feed entry links one post into one owner's inbox feed. For a fixed owner
// the entries form a strictly time-ordered, append-only sequence; entries are
// never edited, only created or administratively deleted.
//
// Two Store implementations satisfy identical semantics:
//
//   - ColumnStore: Pebble-backed, keyed (owner, created_at, post). Duplicate
//     fan-out writes land on the same key and overwrite idempotently.
//   - RowStore: Postgres-backed via pgx, unique on (owner_id, post_id) with
//     ON CONFLICT DO NOTHING absorbing duplicate fan-out writes.
//
// Selector is the single point where the runtime feature flag picks one of
// the two; no other code branches on the flag.
package feed
