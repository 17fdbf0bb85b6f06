// Package cache provides the keyed cache contracts used in front of durable
// feed storage: byte lists with atomic prepend-and-trim, byte object slots
// with TTL, and a generic read-through bounded ListStore composing the two
// with a per-family codec.
//
// Cache unavailability is never fatal: reads fall back to the durable loader
// and writes are best-effort. The Redis backend is the production
// implementation; the in-memory backend serves tests and embedded runs.
package cache
