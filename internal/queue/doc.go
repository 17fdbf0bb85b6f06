// Package queue is a Pebble-backed task queue with at-least-once delivery.
//
// Tasks are delivered under leases: a dequeued task stays invisible until it
// is completed, failed, or its lease expires and a reclaim sweep returns it
// to availability. Handlers must therefore tolerate duplicate delivery.
// Failed tasks retry with backoff and land in a dead-letter area once the
// delivery limit is reached.
package queue
