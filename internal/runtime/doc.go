// Package runtime wires storage, cache, queue, and services into one
// single-node instance shared by the CLI and the worker.
package runtime
