// Package gate provides runtime feature flags. Flags are tiny JSON records in
// the local pebble store, read per operation and never cached, so a flip is
// visible to the next operation without a restart.
package gate
