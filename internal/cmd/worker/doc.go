// Package workerrun starts the fan-out worker loop for the CLI.
package workerrun
