// Package cli is the interactive terminal front end: credential and
// confirmation prompts, admin bootstrap, and a small REPL over the active
// backend's conversations.
//
// The REPL is started with App.Run, which blocks until the user exits,
// logs out, or input ends.
package cli
