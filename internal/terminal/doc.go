// Package terminal runs the single-threaded tick loop that owns the output
// buffer and the input line.
//
// Each tick drains the inbox (pty output, classifier verdicts), applies
// queued key events, follows window resizes, and renders a frame if
// anything changed. Nothing in a tick blocks: pty reads are either
// non-blocking polls or happen on the bridge's reader goroutine, and
// classifier calls run on their own goroutines.
package terminal
