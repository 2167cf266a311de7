/*
Package bridge moves bytes between a pty session and the tick loop.

# Read path

A Reader pulls raw output from the session, decodes it as UTF-8 (invalid
sequences become U+FFFD), strips control sequences with an incremental
escape.Scanner, and posts the displayable text as an Output event. It runs
either on its own goroutine (Run, blocking reads) or inline on the tick loop
(Poll, non-blocking reads until the master would block). When the session
reaches end of stream the child is reaped and a Closed event follows.

# Mailboxes

Producers never touch the tick loop's buffers. They push events into a
Mailbox, an unbounded queue that keeps arrival order; the tick loop drains
every mailbox of an Inbox once per tick. Order is kept within a mailbox, not
across mailboxes.

# Write path

A Writer is the single owner of the session's write side. Send returns only
after the whole payload was delivered.
*/
package bridge
