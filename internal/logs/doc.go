// Package logs follows a session's event log while another storyreel
// process appends to it.
//
// Follow polls with bounded waits so `storyreel log --follow` can watch a
// long generation batch from a second terminal. Callers supply context
// deadlines so polling shuts down cleanly when the CLI exits.
package logs
