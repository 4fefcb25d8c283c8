// Package main hosts the storyreel CLI entrypoint and command graph.
//
// Each command loads configuration, opens the session store, and drives a
// workflow.Manager for the duration of one invocation. Generation, export,
// and edits all go through the manager so invalidation and the event log
// behave the same regardless of which command triggered them.
//
// Keep this package lean: add new functionality in the internal packages
// first, then surface it through a command or flag here.
package main
