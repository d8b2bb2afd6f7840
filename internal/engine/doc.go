// Package engine provides the background action engine. Callers submit
// actions (a run callback plus an optional done callback); a single
// dispatcher goroutine pairs globally queued actions with workers from a
// bounded, elastically sized pool, and callers may wait for everything or
// for a chosen subset of actions to complete.
//
// Code running inside an action can chain follow-up work onto its own worker
// with Enqueue by passing along the context it was given. Chained actions run
// on the same worker right after the current one, before that worker accepts
// any globally queued work.
package engine
