// Package state persists the outcome of the last status report.
//
// The FileRepository keeps a single JSON document on disk so that an operator
// (or the next run) can see when the lot was last reported and whether the
// endpoint accepted it.
package state
