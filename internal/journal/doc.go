// Package journal records scheduler outcomes for operators.
//
// It is an execution log, not a task store: entries say what already ran
// (or was skipped/discarded), and nothing here ever restores pending tasks
// after a restart.
package journal
