// Package lifecycle provides the state machine shared by long-running bulkq
// components.
//
//	Idle --Start--> Running --Stop--> Stopping --drained--> Stopped
//
// Stopping is never skipped: a component only reaches Stopped after its
// workers have finished, which for the batching engine means the backlog
// drained to zero.
package lifecycle
