// Package coordinator runs the background rebuild that retries documents
// whose indexing job failed or never ran.
//
// Asynchronous indexing jobs are best effort: a job that fails leaves its
// document flagged shouldUpdateIndex and nothing retries it. The coordinator
// closes that gap by running an incremental rebuild of every configured index
// on a ticker, with a random jitter so replicas do not scan together.
//
// # Usage
//
//	stateSvc := state.NewStateService(persistence, interval)
//	coord := coordinator.New(orchestrator, stateSvc, cfg.IndexNames(), interval)
//
//	go func() { _ = coord.Start(ctx) }()
//	defer coord.Stop()
//
// # Status
//
// Every pass moves the index through Syncing to Complete or Failed in the
// IndexStateService. The move to Syncing is a test-and-set, so an index is
// never rebuilt twice at once by the same process. A status left in Syncing
// by a crash is reset to Failed at startup.
package coordinator
