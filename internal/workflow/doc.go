// Package workflow implements the Temporal workflow that runs a refinement
// request as an asynchronous task.
//
// The workflow owns the retry policy. Each attempt is a single activity
// execution with no Temporal-level retries; between attempts the workflow
// sleeps for an exponentially growing, optionally jittered delay. Doing the
// waiting here rather than in the activity retry policy lets the workflow
// publish its phase through the memo, which is how status lookups tell a
// task waiting to retry apart from one that has not started yet.
//
// Workflow code is deterministic: jitter is drawn through a side effect and
// all waiting goes through workflow.Sleep.
package workflow
