// Package dispatch matches jobs to heroes.
//
// The Engine walks a schedule of distance bands for each job, notifying the
// best ranked heroes of every band and sleeping between waves. The Arbiter
// is the only writer of hero/job bindings: Accept binds atomically, Decline
// records the refusal and the hero's statistics. The LifecycleWatcher moves
// bound jobs to their terminal states and releases the hero.
//
// Accepting or cancelling a job wakes its loop immediately; the status check
// at the top of each wave remains the authority on whether to continue.
package dispatch
