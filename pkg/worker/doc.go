// Package worker provides the bootstrap loop that brings subscriptions up.
//
// A Worker moves through three states:
//
//	Unregistered -> Probing -> Registered
//
// While Probing it checks broker reachability on a fixed interval with no
// attempt limit. Once the broker answers it opens every subscription
// exactly once and stays Registered for the rest of the process lifetime.
//
// Most users should import the root package github.com/jdziat/simple-external-tasks
// which wires a Worker through tasks.NewWorker().
package worker
