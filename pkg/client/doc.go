// Package client talks to a Camunda 7 engine over its external-task REST API.
//
// A Client implements core.Broker and core.TaskService. Every subscription
// runs its own long-polling fetchAndLock loop, paced by a rate limiter, and
// hands locked tasks to the subscription handler with at most MaxTasks in
// flight per topic.
package client
