// Package core provides the fundamental types and interfaces for the tasks package.
//
// This package contains:
//   - Task, Variables and TypedValue models plus the broker wire encoding
//   - SubscriptionDescriptor and ArgumentSpec declarations
//   - Broker, TaskService and Subscription interfaces
//   - Event types for dispatcher monitoring
//   - Error types for task processing
//
// Most users should import the root package github.com/jdziat/simple-external-tasks
// instead of this package directly.
package core
