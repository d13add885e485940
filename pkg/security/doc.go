// Package security provides validation, sanitization, and limits for the tasks package.
//
// This package includes:
//   - Input validation for topic names and variable names
//   - Failure message sanitization before reports reach the broker
//   - Clamping functions to enforce safe limits on concurrency and lock durations
//   - Security-related constants defining maximum sizes and counts
//
// Most users should import the root package github.com/jdziat/simple-external-tasks
// which re-exports these functions.
package security
