// Package dispatcher binds subscription descriptors to broker topics.
//
// For every delivered task the dispatcher runs, in order:
//  1. the qualifier; a miss leaves the task untouched for redelivery
//  2. argument conversion
//  3. the handler
//  4. return value projection, when a property is declared
//  5. result encoding
//  6. completion
//
// Any error in steps 2 to 5 is reported to the broker as a failure with no
// retries left, so the task stays failed until an operator intervenes.
//
// Most users should import the root package github.com/jdziat/simple-external-tasks.
package dispatcher
