// Package qualifier parses and evaluates routing qualifiers.
//
// A qualifier narrows which tasks on a topic a handler processes:
//
//	status=1,2         matches when status is 1 or 2
//	status!=2,3        matches when status is neither 2 nor 3
//	order.state=null   matches when order.state is absent, zero or non-numeric
//
// The resolved variable is coerced to an int64; absent and non-numeric values
// become 0, as does the literal "null". Malformed expressions and evaluation
// failures never drop a task: both fall back to matching.
package qualifier
