// Package registry builds subscription descriptors from plain Go functions.
//
// Handlers are registered at wiring time, before the dispatcher starts:
//
//	r := registry.New()
//	r.Register("quote.create", createQuote,
//	    registry.Args("payload:string->pojo"),
//	    registry.Qualifier("status!=2,3"),
//	    registry.Result("result"),
//	)
//
// Registration order is preserved and becomes subscription order.
package registry
