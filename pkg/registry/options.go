package registry

import (
	"reflect"
	"time"

	"github.com/jdziat/simple-external-tasks/pkg/core"
)

// Options holds the declaration for one subscription.
type Options struct {
	Qualifier           string
	Arguments           []core.ArgumentSpec
	ResultVariable      string
	ReturnValueProperty string
	LockDuration        time.Duration

	// err records an invalid option so Register can report it.
	err error
}

// NewOptions creates Options with defaults.
func NewOptions() *Options {
	return &Options{}
}

// Option modifies Options.
type Option interface {
	Apply(*Options)
}

type optionFunc func(*Options)

func (f optionFunc) Apply(o *Options) { f(o) }

// Qualifier sets the routing expression, e.g. "status!=2,3".
func Qualifier(expr string) Option {
	return optionFunc(func(o *Options) {
		o.Qualifier = expr
	})
}

// Arg appends one positional argument. A nil target on a *ToPojo rule is
// inferred from the handler parameter type.
func Arg(name string, rule core.ParsingRule, target reflect.Type) Option {
	return optionFunc(func(o *Options) {
		o.Arguments = append(o.Arguments, core.ArgumentSpec{Name: name, Rule: rule, Target: target})
	})
}

// Args appends positional arguments in "name:rule" notation, e.g.
// "payload:string->pojo". A bare name uses the default rule.
func Args(notations ...string) Option {
	return optionFunc(func(o *Options) {
		for _, n := range notations {
			spec, err := core.ParseArgument(n)
			if err != nil {
				if o.err == nil {
					o.err = err
				}
				continue
			}
			o.Arguments = append(o.Arguments, spec)
		}
	})
}

// Result names the output variable receiving the handler result.
func Result(name string) Option {
	return optionFunc(func(o *Options) {
		o.ResultVariable = name
	})
}

// ReturnValueProperty projects a field out of the handler result before encoding.
func ReturnValueProperty(field string) Option {
	return optionFunc(func(o *Options) {
		o.ReturnValueProperty = field
	})
}

// LockDuration overrides the dispatcher default for this subscription.
func LockDuration(d time.Duration) Option {
	return optionFunc(func(o *Options) {
		o.LockDuration = d
	})
}
