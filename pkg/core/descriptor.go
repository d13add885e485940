package core

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"
)

// ParsingRule selects how a raw variable value is converted into a handler argument.
type ParsingRule int

const (
	// RuleDefault widens numeric values to int64 and passes everything else through.
	RuleDefault ParsingRule = iota
	RuleBytesToString
	RuleBase64ToString
	RuleBase64ToBytes
	RuleStringToPojo
	RuleBytesToPojo
	RuleNumberToString
)

var ruleNames = map[ParsingRule]string{
	RuleDefault:        "default",
	RuleBytesToString:  "bytes->string",
	RuleBase64ToString: "base64->string",
	RuleBase64ToBytes:  "base64->bytes",
	RuleStringToPojo:   "string->pojo",
	RuleBytesToPojo:    "bytes->pojo",
	RuleNumberToString: "number->string",
}

func (r ParsingRule) String() string {
	if name, ok := ruleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("rule(%d)", int(r))
}

// ParseRule resolves a rule from its arrow notation, e.g. "string->pojo".
// The empty string is RuleDefault.
func ParseRule(s string) (ParsingRule, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return RuleDefault, nil
	}
	for rule, name := range ruleNames {
		if name == s {
			return rule, nil
		}
	}
	return RuleDefault, fmt.Errorf("%w: %q", ErrUnknownParsingRule, s)
}

// ArgumentSpec declares one positional handler argument.
type ArgumentSpec struct {
	Name string
	Rule ParsingRule
	// Target is the decode target for the *ToPojo rules. Nil means a
	// generic map[string]any.
	Target reflect.Type
}

// ParseArgument reads the compact "name:rule" notation. A bare name uses
// RuleDefault.
func ParseArgument(notation string) (ArgumentSpec, error) {
	name, ruleText, _ := strings.Cut(notation, ":")
	name = strings.TrimSpace(name)
	if name == "" {
		return ArgumentSpec{}, fmt.Errorf("%w: %q", ErrInvalidArgumentName, notation)
	}
	rule, err := ParseRule(ruleText)
	if err != nil {
		return ArgumentSpec{}, err
	}
	return ArgumentSpec{Name: name, Rule: rule}, nil
}

// TypeOf returns the type token for T, for use as ArgumentSpec.Target.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Invoker is the capability-typed call into a handler. Arguments arrive in
// declaration order, one per ArgumentSpec.
type Invoker func(ctx context.Context, args []any) (any, error)

// SubscriptionDescriptor declares one handler bound to one broker topic.
// Descriptors are immutable once handed to a dispatcher.
type SubscriptionDescriptor struct {
	Topic        string
	LockDuration time.Duration
	// Qualifier is the optional routing expression, e.g. "status!=2,3".
	Qualifier string
	Arguments []ArgumentSpec
	// ResultVariable names the output variable receiving the handler result.
	ResultVariable string
	// ReturnValueProperty, when set, projects this field out of the result
	// before encoding.
	ReturnValueProperty string
	Handler             Invoker
}
