// Package sockopt maps named configuration properties onto socket options.
//
// A transport exposes the options its channels can apply, a [Source]
// provides raw property values, and [Configure] resolves one against the
// other: parse the value by the option's kind, skip what the channel does
// not support, apply the rest.
package sockopt

import (
	"errors"
	"fmt"
)

var (
	// ErrBadValue is returned when a property value cannot be parsed for
	// its option's kind, or a value of the wrong type is passed to SetOption.
	ErrBadValue = errors.New("sockopt: bad value")
	// ErrUnknownKind is returned when an option does not declare a value kind.
	ErrUnknownKind = errors.New("sockopt: unknown option kind")
	// ErrNotSupported is returned by SetOption for options the channel
	// does not support.
	ErrNotSupported = errors.New("sockopt: option not supported")
)

// Option identifies a socket option.
type Option int

// Socket options.
const (
	KeepAlive Option = iota + 1
	Linger
	RecvBuffer
	ReuseAddr
	SendBuffer
	NoDelay
)

// Kind is the type of value an option accepts.
type Kind int

// Option value kinds.
const (
	Unknown Kind = iota
	Bool
	Int
)

// Kind returns the kind of value the option accepts.
func (o Option) Kind() Kind {
	switch o {
	case KeepAlive, ReuseAddr, NoDelay:
		return Bool
	case Linger, RecvBuffer, SendBuffer:
		return Int
	default:
		return Unknown
	}
}

func (o Option) String() string {
	switch o {
	case KeepAlive:
		return "keep-alive"
	case Linger:
		return "linger"
	case RecvBuffer:
		return "receive-buffer"
	case ReuseAddr:
		return "reuse-address"
	case SendBuffer:
		return "send-buffer"
	case NoDelay:
		return "no-delay"
	default:
		return fmt.Sprintf("option(%d)", int(o))
	}
}

// Descriptor binds a configuration property to a socket option.
type Descriptor struct {
	// Property is the name the value is looked up by in the [Source].
	Property string
	// Option is the socket option to apply.
	Option Option
	// Default is applied when the property is not set.
	// When nil, an unset property leaves the option untouched.
	Default any
}

// Catalog returns the default ordered option catalog.
// Only reuse-address carries a default; every other option stays at its
// platform default unless its property is set.
func Catalog() []Descriptor {
	return []Descriptor{
		{Property: "keep-alive", Option: KeepAlive},
		{Property: "linger", Option: Linger},
		{Property: "receive-buffer", Option: RecvBuffer},
		{Property: "reuse-address", Option: ReuseAddr, Default: true},
		{Property: "send-buffer", Option: SendBuffer},
		{Property: "no-delay", Option: NoDelay},
	}
}

// Channel is a channel whose socket options can be set.
type Channel interface {
	// SupportedOptions lists the options the channel can apply.
	SupportedOptions() []Option
	// SetOption applies an option value to the channel.
	// The value must match the option's kind: bool for Bool options,
	// int for Int options.
	SetOption(opt Option, value any) error
}

// BoolValue returns value as a bool, checking its dynamic type.
func BoolValue(opt Option, value any) (bool, error) {
	v, ok := value.(bool)
	if !ok {
		return false, fmt.Errorf("%w: option %s wants bool, got %T", ErrBadValue, opt, value)
	}
	return v, nil
}

// IntValue returns value as an int, checking its dynamic type.
func IntValue(opt Option, value any) (int, error) {
	v, ok := value.(int)
	if !ok {
		return 0, fmt.Errorf("%w: option %s wants int, got %T", ErrBadValue, opt, value)
	}
	return v, nil
}
