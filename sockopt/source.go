package sockopt

// Source provides raw configuration property values.
type Source interface {
	// Property returns the value of a named property.
	Property(name string) (string, bool)
}

// Properties is a Source backed by a plain map.
type Properties map[string]string

func (p Properties) Property(name string) (string, bool) {
	v, ok := p[name]
	return v, ok
}
