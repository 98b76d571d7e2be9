package sockopt

import (
	"fmt"
	"log/slog"
	"slices"
	"strconv"
)

// Config configures [Configure].
type Config struct {
	// Catalog is the ordered list of descriptors to resolve.
	// If nil, [Catalog] is used.
	Catalog []Descriptor
	// Source provides property values. If nil, no properties are set and
	// only descriptor defaults are applied.
	Source Source
	// Logger is used to log skipped and failed options.
	// If nil, [slog.Default] will be used.
	Logger *slog.Logger
}

// Configure resolves the catalog against the property source and applies
// the resulting values to the channel. It returns the channel it was
// given, so a configured channel can be passed along in one expression.
//
// A property value that cannot be parsed for its option's kind is a
// configuration error: Configure stops and returns it without touching
// later descriptors. Options the channel does not support are skipped.
// An apply failure is logged and the remaining descriptors are still
// applied.
func Configure[C Channel](ch C, cfg Config) (C, error) {
	catalog := cfg.Catalog
	if catalog == nil {
		catalog = Catalog()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	supported := ch.SupportedOptions()
	for _, desc := range catalog {
		value := desc.Default
		if raw, ok := property(cfg.Source, desc.Property); ok {
			parsed, err := parse(desc.Option, raw)
			if err != nil {
				return ch, fmt.Errorf("property %q: %w", desc.Property, err)
			}
			value = parsed
		}
		if value == nil {
			continue
		}

		if !slices.Contains(supported, desc.Option) {
			logger.Debug("skipping unsupported option",
				slog.String("option", desc.Option.String()),
				slog.String("property", desc.Property),
			)
			continue
		}

		if err := ch.SetOption(desc.Option, value); err != nil {
			logger.Warn("can't set option",
				slog.String("option", desc.Option.String()),
				slog.Any("value", value),
				slog.String("property", desc.Property),
				"error", err,
			)
		}
	}

	return ch, nil
}

func property(src Source, name string) (string, bool) {
	if src == nil {
		return "", false
	}
	raw, ok := src.Property(name)
	if !ok || raw == "" {
		return "", false
	}
	return raw, true
}

func parse(opt Option, raw string) (any, error) {
	switch opt.Kind() {
	case Int:
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not an integer for option %s", ErrBadValue, raw, opt)
		}
		return v, nil
	case Bool:
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q is not a boolean for option %s", ErrBadValue, raw, opt)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("%w: option %s", ErrUnknownKind, opt)
	}
}
