package agentnet

// DefaultCapabilities returns the built-in capability defaults: empty
// strategy/market/action sets and version "1.0.0".
func DefaultCapabilities() AgentCapabilities {
	return AgentCapabilities{
		Strategies: []string{},
		Markets:    []string{},
		Actions:    []string{},
		Version:    "1.0.0",
	}
}

// ParseCapabilities validates an untrusted capability blob into the
// canonical shape. It never fails: capability data originates from an
// independently evolving external format, and discovery must stay usable
// across upstream schema drift, so any structural mismatch falls back to
// the defaults instead of erroring.
func ParseCapabilities(raw any) AgentCapabilities {
	return ParseCapabilitiesWithDefault(raw, DefaultCapabilities())
}

// ParseCapabilitiesWithDefault is ParseCapabilities with a caller-supplied
// fallback. A field of the wrong type is dropped as a whole and replaced by
// the corresponding default field; there is no partial-array repair.
func ParseCapabilitiesWithDefault(raw any, def AgentCapabilities) AgentCapabilities {
	m, ok := raw.(map[string]any)
	if !ok {
		return def
	}

	out := def
	if v, present := m["strategies"]; present {
		if list, ok := stringList(v); ok {
			out.Strategies = list
		}
	}
	if v, present := m["markets"]; present {
		if list, ok := stringList(v); ok {
			out.Markets = list
		}
	}
	if v, present := m["actions"]; present {
		if list, ok := stringList(v); ok {
			out.Actions = list
		}
	}
	if v, present := m["version"]; present {
		if s, ok := v.(string); ok && s != "" {
			out.Version = s
		}
	}
	return out
}

// stringList accepts []string or a JSON-decoded []any of strings. Any
// non-string element rejects the whole list.
func stringList(v any) ([]string, bool) {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out, true
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}
