package graph

import (
	"fmt"
	"regexp"
	"sort"
)

// SafeLabel is a label token that passed allow-list validation and may be
// interpolated into a query template. Only the allow-list produces these.
type SafeLabel string

// SafeType is the relationship-type counterpart of SafeLabel.
type SafeType string

// identPattern matches valid store identifiers. Anything else is rejected
// outright, before the allow-list membership check.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AllowList is the fixed set of labels and relationship types that may be
// written back into the target graph. Labels and types are the only tokens
// ever interpolated into a query string; everything else travels through
// parameters.
type AllowList struct {
	labels map[string]struct{}
	types  map[string]struct{}
}

// NewAllowList builds an allow-list from explicit label and type sets.
func NewAllowList(labels, relTypes []string) *AllowList {
	a := &AllowList{
		labels: make(map[string]struct{}, len(labels)),
		types:  make(map[string]struct{}, len(relTypes)),
	}
	for _, l := range labels {
		a.labels[l] = struct{}{}
	}
	for _, t := range relTypes {
		a.types[t] = struct{}{}
	}
	return a
}

// DefaultAllowList covers the label and relationship-type vocabulary of the
// memory graph this engine was built for.
func DefaultAllowList() *AllowList {
	return NewAllowList(
		[]string{
			"Learning", "Memory", "Pattern", "Rule",
			"Knowledge", "Decision", "Category", "Process",
		},
		[]string{
			"RELATED_TO", "DERIVED_FROM", "PART_OF",
			"LEARNED_FROM", "SUPERSEDES",
		},
	)
}

// Label validates a raw label token. It returns a SafeLabel only when the
// token is a well-formed identifier and a member of the allow-list.
func (a *AllowList) Label(raw string) (SafeLabel, error) {
	if !identPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: malformed label %q", ErrValidation, raw)
	}
	if _, ok := a.labels[raw]; !ok {
		return "", fmt.Errorf("%w: label %q not in allow-list", ErrValidation, raw)
	}
	return SafeLabel(raw), nil
}

// Labels validates a full label set, preserving order.
func (a *AllowList) Labels(raw []string) ([]SafeLabel, error) {
	safe := make([]SafeLabel, 0, len(raw))
	for _, l := range raw {
		s, err := a.Label(l)
		if err != nil {
			return nil, err
		}
		safe = append(safe, s)
	}
	return safe, nil
}

// RelType validates a raw relationship-type token.
func (a *AllowList) RelType(raw string) (SafeType, error) {
	if !identPattern.MatchString(raw) {
		return "", fmt.Errorf("%w: malformed relationship type %q", ErrValidation, raw)
	}
	if _, ok := a.types[raw]; !ok {
		return "", fmt.Errorf("%w: relationship type %q not in allow-list", ErrValidation, raw)
	}
	return SafeType(raw), nil
}

// KnownLabels returns the allow-listed labels in sorted order. Used for
// status reporting.
func (a *AllowList) KnownLabels() []string {
	out := make([]string, 0, len(a.labels))
	for l := range a.labels {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
