// Package tenant implements the tenant scope a worker deployment is
// permitted to process: an inclusive allow-list, an exclusive deny-list
// (entries prefixed with "!"), or empty meaning all tenants.
package tenant

import (
	"errors"
	"fmt"
	"strings"
)

// Filter is a validated tenant scope. The zero value matches all tenants.
type Filter struct {
	ids     []string
	exclude bool
}

// ErrMixedFilter reports a filter mixing assertions and negations, which is
// ambiguous and rejected outright rather than guessed at.
var ErrMixedFilter = errors.New("tenant filter cannot mix allowed and excluded entries")

// ParseFilter validates a configured tenant list. Entries either all assert
// or all negate; blank entries are rejected.
func ParseFilter(entries []string) (Filter, error) {
	ids := make([]string, 0, len(entries))
	negations := 0
	for _, raw := range entries {
		entry := strings.TrimSpace(raw)
		if entry == "" || entry == "!" {
			return Filter{}, fmt.Errorf("tenant filter entry %q is blank", raw)
		}
		if strings.HasPrefix(entry, "!") {
			negations++
			entry = strings.TrimPrefix(entry, "!")
		}
		ids = append(ids, entry)
	}
	if negations > 0 && negations != len(ids) {
		return Filter{}, ErrMixedFilter
	}
	return Filter{ids: ids, exclude: negations > 0}, nil
}

// MatchAll returns the filter that passes every tenant.
func MatchAll() Filter {
	return Filter{}
}

// IsEmpty reports whether the filter matches all tenants.
func (f Filter) IsEmpty() bool {
	return len(f.ids) == 0
}

// Excludes reports whether the filter is a deny-list.
func (f Filter) Excludes() bool {
	return f.exclude
}

// IDs returns the tenant ids in the filter with negation prefixes stripped.
func (f Filter) IDs() []string {
	cp := make([]string, len(f.ids))
	copy(cp, f.ids)
	return cp
}

// Matches reports whether a tenant passes the filter.
func (f Filter) Matches(tenantID string) bool {
	if len(f.ids) == 0 {
		return true
	}
	found := false
	for _, id := range f.ids {
		if id == tenantID {
			found = true
			break
		}
	}
	if f.exclude {
		return !found
	}
	return found
}

// SQL renders the filter as a WHERE-clause fragment against the given column
// plus its placeholder arguments. An empty filter renders to an empty
// fragment.
func (f Filter) SQL(column string) (string, []any) {
	if len(f.ids) == 0 {
		return "", nil
	}
	placeholders := make([]byte, 0, len(f.ids)*2)
	args := make([]any, 0, len(f.ids))
	for i, id := range f.ids {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args = append(args, id)
	}
	op := "IN"
	if f.exclude {
		op = "NOT IN"
	}
	return fmt.Sprintf("AND %s %s (%s) ", column, op, placeholders), args
}

func (f Filter) String() string {
	if len(f.ids) == 0 {
		return "all tenants"
	}
	prefix := ""
	if f.exclude {
		prefix = "!"
	}
	parts := make([]string, len(f.ids))
	for i, id := range f.ids {
		parts[i] = prefix + id
	}
	return strings.Join(parts, ", ")
}
