package tenant_test

import (
	"errors"
	"testing"

	"conveyor/internal/tenant"
)

func TestParseFilterAllowList(t *testing.T) {
	f, err := tenant.ParseFilter([]string{"alpha", " beta "})
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	if f.Excludes() {
		t.Fatal("expected allow-list")
	}
	if !f.Matches("alpha") || !f.Matches("beta") {
		t.Error("expected listed tenants to match")
	}
	if f.Matches("gamma") {
		t.Error("expected unlisted tenant to be rejected")
	}
}

func TestParseFilterDenyList(t *testing.T) {
	f, err := tenant.ParseFilter([]string{"!alpha", "!beta"})
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	if !f.Excludes() {
		t.Fatal("expected deny-list")
	}
	if f.Matches("alpha") {
		t.Error("expected excluded tenant to be rejected")
	}
	if !f.Matches("gamma") {
		t.Error("expected other tenants to pass")
	}
}

func TestParseFilterRejectsMixedEntries(t *testing.T) {
	_, err := tenant.ParseFilter([]string{"alpha", "!beta"})
	if !errors.Is(err, tenant.ErrMixedFilter) {
		t.Fatalf("expected ErrMixedFilter, got %v", err)
	}
}

func TestParseFilterRejectsBlankEntries(t *testing.T) {
	if _, err := tenant.ParseFilter([]string{"alpha", "  "}); err == nil {
		t.Fatal("expected blank entry to fail")
	}
	if _, err := tenant.ParseFilter([]string{"!"}); err == nil {
		t.Fatal("expected bare negation to fail")
	}
}

func TestEmptyFilterMatchesEverything(t *testing.T) {
	f := tenant.MatchAll()
	if !f.IsEmpty() || !f.Matches("anything") {
		t.Fatal("empty filter should match all tenants")
	}
	clause, args := f.SQL("tenant_id")
	if clause != "" || args != nil {
		t.Fatalf("expected empty SQL fragment, got %q %v", clause, args)
	}
}

func TestSQLFragment(t *testing.T) {
	f, err := tenant.ParseFilter([]string{"!alpha", "!beta"})
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	clause, args := f.SQL("f.tenant_id")
	if clause != "AND f.tenant_id NOT IN (?,?) " {
		t.Fatalf("unexpected clause %q", clause)
	}
	if len(args) != 2 || args[0] != "alpha" || args[1] != "beta" {
		t.Fatalf("unexpected args %v", args)
	}
}
