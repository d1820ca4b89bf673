package gatekeeper

import (
	"testing"
	"time"
)

func TestPolicyTable_Resolve_FirstMatchWins(t *testing.T) {
	pt := DefaultPolicyTable()

	cases := []struct {
		path, role string
		want       string
		window     time.Duration
		max        int
	}{
		{"/api/v1/auth/login", "", CategoryAuth, 15 * time.Minute, 5},
		{"/api/v1/auth/login", "admin", CategoryAuth, 15 * time.Minute, 5}, // auth beats role
		{"/api/v1/upload", "admin", CategoryUpload, time.Minute, 10},       // upload beats role
		{"/api/v1/uploads/avatar", "", CategoryUpload, time.Minute, 10},
		{"/api/v1/plans", "admin", CategoryAdmin, time.Minute, 200},
		{"/api/v1/plans", "SUPER_ADMIN", CategoryAdmin, time.Minute, 200},
		{"/api/v1/plans", "editor", CategoryDefault, time.Minute, 100},
		{"/api/v1/plans", "", CategoryDefault, time.Minute, 100},
		{"/authors", "", CategoryDefault, time.Minute, 100}, // needs "/auth/"
	}
	for _, tc := range cases {
		p := pt.Resolve(tc.path, tc.role)
		if p.Category != tc.want || p.Window != tc.window || p.MaxRequests != tc.max {
			t.Fatalf("Resolve(%q,%q) = %+v; want %s %v/%d", tc.path, tc.role, p, tc.want, tc.window, tc.max)
		}
	}
}

func TestPolicyTable_Policies_Order(t *testing.T) {
	ps := DefaultPolicyTable().Policies()
	want := []string{CategoryAuth, CategoryUpload, CategoryAdmin, CategoryDefault}
	if len(ps) != len(want) {
		t.Fatalf("got %d policies", len(ps))
	}
	for i, p := range ps {
		if p.Category != want[i] {
			t.Fatalf("policy %d = %q; want %q", i, p.Category, want[i])
		}
	}
}

func TestPolicyTable_IsAdmin_IgnoresBlankRoles(t *testing.T) {
	pt := NewPolicyTable(
		DefaultPolicyTable().Auth, DefaultPolicyTable().Upload,
		DefaultPolicyTable().Admin, DefaultPolicyTable().Default,
		[]string{" owner ", "", "  "},
	)
	if !pt.IsAdmin("Owner") {
		t.Fatalf("owner should be admin")
	}
	if pt.IsAdmin("") || pt.IsAdmin("admin") {
		t.Fatalf("unexpected admin match")
	}
}
