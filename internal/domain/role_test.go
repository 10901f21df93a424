package domain

import "testing"

func TestParseRole(t *testing.T) {
	cases := map[string]Role{
		"donor":     RoleDonor,
		" ADMIN ":   RoleAdmin,
		"Hospital":  RoleHospital,
		"patient":   RolePatient,
		"":          RolePatient,
		"superuser": RolePatient,
	}
	for in, want := range cases {
		if got := ParseRole(in); got != want {
			t.Fatalf("ParseRole(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIdentity_CanManageRequest(t *testing.T) {
	owner := "u1"
	if !(Identity{ID: "u1", Role: RoleDonor}).CanManageRequest(&owner) {
		t.Fatalf("owner should manage own request")
	}
	if (Identity{ID: "u2", Role: RoleDonor}).CanManageRequest(&owner) {
		t.Fatalf("other donor must not manage request")
	}
	if !(Identity{ID: "h1", Role: RoleHospital}).CanManageRequest(&owner) {
		t.Fatalf("hospital staff may manage any request")
	}
	if !(Identity{ID: "a1", Role: RoleAdmin}).CanManageRequest(nil) {
		t.Fatalf("admin may manage anonymous requests")
	}
	if (Identity{Role: RolePatient}).CanManageRequest(nil) {
		t.Fatalf("anonymous caller cannot manage anonymous request")
	}
}
