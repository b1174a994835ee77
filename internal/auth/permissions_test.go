package auth

import "testing"

func TestParseAction(t *testing.T) {
	if a, ok := ParseAction("  Manage "); !ok || a != ActionManage {
		t.Fatalf("ParseAction normalize failed: %v %v", a, ok)
	}
	if _, ok := ParseAction("destroy"); ok {
		t.Fatal("unknown action accepted")
	}
}

func TestPermissionSetHas(t *testing.T) {
	set := PermissionSet{
		"user": {ActionRead, ActionUpdate},
	}
	if !set.Has("user", ActionRead) {
		t.Fatal("expected user:read")
	}
	if !set.Has("  User ", ActionUpdate) {
		t.Fatal("resource matching should be case-insensitive")
	}
	if set.Has("user", ActionDelete) {
		t.Fatal("unexpected user:delete")
	}
	if set.Has("session", ActionRead) {
		t.Fatal("unexpected session:read")
	}
}

func TestResolvePermissionsOverlay(t *testing.T) {
	defaults := PermissionSet{
		"user":    {ActionRead, ActionUpdate},
		"session": {ActionRead},
	}
	overrides := []Override{
		{ResourceType: "user", Action: ActionDelete, Granted: true},
		{ResourceType: "session", Action: ActionRead, Granted: false},
		{ResourceType: "report", Action: ActionCreate, Granted: true},
	}

	result := ResolvePermissions(defaults, overrides)

	if !result.Has("user", ActionDelete) {
		t.Fatal("granted override not applied")
	}
	if result.Has("session", ActionRead) {
		t.Fatal("revoking override not applied")
	}
	if !result.Has("report", ActionCreate) {
		t.Fatal("grant on a resource absent from defaults not applied")
	}
	if !result.Has("user", ActionRead) || !result.Has("user", ActionUpdate) {
		t.Fatal("untouched defaults lost")
	}
}

func TestResolvePermissionsDoesNotMutateDefaults(t *testing.T) {
	defaults := PermissionSet{
		"user": {ActionRead},
	}
	_ = ResolvePermissions(defaults, []Override{
		{ResourceType: "user", Action: ActionRead, Granted: false},
		{ResourceType: "user", Action: ActionManage, Granted: true},
	})

	if len(defaults["user"]) != 1 || defaults["user"][0] != ActionRead {
		t.Fatalf("role defaults mutated: %v", defaults["user"])
	}
}

func TestResolvePermissionsRevokeGrantedOverride(t *testing.T) {
	// A revocation only targets its own pair; a grant of a different action
	// on the same resource survives.
	defaults := PermissionSet{"user": {ActionRead, ActionUpdate}}
	result := ResolvePermissions(defaults, []Override{
		{ResourceType: "user", Action: ActionManage, Granted: true},
		{ResourceType: "user", Action: ActionUpdate, Granted: false},
	})
	if !result.Has("user", ActionManage) {
		t.Fatal("granted manage lost")
	}
	if result.Has("user", ActionUpdate) {
		t.Fatal("revoked update still present")
	}
	if !result.Has("user", ActionRead) {
		t.Fatal("read default lost")
	}
}
