package metadata

import (
	"encoding/json"
	"testing"

	"ticketing-backend/internal/access"
)

func TestCatalogMatchesPermissionTable(t *testing.T) {
	ac := access.New(access.DefaultTable())

	for _, res := range Catalog() {
		granted := map[string]bool{}
		for _, role := range access.AllRoles() {
			for _, a := range ac.Actions(role, res.Name) {
				granted[a] = true
			}
		}
		if !granted["read"] {
			t.Errorf("%s: no role can read it", res.Name)
		}
		if res.StateMachine == nil {
			continue
		}
		for _, tr := range res.StateMachine.Transitions {
			if tr.Permission == "" {
				t.Errorf("%s: transition to %s has no permission", res.Name, tr.To)
				continue
			}
			if !granted[tr.Permission] {
				t.Errorf("%s: transition permission %q is held by no role", res.Name, tr.Permission)
			}
		}
	}
}

func TestCatalogResourcesAreWellFormed(t *testing.T) {
	seen := map[string]bool{}
	for _, res := range Catalog() {
		if seen[res.Name] {
			t.Fatalf("duplicate resource %s", res.Name)
		}
		seen[res.Name] = true

		if !res.HasField(res.PrimaryKey.Field) {
			t.Errorf("%s: primary key %s is not a field", res.Name, res.PrimaryKey.Field)
		}
		if res.AgencyScoped && !res.HasField(AgencyField) {
			t.Errorf("%s: agency scoped without %s", res.Name, AgencyField)
		}
		for _, r := range res.Rules {
			if r.Type == "field" && !res.HasField(r.Definition.Field) {
				t.Errorf("%s: rule on unknown field %s", res.Name, r.Definition.Field)
			}
		}
		sm := res.StateMachine
		if sm == nil {
			continue
		}
		f := res.GetField(sm.Field)
		if f == nil {
			t.Errorf("%s: state field %s missing", res.Name, sm.Field)
			continue
		}
		enum := map[string]bool{}
		for _, v := range f.Enum {
			enum[v] = true
		}
		for _, s := range sm.States() {
			if !enum[s] {
				t.Errorf("%s: state %s is not in the %s enum", res.Name, s, sm.Field)
			}
		}
		if f.Default != sm.Initial {
			t.Errorf("%s: default %v differs from initial state %s", res.Name, f.Default, sm.Initial)
		}
		for _, tr := range sm.Transitions {
			for _, a := range tr.Actions {
				if !res.HasField(a.Field) {
					t.Errorf("%s: action sets unknown field %s", res.Name, a.Field)
				}
			}
		}
	}
}

func TestUsersPasswordIsWriteOnly(t *testing.T) {
	var users *Resource
	for _, res := range Catalog() {
		if res.Name == "users" {
			users = res
		}
	}
	if users == nil {
		t.Fatal("users resource missing")
	}
	for _, col := range users.ReadableColumns() {
		if col == "password_hash" || col == "password" {
			t.Fatalf("%s must not be readable", col)
		}
	}
	if got := users.GetField("password").ColumnName(); got != "password_hash" {
		t.Fatalf("expected password stored in password_hash, got %s", got)
	}
	if cols := users.BoolColumns(); len(cols) != 1 || cols[0] != "active" {
		t.Fatalf("unexpected bool columns: %v", cols)
	}
}

func TestWritableAndUpdatableFields(t *testing.T) {
	res := &Resource{
		Name:       "settings",
		PrimaryKey: PrimaryKey{Field: "name"},
		Fields: []Field{
			{Name: "name", Type: "string"},
			{Name: "value", Type: "string"},
			{Name: "created_at", Type: "timestamp", Auto: "create"},
		},
	}
	if w := res.WritableFields(); len(w) != 2 {
		t.Fatalf("natural keys are writable on create, got %v", w)
	}
	if u := res.UpdatableFields(); len(u) != 1 || u[0].Name != "value" {
		t.Fatalf("expected only value updatable, got %v", u)
	}
}

func TestRegistryLoadKeepsOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Load(Catalog())

	all := reg.All()
	if len(all) != 7 || all[0].Name != "agencies" || all[6].Name != "settings" {
		t.Fatalf("unexpected order: %d resources", len(all))
	}
	if reg.Get("voyages") == nil {
		t.Fatal("expected voyages")
	}
	if reg.Get("auditLogs") != nil {
		t.Fatal("auditLogs has no table")
	}

	reg.Load([]*Resource{{Name: "a"}, {Name: "b"}, {Name: "a", Label: "again"}})
	if all := reg.All(); len(all) != 2 || all[0].Label != "again" {
		t.Fatalf("duplicate names should replace in place, got %+v", all)
	}
}

func TestTransitionFromJSON(t *testing.T) {
	var tr Transition
	if err := json.Unmarshal([]byte(`{"from": "pending", "to": "validated", "permission": "validate"}`), &tr); err != nil {
		t.Fatal(err)
	}
	if len(tr.From) != 1 || tr.From[0] != "pending" {
		t.Fatalf("unexpected from: %v", tr.From)
	}
	if err := json.Unmarshal([]byte(`{"from": ["open", "assigned"], "to": "closed"}`), &tr); err != nil {
		t.Fatal(err)
	}
	if len(tr.From) != 2 {
		t.Fatalf("unexpected from: %v", tr.From)
	}

	b, _ := json.Marshal(TransitionFrom{"open"})
	if string(b) != `"open"` {
		t.Fatalf("single from should marshal as a string, got %s", b)
	}
}

func TestSessionAgencyScoped(t *testing.T) {
	var nilSession *Session
	if nilSession.AgencyScoped() {
		t.Fatal("nil session is not agency scoped")
	}
	if (&Session{Role: access.RoleSuperAdmin}).AgencyScoped() {
		t.Fatal("super admin is not agency scoped")
	}
	if !(&Session{Role: access.RoleAgentAgence, AgencyID: "a"}).AgencyScoped() {
		t.Fatal("agents are agency scoped")
	}
}
