package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"ticketing-backend/internal/access"
	"ticketing-backend/internal/config"
	"ticketing-backend/internal/instrument"
	"ticketing-backend/internal/metadata"
	"ticketing-backend/internal/store"
)

type captureRecorder struct {
	mu      sync.Mutex
	denials []instrument.Denial
}

func (r *captureRecorder) RecordDenial(d instrument.Denial) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.denials = append(r.denials, d)
}

func (r *captureRecorder) all() []instrument.Denial {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]instrument.Denial(nil), r.denials...)
}

type testEnv struct {
	app      *fiber.App
	store    *store.Store
	seed     *store.DemoSeed
	recorder *captureRecorder
}

// newTestEnv boots a seeded SQLite store behind the dynamic routes. Requests
// carry their session in X-Test-* headers.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	s, err := store.New(ctx, config.DatabaseConfig{Driver: "sqlite", Name: "engine", Path: t.TempDir()})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(s.Close)

	reg := metadata.NewRegistry()
	reg.Load(metadata.Catalog())
	if err := CompileRegistry(reg); err != nil {
		t.Fatalf("compile: %v", err)
	}
	if err := s.Bootstrap(ctx, reg.All()); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	seed, err := s.SeedDemo(ctx, "demo-password")
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	rec := &captureRecorder{}
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(func(c *fiber.Ctx) error {
		if role := c.Get("X-Test-Role"); role != "" {
			n, _ := strconv.Atoi(role)
			c.Locals(SessionKey, &metadata.Session{
				UserID:   c.Get("X-Test-User"),
				Role:     access.Role(n),
				AgencyID: c.Get("X-Test-Agency"),
			})
		}
		return c.Next()
	})
	guard := NewGuard(access.New(access.DefaultTable()), rec)
	RegisterDynamicRoutes(app, NewHandler(s, reg, guard))

	return &testEnv{app: app, store: s, seed: seed, recorder: rec}
}

func (e *testEnv) session(role access.Role) *metadata.Session {
	s := &metadata.Session{UserID: e.seed.Users[role], Role: role}
	if role.IsAgencyUser() {
		s.AgencyID = e.seed.Agencies[0]
	}
	return s
}

type apiResponse struct {
	Status int             `json:"-"`
	Header http.Header     `json:"-"`
	Raw    []byte          `json:"-"`
	Data   json.RawMessage `json:"data"`
	Meta   map[string]any  `json:"meta"`
	Error  *AppError       `json:"error"`
}

func (r *apiResponse) record(t *testing.T) map[string]any {
	t.Helper()
	var m map[string]any
	if err := json.Unmarshal(r.Data, &m); err != nil {
		t.Fatalf("decode record: %v (%s)", err, r.Raw)
	}
	return m
}

func (r *apiResponse) records(t *testing.T) []map[string]any {
	t.Helper()
	var rows []map[string]any
	if err := json.Unmarshal(r.Data, &rows); err != nil {
		t.Fatalf("decode records: %v (%s)", err, r.Raw)
	}
	return rows
}

func (e *testEnv) do(t *testing.T, method, path string, session *metadata.Session, body any) *apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if session != nil {
		req.Header.Set("X-Test-Role", strconv.Itoa(int(session.Role)))
		req.Header.Set("X-Test-User", session.UserID)
		req.Header.Set("X-Test-Agency", session.AgencyID)
	}
	resp, err := e.app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	raw, _ := io.ReadAll(resp.Body)
	out := &apiResponse{Status: resp.StatusCode, Header: resp.Header, Raw: raw}
	if strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(raw, out); err != nil {
			t.Fatalf("decode %s %s: %v (%s)", method, path, err, raw)
		}
	}
	return out
}

func expectError(t *testing.T, r *apiResponse, status int, code string) {
	t.Helper()
	if r.Status != status {
		t.Fatalf("expected %d, got %d: %s", status, r.Status, r.Raw)
	}
	if r.Error == nil || r.Error.Code != code {
		t.Fatalf("expected error code %s, got %s", code, r.Raw)
	}
}

func (e *testEnv) transactionID(t *testing.T, reference string) string {
	t.Helper()
	q := url.Values{"filter[reference]": {reference}}
	r := e.do(t, "GET", "/api/transactions?"+q.Encode(), e.session(access.RoleSuperAdmin), nil)
	rows := r.records(t)
	if len(rows) != 1 {
		t.Fatalf("expected one transaction %s, got %d", reference, len(rows))
	}
	return rows[0]["id"].(string)
}

func TestUnknownResource(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/api/nonexistent", env.session(access.RoleSuperAdmin), nil)
	expectError(t, r, 404, "UNKNOWN_RESOURCE")
	if !strings.Contains(r.Error.Message, "nonexistent") {
		t.Fatalf("expected message to name the resource, got %s", r.Error.Message)
	}
}

func TestMissingSessionIsUnauthorized(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(t, "GET", "/api/agencies", nil, nil), 401, "UNAUTHORIZED")
	expectError(t, env.do(t, "GET", "/api/dashboard", nil, nil), 401, "UNAUTHORIZED")
}

func TestSuperAdminListsAgencies(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/api/agencies", env.session(access.RoleSuperAdmin), nil)
	if r.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.Status, r.Raw)
	}
	if rows := r.records(t); len(rows) != 3 {
		t.Fatalf("expected 3 agencies, got %d", len(rows))
	}
	if r.Meta["total"] != float64(3) || r.Meta["page"] != float64(1) {
		t.Fatalf("unexpected meta: %v", r.Meta)
	}
}

func TestSuperAdminDeletesAgency(t *testing.T) {
	env := newTestEnv(t)
	id := env.seed.Agencies[2]
	r := env.do(t, "DELETE", "/api/agencies/"+id, env.session(access.RoleSuperAdmin), nil)
	if r.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.Status, r.Raw)
	}
	expectError(t, env.do(t, "GET", "/api/agencies/"+id, env.session(access.RoleSuperAdmin), nil), 404, "NOT_FOUND")
}

func TestAgentCannotDeleteAgencies(t *testing.T) {
	env := newTestEnv(t)
	agent := env.session(access.RoleAgentAgence)
	r := env.do(t, "DELETE", "/api/agencies/"+env.seed.Agencies[0], agent, nil)
	expectError(t, r, 403, "FORBIDDEN")

	denials := env.recorder.all()
	if len(denials) != 1 {
		t.Fatalf("expected one recorded denial, got %d", len(denials))
	}
	d := denials[0]
	if d.Resource != "agencies" || d.Action != "delete" || d.Role != access.RoleAgentAgence || d.Method != "DELETE" {
		t.Fatalf("unexpected denial: %+v", d)
	}
	if d.UserID != agent.UserID {
		t.Fatalf("expected denial for %s, got %s", agent.UserID, d.UserID)
	}
}

func TestDenialOutlivesLaterRequests(t *testing.T) {
	env := newTestEnv(t)
	path := "/api/agencies/" + strings.Repeat("a", 24)
	expectError(t, env.do(t, "DELETE", path, env.session(access.RoleAgentAgence), nil), 403, "FORBIDDEN")

	admin := env.session(access.RoleSuperAdmin)
	for i := 0; i < 20; i++ {
		env.do(t, "GET", "/api/settings/"+strings.Repeat("z", 24), admin, nil)
	}

	denials := env.recorder.all()
	if len(denials) != 1 {
		t.Fatalf("expected one recorded denial, got %d", len(denials))
	}
	if d := denials[0]; d.Method != "DELETE" || d.Path != path {
		t.Fatalf("denial changed after later requests: method=%q path=%q", d.Method, d.Path)
	}
}

func TestFinanceExportsButCannotDeleteTransactions(t *testing.T) {
	env := newTestEnv(t)
	finance := env.session(access.RoleSousAdminFinance)

	r := env.do(t, "GET", "/api/transactions/export", finance, nil)
	if r.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.Status, r.Raw)
	}
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("expected text/csv, got %s", ct)
	}
	if !strings.Contains(r.Header.Get("Content-Disposition"), "transactions-") {
		t.Fatalf("unexpected disposition: %s", r.Header.Get("Content-Disposition"))
	}
	lines := strings.Split(strings.TrimSpace(string(r.Raw)), "\n")
	if len(lines) != 4 {
		t.Fatalf("expected header plus 3 rows, got %d lines:\n%s", len(lines), r.Raw)
	}
	if !strings.HasPrefix(lines[0], "id,agency_id,reservation_id,amount,method,reference,status") {
		t.Fatalf("unexpected header: %s", lines[0])
	}

	id := env.transactionID(t, "TX-0001")
	expectError(t, env.do(t, "DELETE", "/api/transactions/"+id, finance, nil), 403, "FORBIDDEN")
}

func TestExportRequiresExportPermission(t *testing.T) {
	env := newTestEnv(t)
	expectError(t, env.do(t, "GET", "/api/voyages/export", env.session(access.RoleSuperAdmin), nil), 403, "FORBIDDEN")
}

func TestUnknownRoleIsDeniedEverywhere(t *testing.T) {
	env := newTestEnv(t)
	ghost := &metadata.Session{UserID: "ghost", Role: access.Role(999)}
	for _, path := range []string{"/api/dashboard", "/api/agencies", "/api/agencyProfile", "/api/reservations"} {
		expectError(t, env.do(t, "GET", path, ghost, nil), 403, "FORBIDDEN")
	}
}

func TestListFiltersSortAndPagination(t *testing.T) {
	env := newTestEnv(t)
	admin := env.session(access.RoleSuperAdmin)

	q := url.Values{"filter[origin]": {"Dakar"}, "sort": {"destination"}, "per_page": {"1"}}
	r := env.do(t, "GET", "/api/voyages?"+q.Encode(), admin, nil)
	rows := r.records(t)
	if len(rows) != 1 {
		t.Fatalf("expected one row per page, got %d", len(rows))
	}
	if rows[0]["destination"] != "Saint-Louis" {
		t.Fatalf("expected Saint-Louis first by destination, got %v", rows[0]["destination"])
	}
	if r.Meta["total"] != float64(2) || r.Meta["per_page"] != float64(1) {
		t.Fatalf("unexpected meta: %v", r.Meta)
	}

	q = url.Values{"filter[price.gte]": {"4000"}}
	if rows := env.do(t, "GET", "/api/voyages?"+q.Encode(), admin, nil).records(t); len(rows) != 2 {
		t.Fatalf("expected 2 voyages priced >= 4000, got %d", len(rows))
	}

	q = url.Values{"filter[status.in]": {"active,suspended"}}
	if rows := env.do(t, "GET", "/api/agencies?"+q.Encode(), admin, nil).records(t); len(rows) != 2 {
		t.Fatalf("expected 2 active agencies, got %d", len(rows))
	}

	q = url.Values{"filter[password]": {"x"}}
	expectError(t, env.do(t, "GET", "/api/users?"+q.Encode(), admin, nil), 400, "UNKNOWN_FIELD")

	q = url.Values{"sort": {"-nope"}}
	expectError(t, env.do(t, "GET", "/api/voyages?"+q.Encode(), admin, nil), 400, "UNKNOWN_FIELD")
}

func TestUsersNeverExposePasswordHash(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/api/users", env.session(access.RoleSuperAdmin), nil)
	rows := r.records(t)
	if len(rows) != len(access.AllRoles()) {
		t.Fatalf("expected one user per role, got %d", len(rows))
	}
	for _, row := range rows {
		if _, ok := row["password_hash"]; ok {
			t.Fatal("password_hash must not be returned")
		}
		if _, ok := row["active"].(bool); !ok {
			t.Fatalf("expected active as bool, got %T", row["active"])
		}
	}
}

func TestSettingsUseNameAsKey(t *testing.T) {
	env := newTestEnv(t)
	admin := env.session(access.RoleSuperAdmin)

	r := env.do(t, "GET", "/api/settings/currency", admin, nil)
	if r.Status != 200 || r.record(t)["value"] != "XOF" {
		t.Fatalf("expected currency=XOF, got %d %s", r.Status, r.Raw)
	}

	r = env.do(t, "PUT", "/api/settings/currency", admin, map[string]any{"value": "EUR"})
	if r.Status != 200 || r.record(t)["value"] != "EUR" {
		t.Fatalf("expected updated value, got %d %s", r.Status, r.Raw)
	}

	expectError(t, env.do(t, "PUT", "/api/settings/currency", admin, map[string]any{"name": "other"}), 422, "VALIDATION_FAILED")
	expectError(t, env.do(t, "POST", "/api/settings", admin, map[string]any{"name": "x", "value": "y"}), 403, "FORBIDDEN")
}

func TestAgencyScoping(t *testing.T) {
	env := newTestEnv(t)
	agent := env.session(access.RoleAgentAgence)

	rows := env.do(t, "GET", "/api/voyages", agent, nil).records(t)
	if len(rows) != 2 {
		t.Fatalf("expected the 2 voyages of the home agency, got %d", len(rows))
	}
	for _, row := range rows {
		if row["agency_id"] != agent.AgencyID {
			t.Fatalf("row from another agency leaked: %v", row)
		}
	}

	other := env.seed.Voyages[2]
	expectError(t, env.do(t, "GET", "/api/voyages/"+other, agent, nil), 404, "NOT_FOUND")

	// the same row is visible to a platform administrator
	if r := env.do(t, "GET", "/api/voyages/"+other, env.session(access.RoleSousAdminOperations), nil); r.Status != 200 {
		t.Fatalf("expected 200 for operations admin, got %d", r.Status)
	}
}

func TestAgencyCreateForcesOwnAgency(t *testing.T) {
	env := newTestEnv(t)
	admin := env.session(access.RoleAdminAgence)

	departure := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Second)
	body := map[string]any{
		"agency_id":    env.seed.Agencies[1],
		"origin":       "Dakar",
		"destination":  "Mbour",
		"departure_at": departure.Format(time.RFC3339),
		"arrival_at":   departure.Add(90 * time.Minute).Format(time.RFC3339),
		"price":        2500,
		"seats":        30,
	}
	r := env.do(t, "POST", "/api/voyages", admin, body)
	if r.Status != 201 {
		t.Fatalf("expected 201, got %d: %s", r.Status, r.Raw)
	}
	rec := r.record(t)
	if rec["agency_id"] != admin.AgencyID {
		t.Fatalf("expected agency_id forced to %s, got %v", admin.AgencyID, rec["agency_id"])
	}
	if rec["status"] != "scheduled" {
		t.Fatalf("expected initial status scheduled, got %v", rec["status"])
	}
	if rec["seats"] != float64(30) {
		t.Fatalf("expected seats=30, got %v", rec["seats"])
	}

	id := rec["id"].(string)
	r = env.do(t, "PUT", "/api/voyages/"+id, admin, map[string]any{"agency_id": env.seed.Agencies[1]})
	expectError(t, r, 422, "VALIDATION_FAILED")
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	admin := env.session(access.RoleSuperAdmin)

	departure := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	r := env.do(t, "POST", "/api/voyages", admin, map[string]any{
		"agency_id":    env.seed.Agencies[0],
		"origin":       "Dakar",
		"destination":  "Dakar",
		"departure_at": departure.Format(time.RFC3339),
		"arrival_at":   departure.Add(time.Hour).Format(time.RFC3339),
		"price":        1000,
		"seats":        10,
	})
	expectError(t, r, 422, "VALIDATION_FAILED")
	if r.Error.Details[0].Message != "Origin and destination must differ" {
		t.Fatalf("unexpected details: %+v", r.Error.Details)
	}

	r = env.do(t, "POST", "/api/voyages", admin, map[string]any{"origin": "Dakar", "bogus": 1})
	expectError(t, r, 422, "VALIDATION_FAILED")
	rules := map[string]string{}
	for _, d := range r.Error.Details {
		rules[d.Field] = d.Rule
	}
	if rules["bogus"] != "unknown" || rules["destination"] != "required" {
		t.Fatalf("expected unknown and required details, got %+v", r.Error.Details)
	}
}

func TestStatusChangesRequireTransition(t *testing.T) {
	env := newTestEnv(t)
	admin := env.session(access.RoleSuperAdmin)

	rows := env.do(t, "GET", "/api/reservations", admin, nil).records(t)
	id := rows[0]["id"].(string)

	r := env.do(t, "PUT", "/api/reservations/"+id, admin, map[string]any{"status": "cancelled"})
	expectError(t, r, 422, "VALIDATION_FAILED")

	r = env.do(t, "POST", "/api/reservations/"+id+"/transition", admin, map[string]any{"to": "cancelled"})
	if r.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.Status, r.Raw)
	}
	rec := r.record(t)
	if rec["status"] != "cancelled" || rec["cancelled_at"] == nil {
		t.Fatalf("expected cancelled reservation with cancelled_at, got %v", rec)
	}

	expectError(t, env.do(t, "POST", "/api/reservations/"+id+"/transition", admin, map[string]any{"to": "confirmed"}), 422, "INVALID_TRANSITION")
}

func TestTransactionTransitions(t *testing.T) {
	env := newTestEnv(t)
	finance := env.session(access.RoleSousAdminFinance)
	id := env.transactionID(t, "TX-0001")
	path := "/api/transactions/" + id + "/transition"

	// agency admins see transactions but may not validate them
	expectError(t, env.do(t, "POST", path, env.session(access.RoleAdminAgence), map[string]any{"to": "validated"}), 403, "FORBIDDEN")
	// operations has no transactions entry at all
	expectError(t, env.do(t, "POST", path, env.session(access.RoleSousAdminOperations), map[string]any{"to": "validated"}), 403, "FORBIDDEN")

	r := env.do(t, "POST", path, finance, map[string]any{"to": "validated"})
	if r.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.Status, r.Raw)
	}
	rec := r.record(t)
	if rec["status"] != "validated" || rec["validated_by"] != finance.UserID || rec["validated_at"] == nil {
		t.Fatalf("unexpected validated record: %v", rec)
	}

	expectError(t, env.do(t, "POST", path, finance, map[string]any{"to": "validated"}), 422, "INVALID_TRANSITION")

	r = env.do(t, "POST", path, finance, map[string]any{"to": "refunded"})
	if r.Status != 200 || r.record(t)["status"] != "refunded" {
		t.Fatalf("expected refunded, got %d %s", r.Status, r.Raw)
	}

	expectError(t, env.do(t, "POST", path, finance, map[string]any{}), 400, "INVALID_PAYLOAD")
	expectError(t, env.do(t, "POST", "/api/settings/currency/transition", env.session(access.RoleSuperAdmin), map[string]any{"to": "x"}), 400, "NO_STATE_MACHINE")
}

func TestTransitionHidesStateWithoutPermission(t *testing.T) {
	env := newTestEnv(t)
	id := env.transactionID(t, "TX-0003")
	path := "/api/transactions/" + id + "/transition"
	agencyAdmin := env.session(access.RoleAdminAgence)

	// pending cannot go to refunded, but the caller must not learn that
	r := env.do(t, "POST", path, agencyAdmin, map[string]any{"to": "refunded"})
	expectError(t, r, 403, "FORBIDDEN")
	if strings.Contains(string(r.Raw), "pending") {
		t.Fatalf("response leaks the current state: %s", r.Raw)
	}
	denials := env.recorder.all()
	if len(denials) != 1 || denials[0].Action != "refund" {
		t.Fatalf("expected a refund denial, got %+v", denials)
	}

	r = env.do(t, "POST", path, agencyAdmin, map[string]any{"to": "bogus"})
	expectError(t, r, 422, "INVALID_TRANSITION")
	if strings.Contains(string(r.Raw), "pending") {
		t.Fatalf("response leaks the current state: %s", r.Raw)
	}

	// holders of the permission still get the detailed answer
	r = env.do(t, "POST", path, env.session(access.RoleSousAdminFinance), map[string]any{"to": "refunded"})
	expectError(t, r, 422, "INVALID_TRANSITION")
}

func TestTransitionGuardBlocks(t *testing.T) {
	env := newTestEnv(t)
	id := env.transactionID(t, "TX-0002")
	if _, err := store.Exec(context.Background(), env.store.DB, "UPDATE transactions SET amount = 0 WHERE id = ?1", id); err != nil {
		t.Fatal(err)
	}

	r := env.do(t, "POST", "/api/transactions/"+id+"/transition", env.session(access.RoleSousAdminFinance), map[string]any{"to": "validated"})
	expectError(t, r, 422, "VALIDATION_FAILED")
	if !strings.Contains(r.Error.Details[0].Message, "blocked by guard") {
		t.Fatalf("expected guard message, got %+v", r.Error.Details)
	}
}

func TestAgencyUsersManagement(t *testing.T) {
	env := newTestEnv(t)
	admin := env.session(access.RoleAdminAgence)

	r := env.do(t, "POST", "/api/users", admin, map[string]any{
		"email": "boss@demo.local", "password": "long-enough", "full_name": "Boss", "role": "SUPER_ADMIN",
	})
	expectError(t, r, 422, "VALIDATION_FAILED")
	if r.Error.Details[0].Field != "role" {
		t.Fatalf("expected role detail, got %+v", r.Error.Details)
	}

	r = env.do(t, "POST", "/api/users", admin, map[string]any{
		"email": "clerk@demo.local", "password": "long-enough", "full_name": "Desk Clerk", "role": "AGENT_AGENCE",
	})
	if r.Status != 201 {
		t.Fatalf("expected 201, got %d: %s", r.Status, r.Raw)
	}
	rec := r.record(t)
	if rec["role"] != float64(access.RoleAgentAgence) || rec["agency_id"] != admin.AgencyID {
		t.Fatalf("unexpected user: %v", rec)
	}
	if _, ok := rec["password_hash"]; ok {
		t.Fatal("password hash leaked in response")
	}

	r = env.do(t, "POST", "/api/users", admin, map[string]any{
		"email": "clerk@demo.local", "password": "long-enough", "full_name": "Second Clerk", "role": "AGENT_AGENCE",
	})
	expectError(t, r, 409, "CONFLICT")

	r = env.do(t, "POST", "/api/users", admin, map[string]any{
		"email": "short@demo.local", "password": "short", "full_name": "Short Pass", "role": "AGENT_AGENCE",
	})
	expectError(t, r, 422, "VALIDATION_FAILED")

	// agency admins cannot delete users
	expectError(t, env.do(t, "DELETE", "/api/users/"+rec["id"].(string), admin, nil), 403, "FORBIDDEN")
}

func TestSuperAdminUserRoleConsistency(t *testing.T) {
	env := newTestEnv(t)
	admin := env.session(access.RoleSuperAdmin)

	r := env.do(t, "POST", "/api/users", admin, map[string]any{
		"email": "agent2@demo.local", "password": "long-enough", "full_name": "No Agency", "role": "AGENT_AGENCE",
	})
	expectError(t, r, 422, "VALIDATION_FAILED")

	r = env.do(t, "POST", "/api/users", admin, map[string]any{
		"email": "fin2@demo.local", "password": "long-enough", "full_name": "Finance Two", "role": 3,
		"agency_id": env.seed.Agencies[0],
	})
	expectError(t, r, 422, "VALIDATION_FAILED")

	r = env.do(t, "POST", "/api/users", admin, map[string]any{
		"email": "fin2@demo.local", "password": "long-enough", "full_name": "Finance Two", "role": 3,
	})
	if r.Status != 201 {
		t.Fatalf("expected 201, got %d: %s", r.Status, r.Raw)
	}
}

func TestDashboardScopedToAgency(t *testing.T) {
	env := newTestEnv(t)
	r := env.do(t, "GET", "/api/dashboard", env.session(access.RoleAdminAgence), nil)
	if r.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.Status, r.Raw)
	}
	var data struct {
		Role  string          `json:"role"`
		Stats []ResourceStats `json:"stats"`
	}
	if err := json.Unmarshal(r.Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Role != "ADMIN_AGENCE" {
		t.Fatalf("expected role ADMIN_AGENCE, got %s", data.Role)
	}
	stats := map[string]ResourceStats{}
	for _, s := range data.Stats {
		stats[s.Resource] = s
	}
	if _, ok := stats["agencies"]; ok {
		t.Fatal("agency admins cannot read agencies")
	}
	if _, ok := stats["settings"]; ok {
		t.Fatal("agency admins cannot read settings")
	}
	if v := stats["voyages"]; v.Total != 2 || v.ByState["scheduled"] != 2 {
		t.Fatalf("unexpected voyage stats: %+v", v)
	}
	if u := stats["users"]; u.Total != 2 {
		t.Fatalf("expected the 2 agency users, got %+v", u)
	}
	if c := stats["complaints"]; c.Total != 1 || c.ByState["open"] != 1 {
		t.Fatalf("unexpected complaint stats: %+v", c)
	}
}

func TestAgencyProfile(t *testing.T) {
	env := newTestEnv(t)
	admin := env.session(access.RoleAdminAgence)
	agent := env.session(access.RoleAgentAgence)

	r := env.do(t, "GET", "/api/agencyProfile", admin, nil)
	if r.Status != 200 {
		t.Fatalf("expected 200, got %d: %s", r.Status, r.Raw)
	}
	if r.record(t)["code"] != "DKR001" {
		t.Fatalf("expected the home agency, got %s", r.Raw)
	}
	actions, _ := r.Meta["actions"].([]any)
	if len(actions) != 2 || actions[0] != "read_own_agency" || actions[1] != "update" {
		t.Fatalf("unexpected actions: %v", r.Meta["actions"])
	}

	// agents can see the profile with no actions
	r = env.do(t, "GET", "/api/agencyProfile", agent, nil)
	if r.Status != 200 {
		t.Fatalf("expected 200 for agent, got %d", r.Status)
	}
	if actions, _ := r.Meta["actions"].([]any); len(actions) != 0 {
		t.Fatalf("expected no actions for agent, got %v", r.Meta["actions"])
	}
	expectError(t, env.do(t, "PUT", "/api/agencyProfile", agent, map[string]any{"city": "Rufisque"}), 403, "FORBIDDEN")

	expectError(t, env.do(t, "PUT", "/api/agencyProfile", admin, map[string]any{"status": "active"}), 422, "VALIDATION_FAILED")

	r = env.do(t, "PUT", "/api/agencyProfile", admin, map[string]any{"city": "Rufisque"})
	if r.Status != 200 || r.record(t)["city"] != "Rufisque" {
		t.Fatalf("expected city update, got %d %s", r.Status, r.Raw)
	}

	// platform admins have no agency profile
	expectError(t, env.do(t, "GET", "/api/agencyProfile", env.session(access.RoleSuperAdmin), nil), 403, "FORBIDDEN")
}
