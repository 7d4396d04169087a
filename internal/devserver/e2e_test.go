package devserver_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/edusync/edusync/internal/accounts"
	"github.com/edusync/edusync/internal/apiclient"
	"github.com/edusync/edusync/internal/devserver"
	"github.com/edusync/edusync/internal/diag"
	"github.com/edusync/edusync/internal/gate"
	"github.com/edusync/edusync/internal/metrics"
	"github.com/edusync/edusync/internal/session"
	"github.com/edusync/edusync/internal/tokenstore"
)

const (
	adminEmail    = "admin@school.edu"
	adminPassword = "admin-pass-1"
)

// stack is the client side wired the way cmd/edusync wires it.
type stack struct {
	store    *devserver.Store
	tokens   *tokenstore.Memory
	client   *apiclient.Client
	session  *session.Manager
	accounts *accounts.Controller
	diag     *diag.Recorder
	metrics  *metrics.Metrics
}

func newStack(t *testing.T) *stack {
	t.Helper()
	store := devserver.NewStore(bcrypt.MinCost)
	if err := devserver.Seed(context.Background(), store, adminEmail, adminPassword); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(devserver.NewRouter(devserver.RouterDeps{
		Store:  store,
		Tokens: devserver.NewTokens("e2e-secret", time.Hour),
	}))
	t.Cleanup(srv.Close)

	tokens := &tokenstore.Memory{}
	rec := &diag.Recorder{}
	m := metrics.New()

	client := apiclient.New(srv.URL+"/api", tokens, 5*time.Second)
	client.SetMetrics(m)
	mgr := session.NewManager(client, tokens, rec)
	mgr.SetMetrics(m)
	client.OnUnauthorized(mgr.Invalidate)
	ctrl := accounts.NewController(client, rec)
	ctrl.SetMetrics(m)

	return &stack{store: store, tokens: tokens, client: client, session: mgr, accounts: ctrl, diag: rec, metrics: m}
}

func (s *stack) token(t *testing.T) string {
	t.Helper()
	tok, err := s.tokens.Read(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return tok
}

func (s *stack) loginAdmin(t *testing.T) {
	t.Helper()
	if _, err := s.session.Login(context.Background(), adminEmail, adminPassword); err != nil {
		t.Fatalf("login: %v", err)
	}
}

func assertInvariant(t *testing.T, s *stack) {
	t.Helper()
	sess := s.session.Session()
	tok := s.token(t)
	if sess.Status == session.Authenticated && (tok == "" || sess.User == nil) {
		t.Fatalf("authenticated without token or user: token=%q user=%v", tok, sess.User)
	}
	if tok == "" && sess.Status == session.Authenticated {
		t.Fatal("no token but authenticated")
	}
}

func TestE2E_LoginWrongPassword(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.session.Start(ctx)

	_, err := s.session.Login(ctx, adminEmail, "wrong")
	if !errors.Is(err, session.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if st := s.session.Session().Status; st != session.Unauthenticated {
		t.Errorf("expected unauthenticated, got %s", st)
	}
	if s.token(t) != "" {
		t.Error("token store must be untouched")
	}
	assertInvariant(t, s)
}

func TestE2E_LoginRevalidateLogout(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	s.loginAdmin(t)
	assertInvariant(t, s)
	tok := s.token(t)

	first := s.session.Revalidate(ctx)
	second := s.session.Revalidate(ctx)
	if !first.IsAuthenticated() || !second.IsAuthenticated() {
		t.Fatalf("expected authenticated after revalidation, got %s / %s", first.Status, second.Status)
	}
	if *first.User != *second.User {
		t.Errorf("revalidation not idempotent: %+v vs %+v", first.User, second.User)
	}
	if s.token(t) != tok {
		t.Error("revalidation must not change the stored token")
	}

	s.session.Logout(ctx)
	if s.token(t) != "" || s.session.Session().Status != session.Unauthenticated {
		t.Fatal("logout must clear token and session")
	}
	s.session.Logout(ctx)
	assertInvariant(t, s)
}

func TestE2E_StartupWithRejectedToken(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	if err := s.tokens.Save(ctx, "stale-token"); err != nil {
		t.Fatal(err)
	}

	sess := s.session.Start(ctx)
	if sess.Status != session.Unauthenticated {
		t.Fatalf("expected unauthenticated, got %s", sess.Status)
	}
	if s.token(t) != "" {
		t.Error("expected token store cleared")
	}
	events := s.diag.Events()
	if len(events) != 1 || events[0].Op != "session.revalidate" {
		t.Errorf("expected one session.revalidate report, got %v", events)
	}
}

func TestE2E_DeletedUserInvalidatesOnNextRequest(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	u, err := s.store.Create(ctx, devserver.CreateUserInput{Name: "T", Email: "t@school.edu", Password: "teacher-pass", Role: devserver.RoleTeacher})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.session.Login(ctx, "t@school.edu", "teacher-pass"); err != nil {
		t.Fatal(err)
	}
	if err := s.store.Delete(ctx, u.ID); err != nil {
		t.Fatal(err)
	}

	if err := s.accounts.List(ctx); !apiclient.IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
	if s.session.Session().Status != session.Unauthenticated || s.token(t) != "" {
		t.Error("a 401 must clear the session")
	}
	assertInvariant(t, s)
}

func TestE2E_AccountLifecycle(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	s.loginAdmin(t)

	if d := gate.Resolve(s.session.Session(), gate.RegistryPath); d != gate.Render {
		t.Fatalf("admin should reach the registry, got %s", d)
	}

	// Create round-trip.
	f := accounts.Fields{Name: "Grace", Email: "grace@school.edu", Password: "password1", PasswordConfirmation: "password1"}
	if err := s.accounts.Create(ctx, f); err != nil {
		t.Fatalf("create: %v", err)
	}
	v := s.accounts.View()
	if !v.Form.IsZero() {
		t.Errorf("form not cleared: %+v", v.Form)
	}
	if len(v.Accounts) != 1 || v.Accounts[0].Name != "Grace" || v.Accounts[0].Email != "grace@school.edu" {
		t.Fatalf("unexpected list after create: %+v", v.Accounts)
	}
	created := v.Accounts[0]

	// Duplicate email surfaces the backend message.
	if err := s.accounts.Create(ctx, f); !apiclient.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if got := s.accounts.View().Status.Message; got != "The email has already been taken." {
		t.Errorf("unexpected status %q", got)
	}
	if s.accounts.View().Form != f {
		t.Error("form must be kept after a failed create")
	}

	// Update without password keeps credentials.
	if err := s.accounts.OpenEdit(created); err != nil {
		t.Fatal(err)
	}
	if err := s.accounts.EditFields("Grace H", "grace@school.edu", "", ""); err != nil {
		t.Fatal(err)
	}
	if err := s.accounts.SubmitEdit(ctx); err != nil {
		t.Fatalf("edit: %v", err)
	}
	stored, err := s.store.GetByID(ctx, created.ID.String())
	if err != nil {
		t.Fatal(err)
	}
	if stored.Name != "Grace H" || !devserver.CheckPassword(stored, "password1") {
		t.Errorf("unexpected stored user after basic update: %+v", stored)
	}

	// Update with password changes credentials.
	req := accounts.NewUpdateRequest("Grace H", "grace@school.edu", "password2", "password2")
	if err := s.accounts.Update(ctx, created.ID, req); err != nil {
		t.Fatalf("password update: %v", err)
	}
	stored, _ = s.store.GetByID(ctx, created.ID.String())
	if !devserver.CheckPassword(stored, "password2") {
		t.Error("expected password to change")
	}

	// Delete finality.
	if err := s.accounts.OpenDelete(created); err != nil {
		t.Fatal(err)
	}
	if err := s.accounts.ConfirmDelete(ctx); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.accounts.List(ctx); err != nil {
		t.Fatal(err)
	}
	for _, a := range s.accounts.Accounts() {
		if a.ID == created.ID {
			t.Fatal("deleted account still listed")
		}
	}

	sum, err := s.metrics.Summary()
	if err != nil {
		t.Fatal(err)
	}
	if sum.API.TotalRequests == 0 {
		t.Error("expected API requests to be counted")
	}
}

func TestE2E_TeacherNeverReachesRegistry(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	if _, err := s.store.Create(ctx, devserver.CreateUserInput{Name: "T", Email: "t@school.edu", Password: "teacher-pass", Role: devserver.RoleTeacher}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.session.Login(ctx, "t@school.edu", "teacher-pass"); err != nil {
		t.Fatal(err)
	}

	if d := gate.Resolve(s.session.Session(), gate.RegistryPath); d == gate.Render {
		t.Fatal("teacher must not render the registry")
	}
	for _, r := range gate.Menu(s.session.Session()) {
		if r.Path == gate.RegistryPath {
			t.Fatal("registry must not appear in a teacher's menu")
		}
	}

	// The backend refuses even if the client asks directly; the session survives a 403.
	if err := s.accounts.List(ctx); apiclient.StatusOf(err) != 403 {
		t.Fatalf("expected 403, got %v", err)
	}
	if !s.session.Session().IsAuthenticated() {
		t.Error("a 403 must not end the session")
	}
}
