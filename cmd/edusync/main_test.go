package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/edusync/edusync/internal/config"
	"github.com/edusync/edusync/internal/devserver"
	"github.com/edusync/edusync/internal/tokenstore"
)

const (
	testAdminEmail    = "admin@school.edu"
	testAdminPassword = "admin-pass-1"
)

// harness runs commands against an in-process backend. The token store is
// shared across invocations the way the token file is between real runs.
type harness struct {
	t      *testing.T
	store  *devserver.Store
	tokens *tokenstore.Memory
	url    string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := devserver.NewStore(bcrypt.MinCost)
	if err := devserver.Seed(context.Background(), store, testAdminEmail, testAdminPassword); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(devserver.NewRouter(devserver.RouterDeps{
		Store:  store,
		Tokens: devserver.NewTokens("cli-secret", time.Hour),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	t.Cleanup(srv.Close)
	return &harness{t: t, store: store, tokens: &tokenstore.Memory{}, url: srv.URL + "/api"}
}

// passwords makes the hidden prompt return each value in turn.
func passwords(t *testing.T, values ...string) {
	t.Helper()
	orig := readPasswordFunc
	t.Cleanup(func() { readPasswordFunc = orig })
	readPasswordFunc = func(int) ([]byte, error) {
		if len(values) == 0 {
			return nil, errors.New("unexpected password prompt")
		}
		v := values[0]
		values = values[1:]
		return []byte(v), nil
	}
}

func (h *harness) run(stdin string, args ...string) (string, error) {
	h.t.Helper()
	opts := &rootOptions{
		newApp: func(cmd *cobra.Command, _ string) (*app, error) {
			cfg, err := config.Load("")
			if err != nil {
				return nil, err
			}
			cfg.API.BaseURL = h.url
			logger := slog.New(slog.NewTextHandler(io.Discard, nil))
			return assemble(cmd, cfg, logger, h.tokens, nil), nil
		},
	}
	root := newRootCmd(opts)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (h *harness) loginAdmin() {
	h.t.Helper()
	passwords(h.t, testAdminPassword)
	if _, err := h.run("", "login", "--email", testAdminEmail); err != nil {
		h.t.Fatalf("login: %v", err)
	}
}

func (h *harness) addTeacher(name, email string) *devserver.User {
	h.t.Helper()
	u, err := h.store.Create(context.Background(), devserver.CreateUserInput{Name: name, Email: email, Password: "teacher-pass", Role: devserver.RoleTeacher})
	if err != nil {
		h.t.Fatal(err)
	}
	return u
}

func TestVersion(t *testing.T) {
	h := newHarness(t)
	out, err := h.run("", "version")
	if err != nil {
		t.Fatal(err)
	}
	if out != "edusync v"+version+"\n" {
		t.Errorf("unexpected output %q", out)
	}
}

func TestLogin_PromptsForEmail(t *testing.T) {
	h := newHarness(t)
	passwords(t, testAdminPassword)

	out, err := h.run(testAdminEmail+"\n", "login")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if !strings.Contains(out, "Email: ") || !strings.Contains(out, "Logged in as Administrator") {
		t.Errorf("unexpected output %q", out)
	}
	if tok, _ := h.tokens.Read(context.Background()); tok == "" {
		t.Error("expected token to be stored")
	}
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newHarness(t)
	passwords(t, "wrong")

	_, err := h.run("", "login", "--email", testAdminEmail)
	if !errors.Is(err, errInvalidCredentials) {
		t.Fatalf("expected invalid credentials, got %v", err)
	}
	if tok, _ := h.tokens.Read(context.Background()); tok != "" {
		t.Error("token store must stay empty")
	}
}

func TestLogin_AlreadyLoggedIn(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()

	out, err := h.run("", "login")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Already logged in") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestWhoamiAndLogout(t *testing.T) {
	h := newHarness(t)

	out, _ := h.run("", "whoami")
	if !strings.Contains(out, "Not logged in") {
		t.Errorf("expected not logged in, got %q", out)
	}

	h.loginAdmin()
	out, err := h.run("", "whoami")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, testAdminEmail) || !strings.Contains(out, "(admin)") {
		t.Errorf("unexpected whoami output %q", out)
	}

	if _, err := h.run("", "logout"); err != nil {
		t.Fatal(err)
	}
	out, _ = h.run("", "whoami")
	if !strings.Contains(out, "Not logged in") {
		t.Errorf("expected not logged in after logout, got %q", out)
	}
}

func TestWhoami_StaleTokenDegradesSilently(t *testing.T) {
	h := newHarness(t)
	_ = h.tokens.Save(context.Background(), "stale")

	out, err := h.run("", "whoami")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "Not logged in") {
		t.Errorf("unexpected output %q", out)
	}
	if tok, _ := h.tokens.Read(context.Background()); tok != "" {
		t.Error("expected stale token cleared")
	}
}

func TestMenu(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()
	out, err := h.run("", "menu")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "/dashboard/registrar") {
		t.Errorf("admin menu should list the registry: %q", out)
	}
}

func TestTeachers_GatedForTeacher(t *testing.T) {
	h := newHarness(t)
	h.addTeacher("T", "t@school.edu")
	passwords(t, "teacher-pass")
	if _, err := h.run("", "login", "--email", "t@school.edu"); err != nil {
		t.Fatal(err)
	}

	_, err := h.run("", "teachers", "list")
	if err == nil || err.Error() != `unknown command "teachers" for "edusync"` {
		t.Fatalf("expected unknown command, got %v", err)
	}

	out, _ := h.run("", "menu")
	if strings.Contains(out, "/dashboard/registrar") {
		t.Errorf("teacher menu must not list the registry: %q", out)
	}
}

func TestTeachers_RequiresLogin(t *testing.T) {
	h := newHarness(t)
	if _, err := h.run("", "teachers", "list"); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("expected errNotLoggedIn, got %v", err)
	}
}

func TestTeachers_Lifecycle(t *testing.T) {
	h := newHarness(t)
	h.loginAdmin()

	out, err := h.run("", "teachers", "list")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "No teachers registered") {
		t.Errorf("unexpected empty list output %q", out)
	}

	passwords(t, "password1", "password1")
	out, err = h.run("", "teachers", "create", "--name", "Grace", "--email", "grace@school.edu")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.Contains(out, "Teacher registered successfully") || !strings.Contains(out, "grace@school.edu") {
		t.Errorf("unexpected create output %q", out)
	}

	_, err = h.run("", "teachers", "create", "--name", "G2", "--email", "grace@school.edu",
		"--password", "password1", "--password-confirmation", "password1")
	if err == nil || !strings.Contains(err.Error(), "The email has already been taken.") {
		t.Fatalf("expected duplicate email error, got %v", err)
	}

	grace, err := h.store.GetByEmail(context.Background(), "grace@school.edu")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := h.run("", "teachers", "edit", grace.ID, "--name", "Grace Hopper"); err != nil {
		t.Fatalf("edit: %v", err)
	}
	updated, _ := h.store.GetByID(context.Background(), grace.ID)
	if updated.Name != "Grace Hopper" || updated.Email != "grace@school.edu" {
		t.Errorf("unexpected user after edit %+v", updated)
	}
	if !devserver.CheckPassword(updated, "password1") {
		t.Error("edit without --password must keep the password")
	}

	passwords(t, "password2")
	if _, err := h.run("", "teachers", "edit", grace.ID, "--password", "password2"); err != nil {
		t.Fatalf("edit password: %v", err)
	}
	updated, _ = h.store.GetByID(context.Background(), grace.ID)
	if !devserver.CheckPassword(updated, "password2") {
		t.Error("expected password change")
	}

	out, err = h.run("n\n", "teachers", "delete", grace.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "Cancelled") {
		t.Errorf("expected cancel, got %q", out)
	}
	if _, err := h.store.GetByID(context.Background(), grace.ID); err != nil {
		t.Fatal("declined delete must keep the account")
	}

	out, err = h.run("", "teachers", "delete", grace.ID, "--yes")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "Teacher deleted") {
		t.Errorf("unexpected delete output %q", out)
	}
	if _, err := h.run("", "teachers", "delete", grace.ID, "--yes"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("expected not found, got %v", err)
	}
}
