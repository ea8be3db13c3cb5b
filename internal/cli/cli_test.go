package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testEnv points the CLI at a fresh database and a fast bcrypt cost.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("JWT_SECRET", "cli-test-secret-0123456789")
	t.Setenv("DB_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("BCRYPT_COST", "4")
	t.Setenv("TIME_ZONE", "UTC")
	t.Setenv("LOG_LEVEL", "error")
	t.Setenv(EnvConfigFile, "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root, a := newRoot()
	defer a.close()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	if err != nil {
		t.Fatalf("%v: %v\n%s", args, err, out)
	}
	return out
}

const fixture = `
rooms: ["101", "102"]
devices:
  - {code: KEY-101, room: "101", type: key}
  - {code: MIC-101, room: "101", type: microphone, version: backup}
accounts:
  - {first_name: Carl, last_name: Desk, login: carl, password: desk-pass, card_id: CARD-C, role: concierge}
  - {first_name: Bea, last_name: Borrow, login: bea, password: bea-pass}
guests:
  - {first_name: Gus, last_name: Visitor, organization: ACME}
permissions:
  - {login: bea, room: "101", starts_at: 2026-03-10T08:00:00Z, ends_at: 2026-03-10T10:00:00Z}
`

func seedFixture(t *testing.T, dir string) {
	t.Helper()
	path := filepath.Join(dir, "fixture.yaml")
	if err := os.WriteFile(path, []byte(fixture), 0o600); err != nil {
		t.Fatal(err)
	}
	out := mustRun(t, "seed", path)
	if !strings.Contains(out, "rooms=2 devices=2 accounts=2 guests=1 permissions=1") {
		t.Fatalf("unexpected seed report: %q", out)
	}
}

func TestMigrate(t *testing.T) {
	testEnv(t)
	if out := mustRun(t, "migrate"); !strings.Contains(out, "migrated") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestLoadRequiresSecret(t *testing.T) {
	testEnv(t)
	t.Setenv("JWT_SECRET", "")
	if _, err := run(t, "migrate"); err == nil {
		t.Fatalf("expected configuration error")
	}
}

func TestConfigFileFlag(t *testing.T) {
	dir := testEnv(t)
	os.Unsetenv("DB_PATH")
	dbPath := filepath.Join(dir, "from-file.db")
	cfgPath := filepath.Join(dir, "roomaccess.yaml")
	if err := os.WriteFile(cfgPath, []byte("db_path: "+dbPath+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("DB_PATH") })

	out := mustRun(t, "--config", cfgPath, "migrate")
	if !strings.Contains(out, dbPath) {
		t.Fatalf("config file not applied: %q", out)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Fatalf("database not created: %v", err)
	}
}

func TestSeed_DuplicateStopsWithPartialReport(t *testing.T) {
	dir := testEnv(t)
	seedFixture(t, dir)

	out, err := run(t, "seed", filepath.Join(dir, "fixture.yaml"))
	if err == nil || !strings.Contains(err.Error(), `room "101"`) {
		t.Fatalf("expected duplicate room error, got %v", err)
	}
	if !strings.Contains(out, "rooms=0") {
		t.Fatalf("unexpected report %q", out)
	}
}

func TestUserCommands(t *testing.T) {
	testEnv(t)
	out := mustRun(t, "user", "create-account", "--first-name", "Ada", "--login", "ada", "--password", "pw", "--role", "admin")
	if !strings.Contains(out, "ada (admin)") {
		t.Fatalf("unexpected output %q", out)
	}
	out = mustRun(t, "user", "create-guest", "--first-name", "Gus", "--last-name", "Visitor")
	if !strings.Contains(out, "Gus Visitor") {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := run(t, "user", "create-account", "--first-name", "Ada", "--login", "ada", "--password", "pw"); err == nil {
		t.Fatalf("duplicate login must fail")
	}
	if _, err := run(t, "user", "create-account", "--login", "x", "--password", "pw"); err == nil {
		t.Fatalf("missing --first-name must fail")
	}
}

func TestPermissionCommands(t *testing.T) {
	dir := testEnv(t)
	seedFixture(t, dir)

	out := mustRun(t, "permission", "list", "--room", "101")
	if !strings.Contains(out, "2026-03-10 08:00") || !strings.Contains(out, "2026-03-10 10:00") {
		t.Fatalf("unexpected listing %q", out)
	}

	// Same room, overlapping interval.
	if _, err := run(t, "permission", "grant", "--user", "2", "--room", "101",
		"--from", "2026-03-10 09:00", "--to", "2026-03-10 11:00"); err == nil {
		t.Fatalf("overlapping grant must fail")
	}
	out = mustRun(t, "permission", "grant", "--user", "2", "--room", "102",
		"--from", "2026-03-10 09:00", "--to", "2026-03-10T11:00:00Z")
	if !strings.Contains(out, "room 102") {
		t.Fatalf("unexpected grant output %q", out)
	}
	if _, err := run(t, "permission", "grant", "--user", "2", "--room", "102", "--from", "tomorrow", "--to", "later"); err == nil {
		t.Fatalf("bad time must fail")
	}

	out = mustRun(t, "permission", "prune", "--retention", "0s")
	if !strings.Contains(out, "pruned 2 permissions") {
		t.Fatalf("unexpected prune output %q", out)
	}
}

func TestSessionCommands(t *testing.T) {
	dir := testEnv(t)
	seedFixture(t, dir)

	root, a := newRoot()
	root.SetArgs([]string{"migrate"})
	root.SetOut(&bytes.Buffer{})
	if err := root.Execute(); err != nil {
		t.Fatal(err)
	}
	st, err := a.services()
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	first, err := st.Sessions.Open(ctx, 2, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := st.Admission.Propose(ctx, "KEY-101", first.ID, true); err != nil {
		t.Fatalf("propose: %v", err)
	}
	second, err := st.Sessions.Open(ctx, 2, 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := st.Admission.Propose(ctx, "MIC-101", second.ID, true); err != nil {
		t.Fatalf("propose: %v", err)
	}
	a.close()

	out := mustRun(t, "session", "list", "in_progress")
	if !strings.Contains(out, "in_progress") || !strings.Contains(out, "2 of 2") {
		t.Fatalf("unexpected listing %q", out)
	}

	if _, err := run(t, "session", "approve", "1", "--login", "carl", "--password", "wrong"); err == nil {
		t.Fatalf("bad password must fail")
	}
	if _, err := run(t, "session", "approve", "1", "--login", "carl"); err == nil {
		t.Fatalf("--login without --password must fail")
	}
	out = mustRun(t, "session", "approve", "1", "--card", "CARD-C")
	if !strings.Contains(out, "1 operations committed") || !strings.Contains(out, "take") {
		t.Fatalf("unexpected approve output %q", out)
	}

	out = mustRun(t, "session", "reject", "2")
	if !strings.Contains(out, "1 pending operations discarded") {
		t.Fatalf("unexpected reject output %q", out)
	}
	if _, err := run(t, "session", "reject", "2"); err == nil {
		t.Fatalf("second reject must conflict")
	}
	if _, err := run(t, "session", "reject", "abc"); err == nil {
		t.Fatalf("bad id must fail")
	}

	out = mustRun(t, "session", "list")
	if !strings.Contains(out, "approved") || !strings.Contains(out, "rejected") {
		t.Fatalf("unexpected listing %q", out)
	}
}

func TestJanitorRun(t *testing.T) {
	testEnv(t)
	out := mustRun(t, "janitor", "run")
	if !strings.Contains(out, "permissions=0 tokens=0 idempotency=0") {
		t.Fatalf("unexpected output %q", out)
	}
}
