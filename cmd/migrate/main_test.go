package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

type fakeMigrator struct {
	plan    []postgres.MigrationInfo
	upSteps []int
	downErr error
}

func newFakeMigrator() *fakeMigrator {
	return &fakeMigrator{
		plan: []postgres.MigrationInfo{
			{Version: 1, Name: "catalog", Applied: true},
			{Version: 2, Name: "orders", Applied: true},
			{Version: 3, Name: "outbox", Applied: false},
		},
	}
}

func (f *fakeMigrator) MigrateUp(_ context.Context, steps int) error {
	f.upSteps = append(f.upSteps, steps)
	for i := range f.plan {
		f.plan[i].Applied = true
	}
	return nil
}

func (f *fakeMigrator) MigrateDown(context.Context, int) error { return f.downErr }

func (f *fakeMigrator) MigrationStatus(context.Context) (int64, int, error) {
	var (
		version int64
		count   int
	)
	for _, m := range f.plan {
		if m.Applied {
			count++
			version = m.Version
		}
	}
	return version, count, nil
}

func (f *fakeMigrator) MigrationPlan(context.Context) ([]postgres.MigrationInfo, error) {
	return f.plan, nil
}

func TestRun_Up(t *testing.T) {
	m := newFakeMigrator()
	var out bytes.Buffer

	if err := run(context.Background(), m, " UP ", 0, &out); err != nil {
		t.Fatalf("run up: %v", err)
	}
	if len(m.upSteps) != 1 || m.upSteps[0] != 0 {
		t.Fatalf("unexpected up calls: %v", m.upSteps)
	}
	if got := out.String(); got != "migrate up ok: version=3 applied=3\n" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestRun_Status(t *testing.T) {
	var out bytes.Buffer

	if err := run(context.Background(), newFakeMigrator(), "status", 0, &out); err != nil {
		t.Fatalf("run status: %v", err)
	}

	got := out.String()
	for _, want := range []string{"VERSION", "0001", "catalog", "0003", "outbox", "false", "version=2 applied=2"} {
		if !strings.Contains(got, want) {
			t.Errorf("status output %q is missing %q", got, want)
		}
	}
}

func TestRun_Errors(t *testing.T) {
	m := newFakeMigrator()
	m.downErr = errors.New("lock timeout")

	err := run(context.Background(), m, "down", 1, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "migrate down failed") {
		t.Fatalf("expected down failure, got %v", err)
	}

	err = run(context.Background(), m, "sideways", 0, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "unsupported direction") {
		t.Fatalf("expected unsupported direction, got %v", err)
	}
}

func TestMainMissingDSNExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_EXIT") == "1" {
		os.Args = []string{"migrate", "-direction=status", "-dsn="}
		_ = os.Unsetenv(envPostgresDSN)
		main()
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestMainMissingDSNExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}

func TestFailExits(t *testing.T) {
	if os.Getenv("MIGRATE_TEST_FAIL_EXIT") == "1" {
		fail("forced failure %d", 42)
		return
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestFailExits")
	cmd.Env = append(os.Environ(), "MIGRATE_TEST_FAIL_EXIT=1")
	err := cmd.Run()
	if err == nil {
		t.Fatal("expected subprocess to exit with error")
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() == 0 {
		t.Fatalf("expected non-zero exit code, got %v", err)
	}
}
