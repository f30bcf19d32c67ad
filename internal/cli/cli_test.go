package cli

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/vango-go/meetai/pkg/gateway/config"
)

func execute(t *testing.T, deps *Dependencies, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd(deps)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func testDeps(load func() (config.Config, error)) *Dependencies {
	return &Dependencies{
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		LoadConfig: load,
	}
}

func TestCleanCmd_Args(t *testing.T) {
	out, err := execute(t, testDeps(nil), "", "clean", "**Hello**", "[docs](https://x.dev)")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "Hello docs\n" {
		t.Fatalf("out=%q", out)
	}
}

func TestCleanCmd_Stdin(t *testing.T) {
	out, err := execute(t, testDeps(nil), "# Title\n- `code`", "clean")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if out != "Title\ncode\n" {
		t.Fatalf("out=%q", out)
	}
}

func TestMigrateCmd_RequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := execute(t, testDeps(nil), "", "migrate")
	if err == nil || !strings.Contains(err.Error(), "DATABASE_URL") {
		t.Fatalf("err=%v", err)
	}
}

func TestWorkerCmd_ConfigErrors(t *testing.T) {
	_, err := execute(t, testDeps(func() (config.Config, error) {
		return config.Config{}, errors.New("boom")
	}), "", "worker")
	if err == nil || err.Error() != "load config: boom" {
		t.Fatalf("err=%v", err)
	}

	_, err = execute(t, testDeps(func() (config.Config, error) {
		return config.Config{}, nil
	}), "", "worker")
	if err == nil || !strings.Contains(err.Error(), "REDIS_URL") {
		t.Fatalf("err=%v", err)
	}
}
