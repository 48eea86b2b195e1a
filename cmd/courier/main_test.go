package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"courier/internal/ipc"
)

func runCLI(t *testing.T, args []string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stdout)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func writeTestConfig(t *testing.T) string {
	t.Helper()
	base := t.TempDir()
	path := filepath.Join(base, "config.toml")
	content := fmt.Sprintf(`
[paths]
data_dir = %q
log_dir = %q
spool_dir = %q

[source]
base_url = "http://127.0.0.1:9"
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), filepath.Join(base, "spool"))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected output to contain %q, got:\n%s", needle, haystack)
	}
}

func TestConfigInitWritesSample(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")

	out, err := runCLI(t, []string{"config", "init", "--path", target})
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")

	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}
}

func TestConfigInitRefusesExisting(t *testing.T) {
	target := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(target, []byte("# existing\n"), 0o644); err != nil {
		t.Fatalf("seed config: %v", err)
	}

	if _, err := runCLI(t, []string{"config", "init", "--path", target}); err == nil {
		t.Fatal("expected error for existing config without --overwrite")
	}
	if _, err := runCLI(t, []string{"config", "init", "--path", target, "--overwrite"}); err != nil {
		t.Fatalf("config init --overwrite: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cfgPath := writeTestConfig(t)

	out, err := runCLI(t, []string{"-c", cfgPath, "config", "validate"})
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestBatchAddRejectsBadArguments(t *testing.T) {
	cfgPath := writeTestConfig(t)

	cases := []struct {
		name string
		args []string
	}{
		{"bad user id", []string{"batch", "add", "abc", "@chan", "1-3", "42"}},
		{"bad dest chat", []string{"batch", "add", "7", "@chan", "1-3", "x"}},
		{"inverted range", []string{"batch", "add", "7", "@chan", "5-2", "42"}},
		{"zero start", []string{"batch", "add", "7", "@chan", "0", "42"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			args := append([]string{"-c", cfgPath}, tc.args...)
			if _, err := runCLI(t, args); err == nil {
				t.Fatalf("expected error for args %v", tc.args)
			}
		})
	}
}

func TestParseMessageRange(t *testing.T) {
	cases := []struct {
		raw        string
		start, end int64
		ok         bool
	}{
		{"12", 12, 12, true},
		{"3-9", 3, 9, true},
		{"5-5", 5, 5, true},
		{" 10 - 20 ", 10, 20, true},
		{"9-3", 0, 0, false},
		{"0-4", 0, 0, false},
		{"abc", 0, 0, false},
		{"1-", 0, 0, false},
	}
	for _, tc := range cases {
		start, end, err := parseMessageRange(tc.raw)
		if tc.ok != (err == nil) {
			t.Fatalf("parseMessageRange(%q): err=%v, want ok=%v", tc.raw, err, tc.ok)
		}
		if err == nil && (start != tc.start || end != tc.end) {
			t.Fatalf("parseMessageRange(%q) = %d-%d, want %d-%d", tc.raw, start, end, tc.start, tc.end)
		}
	}
}

func TestBatchState(t *testing.T) {
	base := ipc.BatchView{UserID: 1, Total: 4}

	if got := batchState(base); got != "waiting" {
		t.Fatalf("idle state = %q, want waiting", got)
	}

	paused := base
	paused.Paused = true
	if got := batchState(paused); got != "paused" {
		t.Fatalf("paused state = %q", got)
	}

	cancelled := paused
	cancelled.Cancelled = true
	if got := batchState(cancelled); got != "cancelling" {
		t.Fatalf("cancelled state = %q", got)
	}

	active := base
	active.Current = &ipc.TaskView{Status: "downloading"}
	if got := batchState(active); got != "downloading" {
		t.Fatalf("active state = %q", got)
	}
}

func TestFormatHelpers(t *testing.T) {
	if got := formatETA(0); got != "-" {
		t.Fatalf("formatETA(0) = %q", got)
	}
	if got := formatETA(90); got != "1m30s" {
		t.Fatalf("formatETA(90) = %q", got)
	}
	if got := formatTransfer(nil); got != "-" {
		t.Fatalf("formatTransfer(nil) = %q", got)
	}
	got := formatTransfer(&ipc.TaskView{Transferred: 512, Size: 2048, SpeedBps: 256})
	if !strings.Contains(got, "/s") {
		t.Fatalf("formatTransfer = %q, want rate suffix", got)
	}
}

func TestDialErrorHintsAtDaemon(t *testing.T) {
	cfgPath := writeTestConfig(t)

	_, err := runCLI(t, []string{"-c", cfgPath, "--socket", filepath.Join(t.TempDir(), "missing.sock"), "status"})
	if err == nil {
		t.Fatal("expected dial error")
	}
	requireContains(t, err.Error(), "daemon")
}
