package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBinary(t *testing.T) {
	binDir := t.TempDir()
	present := filepath.Join(binDir, "present")
	if err := os.WriteFile(present, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}

	if r := CheckBinary("Encoder", present); !r.Passed || r.Detail != present {
		t.Fatalf("expected stub to resolve, got %+v", r)
	}
	if r := CheckBinary("Encoder", "clearly-not-present-binary"); r.Passed || r.Detail == "" {
		t.Fatalf("expected missing binary to fail with detail, got %+v", r)
	}
	if r := CheckBinary("Encoder", "  "); r.Passed || r.Detail != "command not configured" {
		t.Fatalf("expected unconfigured command to fail, got %+v", r)
	}
}

func TestCheckPortal(t *testing.T) {
	tests := []struct {
		name   string
		owner  NameOwnerFunc
		passed bool
	}{
		{
			name:   "running",
			owner:  func(context.Context, string) (bool, error) { return true, nil },
			passed: true,
		},
		{
			name:  "not running",
			owner: func(context.Context, string) (bool, error) { return false, nil },
		},
		{
			name:  "query error",
			owner: func(context.Context, string) (bool, error) { return false, errors.New("bus gone") },
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var asked string
			owner := func(ctx context.Context, name string) (bool, error) {
				asked = name
				if _, ok := ctx.Deadline(); !ok {
					t.Fatal("expected a bounded context")
				}
				return tt.owner(ctx, name)
			}
			r := CheckPortal(context.Background(), owner)
			if r.Passed != tt.passed {
				t.Fatalf("Passed = %v, want %v (%s)", r.Passed, tt.passed, r.Detail)
			}
			if asked != PortalBusName {
				t.Fatalf("asked about %q, want %q", asked, PortalBusName)
			}
		})
	}
}

func TestCheckRestoreToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "restore_token")
	if r := CheckRestoreToken(path); r.Passed || !r.Optional {
		t.Fatalf("missing token should be an optional failure, got %+v", r)
	}
	if err := os.WriteFile(path, []byte("tok-1\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if r := CheckRestoreToken(path); !r.Passed {
		t.Fatalf("expected saved token to pass, got %+v", r)
	}
}

func TestCheckDeviceWritableRejectsRegularFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "uinput")
	if err := os.WriteFile(f, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	r := CheckDeviceWritable("Virtual input", f)
	if r.Passed || !r.Optional {
		t.Fatalf("expected optional failure for regular file, got %+v", r)
	}
}

func TestFailed(t *testing.T) {
	if Failed([]Result{{Passed: true}, {Optional: true}}) {
		t.Fatal("optional failures must not fail the run")
	}
	if !Failed([]Result{{Passed: true}, {Name: "Encoder"}}) {
		t.Fatal("required failure must fail the run")
	}
}
