package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

// scriptPlugin writes a shell script plugin into a temp dir.
func scriptPlugin(t *testing.T, name, script string, actions ...string) *Plugin {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	dir := t.TempDir()
	path := filepath.Join(dir, name+".sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("failed to write script: %v", err)
	}
	return &Plugin{
		Manifest: Manifest{
			Name:       name,
			Version:    "1.0.0",
			Executable: name + ".sh",
			Actions:    actions,
		},
		Path:       dir,
		Executable: path,
	}
}

func TestExecutor_Execute(t *testing.T) {
	plugin := scriptPlugin(t, "hello", `echo '{"success":true,"data":{"message":"hello world"}}'
`, "type")

	response, err := NewExecutor(0).Execute(context.Background(), plugin, &Request{Action: "type", Letter: "A"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if !response.Success || response.Error != "" {
		t.Errorf("unexpected response %+v", response)
	}

	var data map[string]string
	if err := json.Unmarshal(response.Data, &data); err != nil {
		t.Fatalf("failed to unmarshal response data: %v", err)
	}
	if data["message"] != "hello world" {
		t.Errorf("expected message 'hello world', got %v", data["message"])
	}
}

func TestExecutor_Execute_ReadsStdin(t *testing.T) {
	plugin := scriptPlugin(t, "echo", `INPUT=$(cat)
echo "{\"success\":true,\"data\":$INPUT}"
`, "type")

	req := &Request{Action: "type", Kind: "alphabet", Letter: "B", Text: "AB"}
	response, err := NewExecutor(0).Execute(context.Background(), plugin, req)
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}

	var received Request
	if err := json.Unmarshal(response.Data, &received); err != nil {
		t.Fatalf("failed to unmarshal echoed request: %v", err)
	}
	if received.Action != "type" || received.Letter != "B" || received.Text != "AB" || received.Kind != "alphabet" {
		t.Errorf("plugin received %+v, want %+v", received, *req)
	}
}

func TestExecutor_Execute_WorkingDir(t *testing.T) {
	plugin := scriptPlugin(t, "pwd", `echo "{\"success\":true,\"error\":\"$(pwd)\"}"
`, "type")

	response, err := NewExecutor(0).Execute(context.Background(), plugin, &Request{Action: "type"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	want, _ := filepath.EvalSymlinks(plugin.Path)
	got, _ := filepath.EvalSymlinks(response.Error)
	if got != want {
		t.Errorf("plugin ran in %q, want %q", got, want)
	}
}

func TestExecutor_Execute_Errors(t *testing.T) {
	tests := []struct {
		name    string
		script  string
		action  string
		timeout time.Duration
		want    error
		wantMsg string
	}{
		{
			name:   "unsupported action",
			script: "echo '{\"success\":true}'\n",
			action: "shortcut",
			want:   ErrUnsupportedAction,
		},
		{
			name:    "timeout",
			script:  "exec sleep 5\n",
			action:  "type",
			timeout: 100 * time.Millisecond,
			want:    ErrTimeout,
		},
		{
			name:    "non-zero exit",
			script:  "echo 'boom' >&2\nexit 3\n",
			action:  "type",
			wantMsg: "boom",
		},
		{
			name:    "invalid json",
			script:  "echo 'not json'\n",
			action:  "type",
			wantMsg: "not json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plugin := scriptPlugin(t, "bad", tt.script, "type")
			_, err := NewExecutor(tt.timeout).Execute(context.Background(), plugin, &Request{Action: tt.action})
			if err == nil {
				t.Fatal("expected an error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
			if tt.wantMsg != "" && !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestExecutor_Execute_PluginFailure(t *testing.T) {
	plugin := scriptPlugin(t, "refuse", "echo '{\"success\":false,\"error\":\"no display\"}'\n", "type")

	response, err := NewExecutor(0).Execute(context.Background(), plugin, &Request{Action: "type"})
	if err != nil {
		t.Fatalf("Execute() failed: %v", err)
	}
	if response.Success || response.Error != "no display" {
		t.Errorf("unexpected response %+v", response)
	}
}
