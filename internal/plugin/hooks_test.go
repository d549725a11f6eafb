package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestManager_Resolve(t *testing.T) {
	tmpDir := t.TempDir()
	writeManifest(t, tmpDir, "keyboard", Manifest{Name: "keyboard", Executable: "keyboard", Actions: []string{"type"}})

	manager := NewManager(tmpDir, nil)
	manager.Discover()

	hooks, err := manager.Resolve([]string{"keyboard:type"})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(hooks) != 1 || hooks[0].String() != "keyboard:type" {
		t.Errorf("unexpected hooks %v", hooks)
	}

	tests := []struct {
		binding string
		want    error
	}{
		{"keyboard", nil},
		{":type", nil},
		{"mouse:click", ErrPluginNotFound},
		{"keyboard:shortcut", ErrUnsupportedAction},
	}
	for _, tt := range tests {
		_, err := manager.Resolve([]string{tt.binding})
		if err == nil {
			t.Errorf("%s: expected an error", tt.binding)
			continue
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.binding, err, tt.want)
		}
	}
}

func TestDispatcher_DeliversInOrder(t *testing.T) {
	out := filepath.Join(t.TempDir(), "typed.txt")
	recorder := scriptPlugin(t, "recorder", `INPUT=$(cat)
echo "$INPUT" | sed -n 's/.*"letter":"\([^"]*\)".*/\1/p' >> `+out+`
echo '{"success":true}'
`, "type")
	failing := scriptPlugin(t, "failing", "exit 1\n", "type")

	d := NewDispatcher(NewExecutor(0), []Hook{
		{Plugin: failing, Action: "type"},
		{Plugin: recorder, Action: "type"},
	}, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	for _, l := range []string{"M", "U", "D"} {
		if !d.Notify(Event{Kind: "alphabet", Letter: l}) {
			t.Fatalf("Notify(%s) dropped", l)
		}
	}

	deadline := time.Now().Add(10 * time.Second)
	for {
		data, _ := os.ReadFile(out)
		if string(data) == "M\nU\nD\n" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("typed %q, want M U D", data)
		}
		time.Sleep(20 * time.Millisecond)
	}

	cancel()
	<-done
}

func TestDispatcher_QueueFull(t *testing.T) {
	idle := &Plugin{Manifest: Manifest{Name: "idle", Actions: []string{"type"}}}
	d := NewDispatcher(NewExecutor(0), []Hook{{Plugin: idle, Action: "type"}}, nil)

	// Nothing drains the queue.
	for i := 0; i < DefaultQueueSize; i++ {
		if !d.Notify(Event{Letter: "A"}) {
			t.Fatalf("Notify() %d dropped before the queue was full", i)
		}
	}
	if d.Notify(Event{Letter: "B"}) {
		t.Error("Notify() on a full queue should drop")
	}

	empty := NewDispatcher(NewExecutor(0), nil, nil)
	for i := 0; i <= DefaultQueueSize; i++ {
		if !empty.Notify(Event{Letter: "A"}) {
			t.Fatal("a dispatcher without hooks never drops")
		}
	}
}
