// Command keyboard is a mudra plugin that types written letters into the
// focused application. It drives AppleScript on macOS and xdotool on Linux.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"strings"

	"github.com/ayusman/mudra/internal/plugin"
)

// KeyParams are the params of the keystroke and shortcut actions.
type KeyParams struct {
	Key       string   `json:"key"`
	Modifiers []string `json:"modifiers"` // command, option, control, shift
}

var errUnsupportedOS = errors.New("keyboard plugin supports macOS and Linux only")

// backend turns key presses into a command line for the platform tool.
type backend interface {
	typeText(text string) []string
	press(key string, modifiers []string) []string
}

type appleScript struct{}

var appleModifiers = map[string]string{
	"command": "command down",
	"cmd":     "command down",
	"option":  "option down",
	"alt":     "option down",
	"control": "control down",
	"ctrl":    "control down",
	"shift":   "shift down",
}

func (appleScript) typeText(text string) []string {
	return []string{"osascript", "-e", fmt.Sprintf(`tell application "System Events" to keystroke %q`, text)}
}

func (appleScript) press(key string, modifiers []string) []string {
	var mods []string
	for _, m := range modifiers {
		if am, ok := appleModifiers[strings.ToLower(m)]; ok {
			mods = append(mods, am)
		}
	}
	script := fmt.Sprintf(`tell application "System Events" to keystroke %q`, key)
	if len(mods) > 0 {
		script += " using {" + strings.Join(mods, ", ") + "}"
	}
	return []string{"osascript", "-e", script}
}

type xdotool struct{}

var xdotoolModifiers = map[string]string{
	"command": "super",
	"cmd":     "super",
	"option":  "alt",
	"alt":     "alt",
	"control": "ctrl",
	"ctrl":    "ctrl",
	"shift":   "shift",
}

func (xdotool) typeText(text string) []string {
	return []string{"xdotool", "type", "--", text}
}

func (xdotool) press(key string, modifiers []string) []string {
	chord := make([]string, 0, len(modifiers)+1)
	for _, m := range modifiers {
		if xm, ok := xdotoolModifiers[strings.ToLower(m)]; ok {
			chord = append(chord, xm)
		}
	}
	chord = append(chord, key)
	return []string{"xdotool", "key", strings.Join(chord, "+")}
}

func backendFor(goos string) (backend, error) {
	switch goos {
	case "darwin":
		return appleScript{}, nil
	case "linux":
		return xdotool{}, nil
	default:
		return nil, errUnsupportedOS
	}
}

// command builds the tool invocation for req.
func command(b backend, req *plugin.Request) ([]string, error) {
	switch req.Action {
	case "type":
		if req.Letter == "" {
			return nil, errors.New("letter is required")
		}
		// Lower case so the signed text reads as words.
		return b.typeText(strings.ToLower(req.Letter)), nil
	case "keystroke", "shortcut":
		var p KeyParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			return nil, fmt.Errorf("parse params: %w", err)
		}
		if p.Key == "" {
			return nil, errors.New("key is required")
		}
		return b.press(p.Key, p.Modifiers), nil
	default:
		return nil, fmt.Errorf("unknown action: %s", req.Action)
	}
}

func handle(in io.Reader, goos string, run func(args []string) error) plugin.Response {
	var req plugin.Request
	if err := json.NewDecoder(in).Decode(&req); err != nil {
		return plugin.Response{Error: fmt.Sprintf("decode request: %v", err)}
	}
	b, err := backendFor(goos)
	if err != nil {
		return plugin.Response{Error: err.Error()}
	}
	args, err := command(b, &req)
	if err != nil {
		return plugin.Response{Error: err.Error()}
	}
	if err := run(args); err != nil {
		return plugin.Response{Error: fmt.Sprintf("action %s failed: %v", req.Action, err)}
	}
	return plugin.Response{Success: true}
}

func run(args []string) error {
	out, err := exec.Command(args[0], args[1:]...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

func main() {
	json.NewEncoder(os.Stdout).Encode(handle(os.Stdin, runtime.GOOS, run))
}
