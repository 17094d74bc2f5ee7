package review

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"testing"

	"lightbox/internal/logging"
)

func TestCommandLauncherAppendsToken(t *testing.T) {
	var gotName string
	var gotArgs []string
	orig := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		gotName = name
		gotArgs = args
		return exec.CommandContext(ctx, "sh", "-c", "exit 0")
	}
	t.Cleanup(func() { commandContext = orig })

	launcher := NewCommandLauncher([]string{"capture-app", "--resume"}, logging.NewNop())
	if err := launcher.Launch(context.Background(), "still:secure"); err != nil {
		t.Fatalf("Launch: %v", err)
	}
	if gotName != "capture-app" || !reflect.DeepEqual(gotArgs, []string{"--resume", "still:secure"}) {
		t.Fatalf("ran %s %v", gotName, gotArgs)
	}
}

func TestCommandLauncherEmptyCommand(t *testing.T) {
	launcher := NewCommandLauncher(nil, logging.NewNop())
	if launcher != nil {
		t.Fatal("expected nil launcher for empty command")
	}
	if err := launcher.Launch(context.Background(), "x"); !errors.Is(err, ErrNoLauncher) {
		t.Fatalf("expected ErrNoLauncher, got %v", err)
	}
}
