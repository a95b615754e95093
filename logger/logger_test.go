package logger

import (
	"context"
	"testing"
)

func TestNewKnownEnvironments(t *testing.T) {
	for _, env := range []string{"local", "dev", "docker", "prod"} {
		t.Run(env, func(t *testing.T) {
			l, err := New(env)
			if err != nil {
				t.Fatalf("New(%q): %v", env, err)
			}
			if l == nil {
				t.Fatal("nil logger")
			}
		})
	}
}

func TestNewUnknownEnvironment(t *testing.T) {
	if _, err := New("staging"); err == nil {
		t.Fatal("expected error for unknown environment")
	}
}

func TestNewLevelOverride(t *testing.T) {
	if _, err := New("local", "warn"); err != nil {
		t.Fatalf("New with override: %v", err)
	}
	if _, err := New("local", "loud"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestContextRoundTrip(t *testing.T) {
	l, err := New("local")
	if err != nil {
		t.Fatal(err)
	}
	ctx := ContextWithLogger(context.Background(), l)
	if got := FromContext(ctx); got != l {
		t.Fatal("stored logger not returned")
	}
	if got := FromContext(context.Background()); got == nil {
		t.Fatal("missing logger must fall back to a nop logger")
	}
}
