package livefs_test

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gobeaver/livefs"
	"github.com/gobeaver/livefs/driver/memory"
)

func TestCallbackChangeToken(t *testing.T) {
	token := livefs.NewCallbackChangeToken()

	var order []int
	token.RegisterChangeCallback(func() { order = append(order, 1) })
	unregister := token.RegisterChangeCallback(func() { order = append(order, 2) })
	token.RegisterChangeCallback(func() { order = append(order, 3) })
	unregister()

	if token.HasChanged() {
		t.Fatal("expected fresh token to be unchanged")
	}

	token.SignalChange()
	token.SignalChange()

	if !token.HasChanged() {
		t.Error("expected token to report change")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 3 {
		t.Errorf("expected callbacks [1 3] once each, got %v", order)
	}
}

func TestCompositeChangeToken(t *testing.T) {
	a, b := livefs.NewCallbackChangeToken(), livefs.NewCallbackChangeToken()
	composite := livefs.NewCompositeChangeToken(a, b)

	if !composite.ActiveChangeCallbacks() {
		t.Error("expected active callbacks when all inner tokens are active")
	}

	var calls int
	composite.RegisterChangeCallback(func() { calls++ })

	b.SignalChange()
	a.SignalChange()

	if !composite.HasChanged() {
		t.Error("expected composite to report change")
	}
	if calls != 1 {
		t.Errorf("expected callback to run once, ran %d times", calls)
	}

	mixed := livefs.NewCompositeChangeToken(a, livefs.NeverChangeToken{})
	if mixed.ActiveChangeCallbacks() {
		t.Error("expected inactive composite when one inner token is passive")
	}
}

func TestPollingChangeToken(t *testing.T) {
	ctx := context.Background()
	fs := memory.New()
	fs.Write(ctx, ".brackets.json", strings.NewReader(`{"spaceUnits": 4}`))

	token := livefs.NewPollingChangeToken(ctx, livefs.PollingConfig{
		Interval:  10 * time.Millisecond,
		CheckFunc: livefs.StatChangeCheck(ctx, fs, ".brackets.json"),
	})
	defer token.Stop()

	fired := make(chan struct{})
	token.RegisterChangeCallback(func() { close(fired) })

	time.Sleep(30 * time.Millisecond)
	if token.HasChanged() {
		t.Fatal("expected no change before the file is rewritten")
	}

	fs.Write(ctx, ".brackets.json", strings.NewReader(`{"spaceUnits": 9}`))

	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected polling token to fire")
	}
	token.Stop()
	token.Stop()
}

func TestStatChangeCheck(t *testing.T) {
	ctx := context.Background()
	fs := memory.New()

	check := livefs.StatChangeCheck(ctx, fs, "a.txt")
	if check() {
		t.Fatal("expected no change for a still missing file")
	}

	fs.Write(ctx, "a.txt", strings.NewReader("x"))
	if !check() {
		t.Error("expected appearance to count as change")
	}

	check = livefs.StatChangeCheck(ctx, fs, "a.txt")
	fs.Delete(ctx, "a.txt")
	if !check() {
		t.Error("expected disappearance to count as change")
	}
}

func TestOnChange(t *testing.T) {
	ctx := context.Background()

	var tokens atomic.Int32
	current := make(chan *livefs.CallbackChangeToken, 4)
	var reloads atomic.Int32

	cancel := livefs.OnChange(ctx,
		func() (livefs.ChangeToken, error) {
			tokens.Add(1)
			token := livefs.NewCallbackChangeToken()
			current <- token
			return token, nil
		},
		func() { reloads.Add(1) },
	)
	defer cancel()

	for i := 0; i < 2; i++ {
		select {
		case token := <-current:
			token.SignalChange()
		case <-time.After(2 * time.Second):
			t.Fatal("expected a fresh token")
		}
	}

	select {
	case <-current:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a third token after two changes")
	}
	if got := reloads.Load(); got != 2 {
		t.Errorf("expected 2 reloads, got %d", got)
	}
	if got := tokens.Load(); got != 3 {
		t.Errorf("expected 3 tokens produced, got %d", got)
	}
}
