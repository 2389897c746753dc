package tui

import (
	"testing"
	"time"
)

func TestSpinner_StopsWhenDone(t *testing.T) {
	done := make(chan bool)
	stopped := make(chan struct{})
	go func() {
		Spinner("working", done)
		close(stopped)
	}()

	close(done)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("spinner did not stop after done was closed")
	}
}

func TestShowProgress_FinishesAtTotal(t *testing.T) {
	bar := ShowProgress(3, "test")
	for i := 0; i < 3; i++ {
		if err := bar.Add(1); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	if !bar.IsFinished() {
		t.Error("bar should be finished after reaching the total")
	}
}

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{500 * time.Millisecond, "500ms"},
		{1500 * time.Millisecond, "1.5s"},
		{90 * time.Second, "1m30s"},
	}
	for _, c := range cases {
		if got := formatDuration(c.d); got != c.want {
			t.Errorf("formatDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}
