package notify

import "testing"

func TestLogRetainsNewest(t *testing.T) {
	l := NewLog(2, nil)
	l.Notify(Info, "one")
	l.Notify(Warning, "two")
	l.Notify(Error, "three")

	latest, ok := l.Latest()
	if !ok || latest.Message != "three" || latest.Level != Error {
		t.Fatalf("Latest() = %+v, %v", latest, ok)
	}
	if got := l.Count(Info); got != 0 {
		t.Errorf("oldest notice should be evicted, Count(Info) = %d", got)
	}

	drained := l.Drain()
	if len(drained) != 2 || drained[0].Message != "two" {
		t.Errorf("Drain() = %+v", drained)
	}
	if _, ok := l.Latest(); ok {
		t.Error("log should be empty after Drain")
	}
}

func TestLevelString(t *testing.T) {
	for level, want := range map[Level]string{Info: "info", Warning: "warning", Error: "error"} {
		if got := level.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", level, got, want)
		}
	}
}
