package monitoring

import (
	"fmt"
	"testing"
)

func TestSetLogger_RoutesToCustomSink(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	Logf("packets=%d", 42)
	if got != "packets=42" {
		t.Errorf("sink saw %q, want %q", got, "packets=42")
	}
}

func TestSetLogger_NilInstallsNoop(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(string, ...interface{}) { called = true })
	SetLogger(nil)

	Logf("dropped line")
	if called {
		t.Error("no-op sink invoked the previous logger")
	}
}

func TestLogf_DefaultNotNil(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf must have a default sink")
	}
}

func TestPrefixed_TagsLines(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	dbLog := Prefixed("[db]")
	dbLog("ready at %s", "/tmp/x.db")
	if got != "[db] ready at /tmp/x.db" {
		t.Errorf("prefixed line = %q", got)
	}
}

func TestPrefixed_FollowsSinkSwap(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	dbLog := Prefixed("[db]")

	// Swap the sink after the prefixed function was created.
	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	})

	dbLog("swapped")
	if got != "[db] swapped" {
		t.Errorf("prefixed line after swap = %q", got)
	}
}
