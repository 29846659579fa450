package klog

import (
	"strings"
	"testing"
)

type fakeConsole struct {
	strings.Builder
}

func (f *fakeConsole) Write(p []byte) (int, error) {
	return f.Builder.Write(p)
}

func TestPrintkLevelTagAndFormat(t *testing.T) {
	b := New(Warning, nil)
	c := &fakeConsole{}
	b.RegisterConsole(c)

	b.Printk("<3>disk failure on unit %d", 7)
	b.Printk("<6>heartbeat %u", uint32(42))

	got := c.String()
	if !strings.Contains(got, "disk failure on unit 7") {
		t.Fatalf("expected error line to reach console, got %q", got)
	}
	if strings.Contains(got, "heartbeat 42") {
		t.Fatalf("info line below threshold should not reach console, got %q", got)
	}
}

func TestPrintkRingRoundTrip(t *testing.T) {
	b := New(Debug, nil)
	b.Printk("<6>line one")
	b.Printk("<6>line two")

	snap := string(b.Snapshot())
	if !strings.Contains(snap, "line one") || !strings.Contains(snap, "line two") {
		t.Fatalf("ring snapshot missing lines: %q", snap)
	}
}

func TestPrintkAppendsNewline(t *testing.T) {
	b := New(Debug, nil)
	b.Printk("<6>no newline here")
	snap := string(b.Snapshot())
	if !strings.HasSuffix(snap, "\n") {
		t.Fatalf("expected trailing newline, got %q", snap)
	}
}
