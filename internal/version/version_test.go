package version

import (
	"strings"
	"testing"
)

func TestGet(t *testing.T) {
	got := Get()
	if !strings.HasPrefix(got, "v") {
		t.Errorf("Get() = %q, want v prefix", got)
	}
	if strings.ContainsAny(got, " \n") {
		t.Errorf("Get() = %q, want trimmed", got)
	}
}

func TestResolve(t *testing.T) {
	if got := Resolve("v2.0.0"); got != "v2.0.0" {
		t.Errorf("Resolve(v2.0.0) = %q", got)
	}
	if got := Resolve("dev"); got != Get() {
		t.Errorf("Resolve(dev) = %q, want %q", got, Get())
	}
	if got := Resolve(""); got != Get() {
		t.Errorf("Resolve(\"\") = %q, want %q", got, Get())
	}
}
