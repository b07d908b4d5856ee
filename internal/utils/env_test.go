package utils

import (
	"testing"
	"time"
)

func TestSafeEnv(t *testing.T) {
	const key = "_FORMLY_TEST_SAFEENV"
	t.Setenv(key, "")
	if got := SafeEnv(key, "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv(key, " value ")
	if got := SafeEnv(key, "fallback"); got != "value" {
		t.Fatalf("expected 'value', got %q", got)
	}
}

func TestTypedEnv(t *testing.T) {
	t.Setenv("_FORMLY_TEST_INT", "7")
	t.Setenv("_FORMLY_TEST_BADINT", "seven")
	t.Setenv("_FORMLY_TEST_DUR", "90s")
	t.Setenv("_FORMLY_TEST_LIST", "a, ,b,")

	if n, err := EnvInt("_FORMLY_TEST_INT", 1); err != nil || n != 7 {
		t.Fatalf("EnvInt = %d, %v", n, err)
	}
	if n, err := EnvInt("_FORMLY_TEST_BADINT", 1); err == nil || n != 1 {
		t.Fatalf("EnvInt bad = %d, %v", n, err)
	}
	if d, err := EnvDuration("_FORMLY_TEST_DUR", time.Second); err != nil || d != 90*time.Second {
		t.Fatalf("EnvDuration = %v, %v", d, err)
	}
	if got := EnvList("_FORMLY_TEST_LIST", nil); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("EnvList = %q", got)
	}
	if got := EnvList("_FORMLY_TEST_UNSET", []string{"x"}); len(got) != 1 {
		t.Fatalf("EnvList fallback = %q", got)
	}
}
