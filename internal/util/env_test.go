package util

import "testing"

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("FP_TEST_BOOL", "yes")
	if !ParseBoolEnv("FP_TEST_BOOL", false) {
		t.Error("expected true for 'yes'")
	}
	t.Setenv("FP_TEST_BOOL", "garbage")
	if ParseBoolEnv("FP_TEST_BOOL", false) {
		t.Error("invalid value should fall back to default")
	}
	if !ParseBoolEnv("FP_TEST_BOOL_UNSET", true) {
		t.Error("unset key should return default")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("FP_TEST_INT", "42")
	if got := ParseIntEnv("FP_TEST_INT", 7); got != 42 {
		t.Errorf("got %d, want 42", got)
	}
	t.Setenv("FP_TEST_INT", "4x")
	if got := ParseIntEnv("FP_TEST_INT", 7); got != 7 {
		t.Errorf("invalid value should return default, got %d", got)
	}
}
