package utils

import (
	"testing"
	"time"
)

func TestGetEnvAsBool(t *testing.T) {
	cases := map[string]bool{"1": true, "TRUE": true, " yes ": true, "off": false, "0": false}
	for val, want := range cases {
		t.Setenv("TEST_BOOL", val)
		if got := GetEnvAsBool("TEST_BOOL", !want); got != want {
			t.Errorf("GetEnvAsBool(%q) = %v, want %v", val, got, want)
		}
	}
	t.Setenv("TEST_BOOL", "maybe")
	if !GetEnvAsBool("TEST_BOOL", true) {
		t.Error("unparseable value should fall back to the default")
	}
}

func TestGetEnvAsNumbers(t *testing.T) {
	t.Setenv("TEST_INT", " 42 ")
	t.Setenv("TEST_BAD", "4x")
	t.Setenv("TEST_FLOAT", "0.25")
	t.Setenv("TEST_WIDE", "8589934592")

	if got := GetEnvAsInt("TEST_INT", 1); got != 42 {
		t.Errorf("GetEnvAsInt = %d, want 42", got)
	}
	if got := GetEnvAsInt("TEST_BAD", 7); got != 7 {
		t.Errorf("GetEnvAsInt on bad input = %d, want 7", got)
	}
	if got := GetEnvAsFloat("TEST_FLOAT", 1); got != 0.25 {
		t.Errorf("GetEnvAsFloat = %v, want 0.25", got)
	}
	if got := GetEnvAsInt64("TEST_WIDE", 0); got != 1<<33 {
		t.Errorf("GetEnvAsInt64 = %d, want %d", got, int64(1)<<33)
	}
	if got := GetEnvAsInt64("TEST_UNSET_WIDE", 5); got != 5 {
		t.Errorf("GetEnvAsInt64 default = %d, want 5", got)
	}
}

func TestGetEnvAsMillis(t *testing.T) {
	t.Setenv("TEST_MS", "1500")
	if got := GetEnvAsMillis("TEST_MS", time.Second); got != 1500*time.Millisecond {
		t.Errorf("GetEnvAsMillis = %v", got)
	}
	t.Setenv("TEST_MS", "-1")
	if got := GetEnvAsMillis("TEST_MS", time.Second); got != time.Second {
		t.Errorf("negative millis should fall back, got %v", got)
	}
}

func TestGetEnvAsSliceAndString(t *testing.T) {
	t.Setenv("TEST_LIST", " a, b ,,c ")
	got := GetEnvAsSlice("TEST_LIST", nil, ",")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Errorf("GetEnvAsSlice = %q", got)
	}
	t.Setenv("TEST_LIST", " , ")
	if got := GetEnvAsSlice("TEST_LIST", []string{"x"}, ","); len(got) != 1 || got[0] != "x" {
		t.Errorf("blank entries should fall back, got %q", got)
	}
	t.Setenv("TEST_STR", "  ")
	if got := GetEnvAsString("TEST_STR", "def"); got != "def" {
		t.Errorf("GetEnvAsString = %q, want def", got)
	}
}
