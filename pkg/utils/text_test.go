package utils

import (
	"reflect"
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestWords(t *testing.T) {
	got := Words("What color is the Sky? It's 42-ish.")
	want := []string{"what", "color", "is", "the", "sky", "it", "s", "42", "ish"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Words() = %q, want %q", got, want)
	}
	if len(Words("  ...  ")) != 0 {
		t.Error("punctuation only yields no words")
	}
}
