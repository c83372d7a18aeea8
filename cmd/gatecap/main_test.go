package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadTargetsSingleURL(t *testing.T) {
	urls, err := readTargets("hxxps://evil[.]example/gate")
	if err != nil {
		t.Fatalf("readTargets: %v", err)
	}
	if len(urls) != 1 || urls[0] != "https://evil.example/gate" {
		t.Errorf("urls=%v", urls)
	}
}

func TestReadTargetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "targets.txt")
	content := "# campaign batch\n" +
		"hxxp://one[.]example/a\n" +
		"\n" +
		"https://two.example/b\n" +
		"three.example/c\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	urls, err := readTargets(path)
	if err != nil {
		t.Fatalf("readTargets: %v", err)
	}
	want := []string{
		"http://one.example/a",
		"https://two.example/b",
		"http://three.example/c",
	}
	if len(urls) != len(want) {
		t.Fatalf("urls=%v", urls)
	}
	for i := range want {
		if urls[i] != want[i] {
			t.Errorf("urls[%d]=%q, want %q", i, urls[i], want[i])
		}
	}
}
