package main

import "testing"

func TestParseTracks(t *testing.T) {
	tracks, err := parseTracks([]string{"en=https://example.com/en.json", "de=https://example.com/de.json"})
	if err != nil {
		t.Fatalf("parseTracks: %v", err)
	}
	if len(tracks) != 2 {
		t.Fatalf("parsed %d tracks, want 2", len(tracks))
	}
	if tracks[0].Language != "en" || tracks[0].URL != "https://example.com/en.json" {
		t.Fatalf("first track = %+v", tracks[0])
	}

	if _, err := parseTracks([]string{"missing-separator"}); err == nil {
		t.Fatal("expected error for malformed track")
	}
	if _, err := parseTracks([]string{"en="}); err == nil {
		t.Fatal("expected error for empty url")
	}
}

func TestNormalizeAddress(t *testing.T) {
	cases := map[string]string{
		":8080":           "127.0.0.1:8080",
		"0.0.0.0:8080":    "127.0.0.1:8080",
		"127.0.0.1:7777":  "127.0.0.1:7777",
		"media.lan:8080":  "media.lan:8080",
		"not-a-host-port": "not-a-host-port",
	}
	for input, want := range cases {
		if got := normalizeAddress(input); got != want {
			t.Errorf("normalizeAddress(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate("a very long title that keeps going", 10); got != "a very ..." {
		t.Errorf("truncate long = %q", got)
	}
}
