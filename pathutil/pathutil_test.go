package pathutil_test

import (
	"testing"

	"mappa.dev/depgraph/pathutil"
)

func TestIsRelativeSpecifier(t *testing.T) {
	cases := map[string]bool{
		"./foo":   true,
		"../foo":  true,
		"/foo":    true,
		"foo":     false,
		"foo/bar": false,
		"@scope/pkg": false,
	}
	for spec, want := range cases {
		if got := pathutil.IsRelativeSpecifier(spec); got != want {
			t.Errorf("IsRelativeSpecifier(%q) = %v, want %v", spec, got, want)
		}
	}
}

func TestStripKnownSourceExt(t *testing.T) {
	if got := pathutil.StripKnownSourceExt("./lib/index.js"); got != "./lib/index" {
		t.Errorf("got %q", got)
	}
	if got := pathutil.StripKnownSourceExt("./lib/index.json"); got != "./lib/index" {
		t.Errorf("got %q", got)
	}
	if got := pathutil.StripKnownSourceExt("./lib/index"); got != "./lib/index" {
		t.Errorf("got %q", got)
	}
}

func TestUnder(t *testing.T) {
	if !pathutil.Under("/r", "/r/a/b.js") {
		t.Error("expected /r/a/b.js under /r")
	}
	if pathutil.Under("/r", "/other/a.js") {
		t.Error("expected /other/a.js not under /r")
	}
	if !pathutil.Under("/r", "/r") {
		t.Error("expected root under itself")
	}
}

func TestMatchAny(t *testing.T) {
	if !pathutil.MatchAny([]string{"**/*.png", "**/*.jpg"}, "assets/a/b.png") {
		t.Error("expected match")
	}
	if pathutil.MatchAny([]string{"**/*.png"}, "assets/a/b.js") {
		t.Error("expected no match")
	}
}
