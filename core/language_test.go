package core

import "testing"

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		path string
		want string
	}{
		{"main.py", "python"},
		{"src/app.js", "javascript"},
		{"src/App.JSX", "javascript"},
		{"component.tsx", "typescript"},
		{"server.go", "go"},
		{"Main.java", "java"},
		{"infra/main.tf", "terraform"},
		{"deploy.yaml", "yaml"},
		{"README.md", "unknown"},
		{"Makefile", "unknown"},
		{"", "unknown"},
	}

	for _, tc := range cases {
		if got := DetectLanguage(tc.path); got != tc.want {
			t.Errorf("DetectLanguage(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}

func TestScannableLanguage(t *testing.T) {
	if ScannableLanguage("unknown") {
		t.Error("unknown language must not be scannable")
	}
	if !ScannableLanguage("python") {
		t.Error("python must be scannable")
	}
}
