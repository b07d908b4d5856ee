package utils

import "testing"

func TestDetermineLocale(t *testing.T) {
	sup := []string{"en", "zh"}
	cases := []struct {
		name, query, accept, want string
	}{
		{"query wins", "zh-CN", "en-US,en;q=0.9,zh;q=0.8", "zh"},
		{"header order", "", "en-US,en;q=0.9,zh;q=0.8", "en"},
		{"higher q", "", "zh;q=0.9,en;q=0.8", "zh"},
		{"q zero excluded", "", "zh;q=0,en;q=0.1", "en"},
		{"unsupported falls back", "", "fr-FR,es;q=0.9", "en"},
		{"bad q ignored", "", "zh;q=abc, en;q=0.5", "en"},
		{"unknown query ignored", "de", "zh", "zh"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := DetermineLocale(c.query, c.accept, sup, "en"); got != c.want {
				t.Fatalf("want %s, got %s", c.want, got)
			}
		})
	}
}

func TestDetermineLocaleDefaultOutsideSupported(t *testing.T) {
	if got := DetermineLocale("", "", []string{"zh"}, "en"); got != "zh" {
		t.Fatalf("want first supported, got %s", got)
	}
}
