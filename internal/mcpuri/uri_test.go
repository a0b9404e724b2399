package mcpuri

import "testing"

func TestParse(t *testing.T) {
	cases := []struct {
		in        string
		wantAlias string
		wantURI   string
		wantOK    bool
	}{
		{"mcp://github/issues.json", "github", "issues.json", true},
		{"mcp://github/test://foo", "github", "test://foo", true},
		{"mcp://s/data.csv", "s", "data.csv", true},
		{"mcp:///issues.json", "", "", false},
		{"mcp://github", "", "", false},
		{"not-mcp://github/issues.json", "", "", false},
	}
	for _, c := range cases {
		ref, ok := Parse(c.in)
		if ok != c.wantOK {
			t.Fatalf("Parse(%q) ok = %v, want %v", c.in, ok, c.wantOK)
		}
		if !ok {
			continue
		}
		if ref.Alias != c.wantAlias || ref.RemoteURI != c.wantURI {
			t.Fatalf("Parse(%q) = %+v, want alias=%q uri=%q", c.in, ref, c.wantAlias, c.wantURI)
		}
	}
}

func TestCacheKeyParity(t *testing.T) {
	ref, ok := Parse("mcp://github/issues.json")
	if !ok {
		t.Fatal("expected parse to succeed")
	}
	rel, ok := ParseRelative("github", "issues.json")
	if !ok {
		t.Fatal("expected relative parse to succeed")
	}
	if ref.Key() != rel.Key() {
		t.Fatalf("cache key parity violated: %q != %q", ref.Key(), rel.Key())
	}
	if ref.Key() != CacheKey("github", "issues.json") {
		t.Fatalf("cache key mismatch")
	}
}
