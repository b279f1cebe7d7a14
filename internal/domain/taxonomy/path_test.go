package taxonomy

import (
	"strings"
	"testing"
)

func TestNewPath_Validation(t *testing.T) {
	tests := []struct {
		name     string
		segments []string
		wantErr  bool
	}{
		{"valid", []string{"Technology", "AI"}, false},
		{"empty", nil, true},
		{"blank segment", []string{"Technology", " "}, true},
		{"too long segment", []string{strings.Repeat("x", MaxSegmentLength+1)}, true},
		{"too deep", make([]string, MaxDepth+1), true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewPath(tc.segments...)
			if (err != nil) != tc.wantErr {
				t.Errorf("NewPath(%v) err = %v, wantErr %v", tc.segments, err, tc.wantErr)
			}
		})
	}
}

func TestLiteral_ReservedCharacters(t *testing.T) {
	tests := []struct {
		path Path
		want string
	}{
		{Path{"Technology", "AI"}, "Technology/AI"},
		{Path{"a/b", "c"}, "a%2Fb/c"},
		{Path{"{0}", "x"}, "%7B0%7D/x"},
		{Path{"[1,2]"}, "%5B1%2C2%5D"},
		{Path{`say "hi"`}, "say%20%22hi%22"},
		{Path{"100%"}, "100%25"},
		{Path{"a|b"}, "a%7Cb"},
	}
	for _, tc := range tests {
		got := Literal(tc.path)
		if got != tc.want {
			t.Errorf("Literal(%q) = %q, want %q", []string(tc.path), got, tc.want)
		}
		if strings.ContainsAny(got, "{}[]|\" ") {
			t.Errorf("Literal(%q) leaked a reserved character: %q", []string(tc.path), got)
		}
	}
}

func TestDecode_RoundTrip(t *testing.T) {
	paths := []Path{
		{"Technology", "AI"},
		{"a/b", "{c}", "[d]"},
		{"100% sure", "x|y", "ü"},
	}
	for _, p := range paths {
		got, err := Decode(Literal(p))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if !got.Equal(p) {
			t.Errorf("round trip %q -> %q", []string(p), []string(got))
		}
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode("bad%zz"); err == nil {
		t.Fatal("expected error for malformed escape")
	}
	p, err := Decode("")
	if err != nil || p != nil {
		t.Fatalf("expected nil path for empty literal, got %v %v", p, err)
	}
}

func TestPrefixes(t *testing.T) {
	got := Prefixes(Path{"Technology", "AI", "LLM"})
	want := []string{"Technology", "Technology/AI", "Technology/AI/LLM"}
	if len(got) != len(want) {
		t.Fatalf("expected %d prefixes, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("prefix[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestFilter_Matches(t *testing.T) {
	f := Filter{{"Technology", "AI"}, {"Science"}}

	if !f.Matches(Path{"Technology", "AI", "LLM"}) {
		t.Error("expected deeper path to match")
	}
	if !f.Matches(Path{"Science", "Physics"}) {
		t.Error("expected second filter path to match")
	}
	if f.Matches(Path{"Technology"}) {
		t.Error("shorter path must not match")
	}
	if f.Matches(Path{"Technology", "AIX"}) {
		t.Error("segment match must be exact, not string prefix")
	}
	if !(Filter{}).Matches(Path{"anything"}) {
		t.Error("empty filter matches everything")
	}
}

func TestFilter_CanonicalDistinguishesStructure(t *testing.T) {
	a := Filter{{"a", "b"}}
	b := Filter{{"a/b"}}
	c := Filter{{"a"}, {"b"}}
	if a.Canonical() == b.Canonical() || a.Canonical() == c.Canonical() || b.Canonical() == c.Canonical() {
		t.Errorf("canonical forms collide: %q %q %q", a.Canonical(), b.Canonical(), c.Canonical())
	}
}
