package query

import (
	"math/rand"
	"strings"
	"testing"
)

type likeTestCase struct {
	pattern string
	value   string
	matches bool
}

func (c *likeTestCase) run(t *testing.T) {
	t.Helper()
	if matched := CompileLike(c.pattern).Match(c.value); matched != c.matches {
		t.Errorf("match behavior not as expected for pattern %q against %q: got %v",
			c.pattern, c.value, matched)
	}
}

func TestLikeLiteral(t *testing.T) {
	(&likeTestCase{pattern: "readme", value: "readme", matches: true}).run(t)
	(&likeTestCase{pattern: "readme", value: "README", matches: true}).run(t)
	(&likeTestCase{pattern: "readme", value: "readme.txt", matches: false}).run(t)
}

func TestLikePercent(t *testing.T) {
	(&likeTestCase{pattern: "%.md", value: "notes.md", matches: true}).run(t)
	(&likeTestCase{pattern: "%.md", value: "notes.txt", matches: false}).run(t)
	(&likeTestCase{pattern: "a%c", value: "abc", matches: true}).run(t)
	(&likeTestCase{pattern: "a%c", value: "ac", matches: true}).run(t)
	(&likeTestCase{pattern: "%%x%%", value: "zzxzz", matches: true}).run(t)
}

func TestLikeUnderscore(t *testing.T) {
	(&likeTestCase{pattern: "t%t_.md", value: "test1.md", matches: true}).run(t)
	(&likeTestCase{pattern: "t%t_.md", value: "test.md", matches: false}).run(t)
	(&likeTestCase{pattern: "_", value: "a", matches: true}).run(t)
	(&likeTestCase{pattern: "_", value: "", matches: false}).run(t)
	(&likeTestCase{pattern: "_", value: "ab", matches: false}).run(t)
}

func TestLikeEscapes(t *testing.T) {
	(&likeTestCase{pattern: `100\%`, value: "100%", matches: true}).run(t)
	(&likeTestCase{pattern: `100\%`, value: "100x", matches: false}).run(t)
	(&likeTestCase{pattern: `a\_b`, value: "a_b", matches: true}).run(t)
	(&likeTestCase{pattern: `a\_b`, value: "axb", matches: false}).run(t)
	(&likeTestCase{pattern: `a\\b`, value: `a\b`, matches: true}).run(t)
}

func TestLikeUnicode(t *testing.T) {
	(&likeTestCase{pattern: "한%", value: "한국어.txt", matches: true}).run(t)
	(&likeTestCase{pattern: "%국어%", value: "한국어.txt", matches: true}).run(t)
	(&likeTestCase{pattern: "한_", value: "한국", matches: true}).run(t)
}

func TestLikeLiteralPrefix(t *testing.T) {
	if prefix, ok := CompileLike("test%.md").LiteralPrefix(); !ok || prefix != "test" {
		t.Error("literal prefix not as expected:", prefix)
	}
	if _, ok := CompileLike("%test").LiteralPrefix(); ok {
		t.Error("unexpected literal prefix for leading wildcard")
	}
	if prefix, ok := CompileLike("TEST%").LiteralPrefix(); !ok || prefix != "test" {
		t.Error("literal prefix should be lowercased:", prefix)
	}
}

func TestLikeMatchesAll(t *testing.T) {
	if !CompileLike("%").MatchesAll() {
		t.Error("single wildcard should match everything")
	}
	if !CompileLike("%%%").MatchesAll() {
		t.Error("wildcard run should match everything")
	}
	if CompileLike("%a%").MatchesAll() {
		t.Error("pattern with literal should not match everything")
	}
}

// referenceMatch is a naive rune-by-rune LIKE matcher used as the oracle for
// the randomized agreement test.
func referenceMatch(pattern, value []rune) bool {
	if len(pattern) == 0 {
		return len(value) == 0
	}
	switch pattern[0] {
	case '%':
		for i := 0; i <= len(value); i++ {
			if referenceMatch(pattern[1:], value[i:]) {
				return true
			}
		}
		return false
	case '_':
		return len(value) > 0 && referenceMatch(pattern[1:], value[1:])
	case '\\':
		if len(pattern) == 1 {
			return len(value) == 0
		}
		return len(value) > 0 && value[0] == pattern[1] && referenceMatch(pattern[2:], value[1:])
	default:
		return len(value) > 0 && value[0] == pattern[0] && referenceMatch(pattern[1:], value[1:])
	}
}

func TestLikeAgreesWithReference(t *testing.T) {
	// Generate random patterns of literal runs, wildcards, and single-char
	// markers, and verify agreement with the reference matcher. The alphabet
	// is kept small so matches actually occur.
	generator := rand.New(rand.NewSource(0x517eb))
	alphabet := []rune("abc")
	for iteration := 0; iteration < 10000; iteration++ {
		var pattern strings.Builder
		for i := generator.Intn(6); i > 0; i-- {
			switch generator.Intn(4) {
			case 0:
				pattern.WriteByte('%')
			case 1:
				pattern.WriteByte('_')
			default:
				pattern.WriteRune(alphabet[generator.Intn(len(alphabet))])
			}
		}
		var value strings.Builder
		for i := generator.Intn(8); i > 0; i-- {
			value.WriteRune(alphabet[generator.Intn(len(alphabet))])
		}

		compiled := CompileLike(pattern.String()).Match(value.String())
		expected := referenceMatch([]rune(pattern.String()), []rune(value.String()))
		if compiled != expected {
			t.Fatalf("disagreement for pattern %q against %q: compiled %v, reference %v",
				pattern.String(), value.String(), compiled, expected)
		}
	}
}

func TestLikeCompileIsStable(t *testing.T) {
	// Compiling and matching must be deterministic.
	pattern := CompileLike("a%b_c")
	for i := 0; i < 100; i++ {
		if pattern.Match("axxbyc") != CompileLike("a%b_c").Match("axxbyc") {
			t.Fatal("match result unstable")
		}
	}
}
