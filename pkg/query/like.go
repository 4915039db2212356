package query

import (
	"strings"
	"unicode/utf8"
)

// likeSegmentKind identifies the role of a compiled LIKE segment.
type likeSegmentKind uint8

const (
	// likeSegmentLiteral matches an exact (lowercased) literal run.
	likeSegmentLiteral likeSegmentKind = iota
	// likeSegmentSingleChar matches exactly one character.
	likeSegmentSingleChar
	// likeSegmentAnyChars matches any (possibly empty) character sequence.
	likeSegmentAnyChars
)

// likeSegment is a single compiled element of a LIKE pattern.
type likeSegment struct {
	// kind is the segment's role.
	kind likeSegmentKind
	// literal is the lowercased literal run for literal segments.
	literal string
}

// LikePattern is a compiled SQL LIKE pattern with backslash escapes,
// evaluated case-insensitively against pre-lowered strings. Matching never
// fails; malformed escapes simply drop the backslash.
type LikePattern struct {
	// segments are the compiled pattern segments.
	segments []likeSegment
}

// CompileLike compiles a LIKE pattern (as produced by EscapeLike/GlobToLike)
// into a matcher.
func CompileLike(pattern string) *LikePattern {
	var segments []likeSegment
	var literal strings.Builder

	// flushLiteral appends any accumulated literal run as a segment.
	flushLiteral := func() {
		if literal.Len() > 0 {
			segments = append(segments, likeSegment{
				kind:    likeSegmentLiteral,
				literal: strings.ToLower(literal.String()),
			})
			literal.Reset()
		}
	}

	// Walk the pattern, splitting on unescaped wildcards. Runs of multiple
	// percent signs collapse to a single any-sequence segment.
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '\\':
			if i+1 < len(runes) {
				i++
				literal.WriteRune(runes[i])
			}
		case '%':
			flushLiteral()
			for i+1 < len(runes) && runes[i+1] == '%' {
				i++
			}
			segments = append(segments, likeSegment{kind: likeSegmentAnyChars})
		case '_':
			flushLiteral()
			segments = append(segments, likeSegment{kind: likeSegmentSingleChar})
		default:
			literal.WriteRune(runes[i])
		}
	}
	flushLiteral()

	// Done.
	return &LikePattern{segments: segments}
}

// LiteralPrefix returns the leading literal run of the pattern, if any. The
// memory index uses it to narrow glob evaluation to a binary-searched prefix
// range.
func (p *LikePattern) LiteralPrefix() (string, bool) {
	if len(p.segments) > 0 && p.segments[0].kind == likeSegmentLiteral {
		return p.segments[0].literal, true
	}
	return "", false
}

// MatchesAll indicates whether or not the pattern consists solely of
// any-sequence wildcards and therefore matches every string.
func (p *LikePattern) MatchesAll() bool {
	for _, segment := range p.segments {
		if segment.kind != likeSegmentAnyChars {
			return false
		}
	}
	return true
}

// MatchPreLowered matches the pattern against a value that has already been
// lowercased.
func (p *LikePattern) MatchPreLowered(value string) bool {
	return likeMatch(p.segments, value, 0)
}

// Match matches the pattern against an arbitrary value.
func (p *LikePattern) Match(value string) bool {
	return likeMatch(p.segments, strings.ToLower(value), 0)
}

// likeMatch recursively matches compiled segments against a value starting at
// the given byte position.
func likeMatch(segments []likeSegment, value string, position int) bool {
	// If the segments are exhausted, then the value must be as well.
	if len(segments) == 0 {
		return position >= len(value)
	}

	remaining := value[position:]

	switch segments[0].kind {
	case likeSegmentLiteral:
		if !strings.HasPrefix(remaining, segments[0].literal) {
			return false
		}
		return likeMatch(segments[1:], value, position+len(segments[0].literal))
	case likeSegmentSingleChar:
		if remaining == "" {
			return false
		}
		_, width := utf8.DecodeRuneInString(remaining)
		return likeMatch(segments[1:], value, position+width)
	case likeSegmentAnyChars:
		// A trailing any-sequence segment matches everything remaining.
		if len(segments) == 1 {
			return true
		}
		if likeMatch(segments[1:], value, position) {
			return true
		}
		for _, r := range remaining {
			position += utf8.RuneLen(r)
			if likeMatch(segments[1:], value, position) {
				return true
			}
		}
		return false
	default:
		return false
	}
}
