// Package extract turns script source text into typed facts: event handlers,
// state-key accesses, call edges and script containers.
//
// Extraction is line oriented and pattern based. It never parses the
// scripting language; every line is run through the same ordered set of
// independent matchers and whatever they recognize is appended to the file's
// fact set.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/jward/dscope/internal/store"
)

// DefaultContextLength is the rune length of the context snippet kept on
// each DataKeyAccess and CallEdge.
const DefaultContextLength = 80

// Extractor applies the matcher set to lines and files. It holds no
// per-run state and is safe for concurrent use.
type Extractor struct {
	contextLen int
	containers bool
	matchers   []matcher
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithContextLength sets the context snippet length in runes. Values below 1
// are ignored.
func WithContextLength(n int) Option {
	return func(x *Extractor) {
		if n > 0 {
			x.contextLen = n
		}
	}
}

// WithContainers enables or disables the tree-sitter container outline in
// ExtractFile. Enabled by default.
func WithContainers(enabled bool) Option {
	return func(x *Extractor) {
		x.containers = enabled
	}
}

// New creates an Extractor with the default matcher set.
func New(opts ...Option) *Extractor {
	x := &Extractor{
		contextLen: DefaultContextLength,
		containers: true,
		matchers:   defaultMatchers,
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

// ExtractLine returns the facts found on a single line. Blank lines and
// lines whose trimmed form starts with '#' yield nothing.
func (x *Extractor) ExtractLine(file string, number int, text string) store.Facts {
	var acc store.Facts
	x.extractLine(file, number, text, &acc)
	return acc
}

func (x *Extractor) extractLine(file string, number int, text string, acc *store.Facts) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return
	}
	l := line{
		file:    file,
		number:  number,
		text:    strings.TrimRightFunc(text, isSpace),
		context: truncate(trimmed, x.contextLen),
	}
	for _, m := range x.matchers {
		m.match(l, acc)
	}
}

// ExtractFile scans the full content of one file. Line numbers start at 1.
// A leading byte order mark is dropped; lines that are not valid UTF-8 are
// decoded with replacement characters, noted, and scanned anyway.
//
// The only error returned comes from ctx; malformed content never fails.
func (x *Extractor) ExtractFile(ctx context.Context, file string, content []byte) (store.Facts, error) {
	var acc store.Facts
	if err := ctx.Err(); err != nil {
		return acc, err
	}

	content, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), content)
	if err != nil {
		// BOMOverride over Nop cannot fail on in-memory input; keep the
		// original bytes if it ever does.
		content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	}

	for i, raw := range bytes.Split(content, []byte{'\n'}) {
		number := i + 1
		text, ok := decodeLine(raw)
		if !ok {
			acc.Notes = append(acc.Notes, store.Note{
				File:    file,
				Line:    number,
				Message: "invalid UTF-8 replaced",
			})
		}
		x.extractLine(file, number, text, &acc)
	}

	if x.containers {
		containers, err := Containers(ctx, file, content)
		if err != nil {
			acc.Notes = append(acc.Notes, store.Note{
				File:    file,
				Message: fmt.Sprintf("container outline: %v", err),
			})
		}
		acc.Containers = containers
	}
	return acc, nil
}

// decodeLine returns raw as a string. Invalid UTF-8 is decoded with
// U+FFFD replacements and reported with ok=false.
func decodeLine(raw []byte) (string, bool) {
	if utf8.Valid(raw) {
		return string(raw), true
	}
	out, _, err := transform.Bytes(unicode.UTF8.NewDecoder(), raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), "�"), false
	}
	return string(out), false
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\r' || r == '\n' || r == '\v' || r == '\f'
}
