// Package sshdconfig reads and patches OpenSSH daemon configuration files.
//
// A configuration is kept as the ordered list of its physical lines. Only lines carrying a
// directive are interpreted; comments and blank lines are kept verbatim, so that serializing an
// unmodified configuration gives back the exact bytes which were parsed.
//
// Patching rewrites the value of matching directive lines in place, keeping their indentation,
// and appends directives which were not present at the end of the file, each one preceded by an
// attribution comment.
package sshdconfig

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/leonelquinteros/gotext"
	"github.com/ubuntu/decorate"
	"github.com/ubuntu/sshdconf/internal/sshderr"
)

// LineKind tells what a line of the configuration holds.
type LineKind int

// Line kinds.
const (
	Blank LineKind = iota
	Comment
	Directive
)

func (k LineKind) String() string {
	switch k {
	case Comment:
		return "comment"
	case Directive:
		return "directive"
	default:
		return "blank"
	}
}

// Line is one physical line of the configuration, without its line terminator.
type Line struct {
	Kind LineKind
	Raw  string

	// Set for directive lines only.
	Name   string
	Value  string
	Indent string
}

// Config is the parsed content of a configuration file.
type Config struct {
	Lines []Line

	// trailingNewline is false when the last line was not terminated.
	trailingNewline bool
}

// Read parses the configuration file at path.
func Read(path string) (cfg Config, err error) {
	defer decorate.OnError(&err, gotext.Get("can't read configuration"))

	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, sshderr.Wrap(sshderr.ConfigNotFound, "read", path, err)
	}
	if errors.Is(err, fs.ErrPermission) {
		return Config{}, sshderr.Wrap(sshderr.Permission, "read", path, err)
	}
	if err != nil {
		return Config{}, err
	}
	return Parse(b), nil
}

// Parse splits content into lines and classifies each of them.
func Parse(content []byte) Config {
	s := string(content)
	if s == "" {
		return Config{trailingNewline: true}
	}

	cfg := Config{trailingNewline: strings.HasSuffix(s, "\n")}
	s = strings.TrimSuffix(s, "\n")
	for _, raw := range strings.Split(s, "\n") {
		cfg.Lines = append(cfg.Lines, parseLine(raw))
	}
	return cfg
}

func parseLine(raw string) Line {
	trimmed := strings.TrimSpace(raw)
	switch {
	case trimmed == "":
		return Line{Kind: Blank, Raw: raw}
	case strings.HasPrefix(trimmed, "#"):
		return Line{Kind: Comment, Raw: raw}
	}

	name, value := trimmed, ""
	if i := strings.IndexAny(trimmed, " \t"); i >= 0 {
		name, value = trimmed[:i], trimmed[i+1:]
	}
	return Line{
		Kind:   Directive,
		Raw:    raw,
		Name:   name,
		Value:  strings.TrimSpace(value),
		Indent: raw[:len(raw)-len(strings.TrimLeft(raw, " \t"))],
	}
}

// String serializes the configuration.
func (c Config) String() string {
	if len(c.Lines) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, l := range c.Lines {
		sb.WriteString(l.Raw)
		if i < len(c.Lines)-1 || c.trailingNewline {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Bytes serializes the configuration.
func (c Config) Bytes() []byte {
	return []byte(c.String())
}

// Directives returns the directive lines in file order, duplicates included.
func (c Config) Directives() []Line {
	var r []Line
	for _, l := range c.Lines {
		if l.Kind == Directive {
			r = append(r, l)
		}
	}
	return r
}
