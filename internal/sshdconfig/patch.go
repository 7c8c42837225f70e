package sshdconfig

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/leonelquinteros/gotext"
)

// Setting is a directive name and the value to set it to.
type Setting struct {
	Name  string
	Value string
}

func (s Setting) String() string {
	return fmt.Sprintf("%s %s", s.Name, s.Value)
}

// Patch is an ordered set of settings, unique by name.
// Its order is the order of validation and of appended lines.
type Patch []Setting

// Set updates the value of name if already in the patch, or appends it.
func (p Patch) Set(name, value string) Patch {
	for i := range p {
		if p[i].Name == name {
			p[i].Value = value
			return p
		}
	}
	return append(p, Setting{Name: name, Value: value})
}

// Merge returns p updated with every setting of other, in other's order.
func (p Patch) Merge(other Patch) Patch {
	r := append(Patch(nil), p...)
	for _, s := range other {
		r = r.Set(s.Name, s.Value)
	}
	return r
}

// Get returns the value of name in the patch.
func (p Patch) Get(name string) (string, bool) {
	for _, s := range p {
		if s.Name == name {
			return s.Value, true
		}
	}
	return "", false
}

// Names returns the directive names of the patch in order.
func (p Patch) Names() []string {
	names := make([]string, 0, len(p))
	for _, s := range p {
		names = append(names, s.Name)
	}
	return names
}

// Map returns the patch as a name to value mapping.
func (p Patch) Map() map[string]string {
	m := make(map[string]string, len(p))
	for _, s := range p {
		m[s.Name] = s.Value
	}
	return m
}

// PatchFromMap builds a patch from m, ordered by directive name.
func PatchFromMap(m map[string]string) Patch {
	names := make([]string, 0, len(m))
	for n := range m {
		names = append(names, n)
	}
	sort.Strings(names)

	p := make(Patch, 0, len(m))
	for _, n := range names {
		p = append(p, Setting{Name: n, Value: m[n]})
	}
	return p
}

// ParseAssignments builds a patch from "Name=Value" arguments.
// A name given twice keeps its first position and its last value.
func ParseAssignments(args []string) (Patch, error) {
	var p Patch
	for _, a := range args {
		name, value, found := strings.Cut(a, "=")
		name = strings.TrimSpace(name)
		if !found || name == "" {
			return nil, errors.New(gotext.Get("invalid setting %q: expected Name=Value", a))
		}
		if err := CheckName(name); err != nil {
			return nil, err
		}
		p = p.Set(name, strings.TrimSpace(value))
	}
	return p, nil
}

// CheckName returns an error if name can't be written as a single directive keyword.
func CheckName(name string) error {
	if name == "" {
		return errors.New(gotext.Get("directive name can't be empty"))
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) || r == '#' || r == '=' {
			return errors.New(gotext.Get("invalid directive name %q", name))
		}
	}
	return nil
}

// ApplyStats reports how a patch changed a configuration.
type ApplyStats struct {
	// Updated lists the names rewritten in place, in patch order.
	Updated []string
	// Appended lists the names added at the end of the file, in patch order.
	Appended []string
}

// Apply returns a copy of c with the patch applied.
//
// Every directive line named in the patch gets the patched value, keeping its indentation.
// Names absent from c are appended at the end, each preceded by a blank line and attribution.
// The receiver is not modified.
func (c Config) Apply(p Patch, attribution string) (Config, ApplyStats) {
	values := p.Map()
	seen := make(map[string]bool)

	r := Config{
		Lines:           make([]Line, 0, len(c.Lines)+3*len(p)),
		trailingNewline: c.trailingNewline,
	}
	for _, l := range c.Lines {
		v, ok := values[l.Name]
		if l.Kind != Directive || !ok {
			r.Lines = append(r.Lines, l)
			continue
		}
		seen[l.Name] = true
		r.Lines = append(r.Lines, directiveLine(l.Indent, l.Name, v, strings.HasSuffix(l.Raw, "\r")))
	}

	var stats ApplyStats
	for _, s := range p {
		if seen[s.Name] {
			stats.Updated = append(stats.Updated, s.Name)
			continue
		}
		stats.Appended = append(stats.Appended, s.Name)
		r.Lines = append(r.Lines,
			Line{Kind: Blank},
			Line{Kind: Comment, Raw: attribution},
			directiveLine("", s.Name, s.Value, false))
	}

	// Appended lines must start on their own line.
	if len(stats.Appended) > 0 {
		r.trailingNewline = true
	}

	return r, stats
}

func directiveLine(indent, name, value string, crlf bool) Line {
	raw := indent + name
	if value != "" {
		raw += " " + value
	}
	if crlf {
		raw += "\r"
	}
	return Line{Kind: Directive, Raw: raw, Name: name, Value: value, Indent: indent}
}
