package sshdconfig

// ResolutionPolicy decides which occurrence of a repeated directive is effective.
type ResolutionPolicy int

const (
	// LastWins keeps the value of the last occurrence in the file.
	LastWins ResolutionPolicy = iota
	// FirstWins keeps the value of the first occurrence in the file, which is what sshd
	// does for most keywords.
	FirstWins
)

func (p ResolutionPolicy) String() string {
	if p == FirstWins {
		return "first-wins"
	}
	return "last-wins"
}

// Resolver computes the effective value of every directive.
// The zero value resolves every directive with LastWins.
type Resolver struct {
	Default   ResolutionPolicy
	Overrides map[string]ResolutionPolicy
}

func (r Resolver) policyFor(name string) ResolutionPolicy {
	if p, ok := r.Overrides[name]; ok {
		return p
	}
	return r.Default
}

// Effective returns the effective value of each directive name.
// Match blocks are not interpreted: directives inside them are resolved like global ones.
func (r Resolver) Effective(c Config) map[string]string {
	m := make(map[string]string)
	for _, l := range c.Directives() {
		if _, seen := m[l.Name]; seen && r.policyFor(l.Name) == FirstWins {
			continue
		}
		m[l.Name] = l.Value
	}
	return m
}

// Effective returns the effective value of each directive name, last occurrence winning.
func (c Config) Effective() map[string]string {
	return Resolver{}.Effective(c)
}
