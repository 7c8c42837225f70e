// Package validator checks directive values before they are written to the daemon configuration.
//
// Directives without a registered rule are accepted as is. Identity lists (AllowUsers,
// AllowGroups, DenyUsers and DenyGroups) are resolved against the system accounts.
package validator

import (
	"errors"
	"os/user"
	"strconv"
	"strings"

	"github.com/leonelquinteros/gotext"
	"github.com/ubuntu/sshdconf/internal/sshdconfig"
	"github.com/ubuntu/sshdconf/internal/sshderr"
)

// Rule checks a single value. The returned error is the reason of the refusal.
type Rule func(value string) error

// Rules maps a directive name to its rule.
type Rules map[string]Rule

// Validator checks values against a fixed table of rules.
type Validator struct {
	rules Rules

	userLookup  func(string) (*user.User, error)
	groupLookup func(string) (*user.Group, error)
}

type options struct {
	userLookup  func(string) (*user.User, error)
	groupLookup func(string) (*user.Group, error)
}

// Option configures the validator.
type Option func(*options)

func withUserLookup(lookup func(string) (*user.User, error)) Option {
	return func(o *options) {
		o.userLookup = lookup
	}
}

func withGroupLookup(lookup func(string) (*user.Group, error)) Option {
	return func(o *options) {
		o.groupLookup = lookup
	}
}

// New returns a validator using rules. The table is copied and identity rules are added for
// directives which do not already have one.
func New(rules Rules, opts ...Option) *Validator {
	o := options{
		userLookup:  user.Lookup,
		groupLookup: user.LookupGroup,
	}
	for _, f := range opts {
		f(&o)
	}

	v := &Validator{
		rules:       make(Rules, len(rules)+4),
		userLookup:  o.userLookup,
		groupLookup: o.groupLookup,
	}
	for n, r := range rules {
		v.rules[n] = r
	}
	for _, n := range []string{"AllowUsers", "DenyUsers"} {
		if _, ok := v.rules[n]; !ok {
			v.rules[n] = v.users
		}
	}
	for _, n := range []string{"AllowGroups", "DenyGroups"} {
		if _, ok := v.rules[n]; !ok {
			v.rules[n] = v.groups
		}
	}

	return v
}

// DefaultRules returns a fresh copy of the built-in value rules.
func DefaultRules() Rules {
	yesNo := OneOf("yes", "no")
	return Rules{
		"Port":                   Number(1, 65535),
		"PermitRootLogin":        OneOf("yes", "no", "prohibit-password", "without-password", "forced-commands-only"),
		"PasswordAuthentication": yesNo,
		"PubkeyAuthentication":   yesNo,
		"X11Forwarding":          yesNo,
		"ClientAliveInterval":    Number(0, -1),
		"MaxAuthTries":           Number(1, -1),
		"LoginGraceTime":         Number(0, -1),
	}
}

// Validate checks value against the rule registered for name.
func (v *Validator) Validate(name, value string) error {
	if err := sshdconfig.CheckName(name); err != nil {
		return sshderr.InvalidValueError(name, value, err.Error())
	}
	if strings.ContainsAny(value, "\r\n") {
		return sshderr.InvalidValueError(name, value, gotext.Get("values can't span multiple lines"))
	}

	r, ok := v.rules[name]
	if !ok {
		return nil
	}
	if err := r(value); err != nil {
		if sshderr.KindOf(err) != sshderr.Unknown {
			return err
		}
		return sshderr.InvalidValueError(name, value, err.Error())
	}
	return nil
}

// ValidatePatch checks every setting of p in order and returns the first failure.
func (v *Validator) ValidatePatch(p sshdconfig.Patch) error {
	for _, s := range p {
		if err := v.Validate(s.Name, s.Value); err != nil {
			return err
		}
	}
	return nil
}

// OneOf accepts exactly one of the allowed values.
func OneOf(allowed ...string) Rule {
	return func(value string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return errors.New(gotext.Get("must be one of %s", strings.Join(allowed, ", ")))
	}
}

// Number accepts unsigned decimal integers within [lo, hi]. A negative hi means no upper bound.
func Number(lo, hi int) Rule {
	return func(value string) error {
		if value == "" || strings.TrimLeft(value, "0123456789") != "" {
			return errors.New(gotext.Get("must be a non negative integer"))
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return errors.New(gotext.Get("number out of range"))
		}
		if n < lo || (hi >= 0 && n > hi) {
			if hi < 0 {
				return errors.New(gotext.Get("must be at least %d", lo))
			}
			return errors.New(gotext.Get("must be between %d and %d", lo, hi))
		}
		return nil
	}
}

func (v *Validator) users(value string) error {
	for _, tok := range strings.Fields(value) {
		name, _, _ := strings.Cut(tok, "@")
		if isPattern(name) {
			continue
		}
		if _, err := v.userLookup(name); err != nil {
			return sshderr.UnknownIdentityError(sshderr.UserIdentity, name, err)
		}
	}
	return nil
}

func (v *Validator) groups(value string) error {
	for _, tok := range strings.Fields(value) {
		if isPattern(tok) {
			continue
		}
		if _, err := v.groupLookup(tok); err != nil {
			return sshderr.UnknownIdentityError(sshderr.GroupIdentity, tok, err)
		}
	}
	return nil
}

// isPattern reports whether tok is an sshd pattern rather than a literal name.
func isPattern(tok string) bool {
	return tok == "" || strings.ContainsAny(tok, "*?!")
}
