// Package semver parses capability references and checks bridge version constraints.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// Wildcard as a command matches every command of a namespace.
const Wildcard = "*"

// CapabilityRef is a parsed "namespace.command" reference.
type CapabilityRef struct {
	Namespace string
	Command   string
	// Raw input string
	Raw string
}

var nameRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_-]*$`)

// ParseCapabilityRef parses a capability reference string.
//
// Supported formats:
//   - fs.readFile     (one command)
//   - fs.*            (every command in a namespace)
func ParseCapabilityRef(input string) (*CapabilityRef, error) {
	raw := strings.TrimSpace(input)

	dot := strings.Index(raw, ".")
	if dot == -1 {
		return nil, fmt.Errorf("%s - invalid capability format, missing namespace: %q", logPrefix, raw)
	}
	namespace := raw[:dot]
	command := raw[dot+1:]

	if !ValidateName(namespace) {
		return nil, fmt.Errorf("%s - invalid namespace in %q", logPrefix, raw)
	}
	if command != Wildcard && !ValidateName(command) {
		return nil, fmt.Errorf("%s - invalid command in %q", logPrefix, raw)
	}

	return &CapabilityRef{Namespace: namespace, Command: command, Raw: raw}, nil
}

// String returns the canonical "namespace.command" form.
func (r *CapabilityRef) String() string {
	return r.Namespace + "." + r.Command
}

// Matches reports whether the reference names (namespace, command).
func (r *CapabilityRef) Matches(namespace, command string) bool {
	return r.Namespace == namespace && (r.Command == Wildcard || r.Command == command)
}

// ValidateName validates a namespace or command name (letters, digits, hyphens, underscores).
func ValidateName(name string) bool {
	return nameRegex.MatchString(name)
}
