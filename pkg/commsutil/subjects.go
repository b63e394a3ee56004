package commsutil

import "fmt"

// Default COMMS subjects.
const (
	DefaultSubjectPrefix = "bridge"
	SubjectDiagnostics   = "bridge.diagnostics"
)

// BuildRequestSubject is where callers publish request frames for the given prefix.
func BuildRequestSubject(prefix string) string {
	return fmt.Sprintf("%s.request", normalizePrefix(prefix))
}

// BuildResponseSubject is where the bridge publishes response frames for the given prefix.
func BuildResponseSubject(prefix string) string {
	return fmt.Sprintf("%s.response", normalizePrefix(prefix))
}

// BuildDiagnosticSubject builds a granular diagnostics subject for one event kind.
func BuildDiagnosticSubject(global, kind string) string {
	if global == "" {
		global = SubjectDiagnostics
	}
	return fmt.Sprintf("%s.%s", global, kind)
}

func normalizePrefix(prefix string) string {
	if prefix == "" {
		return DefaultSubjectPrefix
	}
	return prefix
}
