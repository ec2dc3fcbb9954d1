package takeover

import (
	"regexp"
)

// envVarRef matches both $VAR and ${VAR} shell-style variable references.
var envVarRef = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)

// EnvVarNeeds scans every detected service's transport fields for
// $VAR/${VAR} references and returns the distinct names not already present
// in stored (the caller's known-values set).
func EnvVarNeeds(services []DetectedService, stored map[string]bool) []string {
	seen := make(map[string]bool)
	var names []string
	note := func(s string) {
		for _, m := range envVarRef.FindAllStringSubmatch(s, -1) {
			name := m[1]
			if stored[name] || seen[name] {
				continue
			}
			seen[name] = true
			names = append(names, name)
		}
	}

	for _, svc := range services {
		t := svc.Transport
		note(t.Command)
		for _, a := range t.Args {
			note(a)
		}
		for _, v := range t.Env {
			note(v)
		}
		note(t.URL)
		for _, v := range t.Headers {
			note(v)
		}
	}
	return names
}
