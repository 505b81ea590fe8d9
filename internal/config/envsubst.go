package config

import (
	"os"
	"regexp"
	"strings"
)

// Supported forms: ${VAR}, ${VAR:-default}, ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR} references with environment values and
// returns the names of required variables that could not be resolved.
func substituteEnvVars(content string) (string, []string) {
	var missing []string
	out := envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		expr := match[2 : len(match)-1]

		name := expr
		var fallback string
		var hasFallback, required bool
		if i := strings.Index(expr, ":-"); i >= 0 {
			name, fallback, hasFallback = expr[:i], expr[i+2:], true
		} else if i := strings.Index(expr, ":?"); i >= 0 {
			name, required = expr[:i], true
		}

		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		if required {
			missing = append(missing, name)
		}
		return match
	})
	return out, missing
}
