package manifest

import (
	"fmt"
	"os"
	"strings"
)

// Issue is a single validation finding.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// Validation is the outcome of validating a plugin package. Warnings do
// not affect validity.
type Validation struct {
	Valid    bool    `json:"isValid"`
	Errors   []Issue `json:"errors"`
	Warnings []Issue `json:"warnings"`
}

// ValidID reports whether id is a usable plugin identifier: non-empty,
// alphanumerics plus hyphen and underscore.
func ValidID(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}

// Validate checks a plugin package rooted at dir against its manifest.
// pluginID is the directory name the plugin is installed under.
func Validate(pluginID string, dir string, m *Manifest) Validation {
	var v Validation

	if !ValidID(pluginID) {
		v.fail("INVALID_ID", "plugin id must be non-empty and contain only letters, digits, hyphens and underscores", "id")
	}
	if m.Name == "" {
		v.fail("MISSING_NAME", "plugin name must not be empty", "name")
	}
	if m.Version == "" {
		v.fail("MISSING_VERSION", "plugin version must not be empty", "version")
	} else if !semverish(m.Version) {
		v.warn("NONSTANDARD_VERSION", "version should use semantic versioning (e.g. 1.0.0)", "version")
	}

	if m.Entry == "" {
		v.fail("MISSING_ENTRY", "plugin entry point must not be empty", "entry")
	} else if _, err := os.Stat(m.EntryPath(dir)); err != nil {
		v.fail("ENTRY_NOT_FOUND", fmt.Sprintf("entry point %s not found", m.Entry), "entry")
	}

	if len(m.Triggers) == 0 {
		v.warn("NO_TRIGGERS", "plugin defines no triggers and cannot be invoked from search", "triggers")
	}
	for _, t := range m.Triggers {
		if t.Keyword == "" {
			v.fail("EMPTY_TRIGGER", "trigger keyword must not be empty", "triggers")
		} else if !strings.HasSuffix(t.Keyword, ":") {
			v.warn("TRIGGER_STYLE", fmt.Sprintf("trigger %q should end with a colon", t.Keyword), "triggers")
		}
	}

	v.Valid = len(v.Errors) == 0
	return v
}

func (v *Validation) fail(code, message, field string) {
	v.Errors = append(v.Errors, Issue{Code: code, Message: message, Field: field})
}

func (v *Validation) warn(code, message, field string) {
	v.Warnings = append(v.Warnings, Issue{Code: code, Message: message, Field: field})
}

// semverish accepts digits and dots only.
func semverish(version string) bool {
	for _, r := range version {
		if (r < '0' || r > '9') && r != '.' {
			return false
		}
	}
	return true
}
