// Package manifest parses, validates and discovers plugin packages.
//
// A plugin package is a directory with a plugin.json manifest naming the
// entry script, required permissions and search triggers. Triggers accept
// both a shorthand string form and a full object form.
package manifest
