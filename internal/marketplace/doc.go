// Package marketplace lists installable plugins from the npm registry.
//
// Plugins are ordinary npm packages tagged with the etools-plugin keyword;
// the registry's search endpoint serves discovery and pagination.
package marketplace
