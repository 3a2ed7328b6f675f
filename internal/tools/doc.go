// Package tools provides host process helpers shared by capability adapters.
//
// Ownership boundary:
// - command execution helpers
package tools
