// Package textutil holds display and filename helpers.
//
// SanitizeTitle folds a story title into the deterministic export file stem;
// Label turns kebab-case identifiers into human-readable titles for the CLI.
package textutil
