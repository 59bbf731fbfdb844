// Package mocks provides centralized mock implementations for testing.
//
// Each mock exposes optional function fields that override its behavior and
// plain fields holding default return values, so a test sets only what it
// needs.
package mocks
