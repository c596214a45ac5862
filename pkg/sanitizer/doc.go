// Package sanitizer normalizes user supplied strings before validation.
//
// All functions are idempotent: applying them twice gives the same result. Invalid input
// yields empty strings rather than errors so the validator reports it.
//
// Normalization includes:
//   - Names: trim, collapse inner whitespace
//   - User ids: trim, drop control characters
//   - Slices: normalize every entry, drop empties and duplicates
package sanitizer
