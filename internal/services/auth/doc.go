// Package auth is the browser-facing half of guild verification.
//
// Subpackages:
//   - app: process wiring and lifecycle
//   - oauth: pending requests, the callback endpoint and Google API calls
//   - templates: pages rendered to the member's browser
package auth
