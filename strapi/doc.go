// Package strapi is a thin JSON client for the Genius Parenting Strapi
// backend. It attaches the bearer token from a TokenSource, decodes the
// Strapi envelopes in package model, and turns non-2xx responses into
// *APIError values.
//
// # Architecture boundaries
//
// The client knows nothing about sessions. A 401 is reported through the
// OnUnauthorized hook and ErrUnauthorized; deciding to end the session is
// the caller's job.
//
// # What this package must NOT do
//
//   - Store or log bearer tokens or passwords.
//   - Retry requests.
//   - Import goSession or session.
package strapi
