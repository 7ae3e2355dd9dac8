// Package model defines the backend records consumed by the session layer: the
// signed-in user with its subscription, plan and entitlements, course details,
// and the Strapi response envelopes that wrap them.
//
// # Architecture boundaries
//
// Types here mirror the JSON the backend returns and add small derived views
// (role, entitlement slug set, quota lookup). They carry no behavior that
// depends on session state.
//
// # What this package must NOT do
//
//   - Perform I/O or hold references to clients or stores.
//   - Import any other package of this module.
package model
