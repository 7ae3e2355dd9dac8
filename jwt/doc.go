// Package jwt inspects bearer tokens issued by the content backend so the
// session layer can discard an expired token locally instead of spending a
// network round-trip to learn it was rejected.
//
// The backend signs tokens with HS256 and the claims {"id", "iat", "exp"}.
// When the signing secret (or an Ed25519 public key for self-hosted backends)
// is configured the signature is verified; otherwise claims are read without
// verification and are advisory only. The backend stays the authority.
package jwt
