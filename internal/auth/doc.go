// Package auth issues and validates the signed tokens that guard the admin
// endpoints (task removal, integrity sweeps, compaction and reindexing).
// Tokens are HMAC-SHA256 JWTs carrying an "admin" type claim.
package auth
