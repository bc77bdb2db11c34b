// Package identity authenticates callers of the AquaTrace ledger.
//
// It provides:
//   - KeyManager:           creates/loads the node's RSA signing keypair
//   - Registrar:            enrolls identities and exchanges access keys for tokens
//   - TokenIssuer:          issues and verifies RS256 caller tokens
//   - OperatorTokenIssuer:  issues and verifies operator session tokens
//   - RequireIdentity:      Gin middleware enforcing Bearer caller authentication
//   - RequireAdmin:         Gin middleware enforcing operator admin sessions
//
// Identities themselves are opaque strings. Authorization (who may record
// quality, who may track distribution) is decided by the ledger's access
// registry, not here; this package only establishes who is calling.
package identity
