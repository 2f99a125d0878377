// Package accounts manages the lifecycle of user identities: registration gated
// by email confirmation, local and OAuth login, password reset and change, and
// email change re-verification, all backed by signed session tokens.
//
// Staged changes:
//   - Every change that must be confirmed out of band is written as a
//     PendingChange keyed by a single-use token. Registrations and email
//     changes live for 24 hours, password resets for 30 minutes.
//   - A PendingChange is a tagged union. Use NewRegistration, NewEmailChange
//     and NewPasswordReset to build one and the typed accessors to read its
//     payload back.
//   - At most one live PendingChange exists per email. Stores enforce this with
//     a uniqueness constraint, not with in-process locks, so several server
//     instances can share one database.
//   - Tokens are consumed exactly once. Completion reads and deletes the staged
//     record in the same transaction that promotes it; a second caller sees
//     ErrNotFound.
//
// Logins:
//   - Local logins check the bcrypt hash of an Identity whose provider is
//     "local". OAuth logins go through an oauth.Registry and create the
//     Identity on first sight of the verified email.
//   - TokenService signs SessionClaims with HMAC SHA-384. The subject is the
//     email so a token always resolves to the current Identity row.
//
// Housekeeping:
//   - ExpiryReaper deletes expired staged records on a cron schedule. Expired
//     records are also deleted when a lookup observes them.
package accounts
