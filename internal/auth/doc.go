// Package auth drives login, token login, admin bootstrap and role checks
// against whichever backend is active.
//
// The package never reads from a terminal. Interactive callers supply a
// CredentialSource, and Service.Login calls it once per attempt. Callers
// that collect credentials some other way can drive a Login tracker
// directly.
package auth
