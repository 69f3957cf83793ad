// Package auth provides agent authentication and authorisation.
//
// Agents present an HS256 bearer token whose subject is the agent identity
// used for lock ownership. A 3-tier role model (agent → operator → admin)
// is mapped statically to permissions; there is no database lookup on the
// request path.
package auth
