// Package session implements the login session lifecycle for Chzzk.
//
// A browser moves through four states: Anonymous, Authorizing (redirected to
// the Chzzk authorization UI with a sealed state), Authenticated (holding an
// access/refresh pair in HTTP-only cookies) and Expired (cookies present but
// the provider rejects them or they fail the binding check).
//
// There is no server-side session table. Each read re-derives the Session
// from the access token with two sequential Open API calls.
//
// Cookie transport lives in the tokenstore package; HTTP routing lives in
// authapi.
package session
