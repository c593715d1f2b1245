// Package upstream implements the HTTP client for the translation
// backend.
//
// Requests are authenticated with a bearer token plus an HMAC-SHA256
// request signature derived from the installation identifier and a
// timestamp, so a leaked request cannot be replayed indefinitely. The
// client performs no retries itself; callers wrap it with the fetch
// package, which classifies failures through the StatusError type
// returned here.
package upstream
