// Package httpapi is the JSON-over-HTTP surface of an authcore Engine.
//
// Routes are mounted on a chi router. Authentication endpoints sit behind a
// per-IP token bucket; account administration sits behind bearer-token
// authentication and role checks from the middleware package. Engine errors
// are mapped to status codes through authcore.Classify and the individual
// sentinels, and internal failures never leak details to the client.
package httpapi
