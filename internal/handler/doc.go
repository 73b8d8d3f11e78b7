// Package handler implements the interlink HTTP API.
//
// Routes are registered on a standard library ServeMux by API.Register:
//
//	GET    /api/profiles                 list stored profiles
//	GET    /api/profiles/{id}            one profile
//	POST   /api/refresh[?async=true]     run discovery
//	GET    /api/compatibility            full interface map with peers
//	GET    /api/compatibility/{id}       interface map of one system
//	POST   /api/analyze[?async=true]     run a compatibility pass
//	GET    /api/connections[?system=]    list connections, optionally of one system
//	POST   /api/connections              connect {"a","b"}
//	DELETE /api/connections?a=&b=        disconnect
//	GET    /api/connections/state?a=&b=  connection of a pair
//	GET    /api/connections/{id}         connection by ID
//	POST   /api/connections/{id}/send    relay the raw body
//	GET    /events                       SSE stream of engine events
//	GET    /metrics                      Prometheus metrics
//
// Errors are returned as JSON {error, details, kind}. Domain errors map to
// status codes: not found 404, incompatible and not active 409, unreachable
// and oracle unavailable 503, transport and permanent failures 502.
package handler
