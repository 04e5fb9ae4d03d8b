// Package services provides typed wrappers over the authenticated API
// client, one per resource of the ISP-Compare surface. Each wrapper is a
// thin translation layer: it builds the request, delegates transport and
// authorization concerns to the client, and returns decoded domain types.
package services
