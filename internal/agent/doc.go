// Package agent defines the shared domain types and interfaces for the
// tariff agent: the key-value persistence primitive, clock and ID
// abstractions, and the wire types of the ISP-Compare API surface.
package agent
