// Package resolver decides whether a client needs an update.
//
// Resolve is a total function over a catalog snapshot and a query: it never
// fails and never mutates anything, it only classifies the query into one of
// four outcomes.
package resolver
