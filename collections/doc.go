// Package collections provides generic data structures for Go applications.
//
// This package includes implementations of common collection types such as
// ArrayList, HashSet, SyncSet, and more. All collections support generics
// for type-safe usage.
package collections
