// Package stream runs a chain of concurrent steps connected by channels.
//
// A root step emits items, normal steps transform them with a bounded number of goroutines
// and a sink consumes them. The first error stops every step and is returned by Run.
package stream
