// Package analyze counts vehicles on a single picture.
//
// It runs one plain detection without tracking or reporting and describes the
// lot the way the status endpoint would see it.
package analyze
