//go:build invariants

package db

// Building with -tags invariants checks every mutation of a HashSet.
const invariants = true
