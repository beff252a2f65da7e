//go:build !invariants

package db

const invariants = false
