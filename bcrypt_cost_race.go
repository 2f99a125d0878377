//go:build race

package accounts

import "golang.org/x/crypto/bcrypt"

func passwordHashCost() int {
	// Race builds run an order of magnitude slower.
	return bcrypt.DefaultCost
}
