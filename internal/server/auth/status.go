package auth

import "github.com/dmitrijs2005/emes-auth/internal/common"

// AccountState is the part of an account the status gate looks at.
type AccountState interface {
	IsLocked() bool
	IsEnabled() bool
}

// CheckAccountStatus refuses locked accounts first, then disabled ones.
func CheckAccountStatus(a AccountState) error {
	if a.IsLocked() {
		return common.ErrAccountLocked
	}
	if !a.IsEnabled() {
		return common.ErrAccountDisabled
	}
	return nil
}
