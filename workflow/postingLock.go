package workflow

import (
	"fmt"

	"gorm.io/gorm"
)

// postingLockName serializes every ledger posting. Balances are updated in
// place, so two workers must not post concurrently.
const postingLockName = "erp:ledger_posting"

// AcquirePostingLock takes a MySQL advisory lock. GET_LOCK is connection
// scoped, so tx must be the transaction that does the posting.
func AcquirePostingLock(tx *gorm.DB, name string) error {
	var ok int
	if err := tx.Raw("SELECT GET_LOCK(?, 30)", name).Scan(&ok).Error; err != nil {
		return err
	}
	if ok != 1 {
		return fmt.Errorf("could not acquire posting lock %s", name)
	}
	return nil
}

func ReleasePostingLock(tx *gorm.DB, name string) {
	var ok int
	_ = tx.Raw("SELECT RELEASE_LOCK(?)", name).Scan(&ok).Error
}
