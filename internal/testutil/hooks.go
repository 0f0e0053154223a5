package testutil

import (
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func inTx(tx *gorm.DB) bool {
	_, ok := tx.Statement.ConnPool.(gorm.TxCommitter)
	return ok
}

// AfterTxRead runs fn once, right after the next read of table issued inside a
// transaction. fn gets a session on that same transaction, so its writes land between
// the read and whatever the caller does next, the way a concurrent writer committing
// under READ COMMITTED would.
func AfterTxRead(t *testing.T, db *gorm.DB, table string, fn func(tx *gorm.DB)) {
	t.Helper()
	var fired atomic.Bool
	name := "testutil:after_tx_read:" + uuid.NewString()
	require.NoError(t, db.Callback().Query().After("gorm:query").Register(name, func(tx *gorm.DB) {
		if tx.Error != nil || tx.Statement.Table != table || !inTx(tx) {
			return
		}
		if !fired.CompareAndSwap(false, true) {
			return
		}
		fn(tx.Session(&gorm.Session{NewDB: true}))
	}))
	t.Cleanup(func() { _ = db.Callback().Query().Remove(name) })
}

// FailUpdateOnce fails the first map update of table that sets column. The statement is
// never sent, and the surrounding transaction, if any, rolls back.
func FailUpdateOnce(t *testing.T, db *gorm.DB, table, column string, err error) {
	t.Helper()
	var fired atomic.Bool
	name := "testutil:fail_update_once:" + uuid.NewString()
	require.NoError(t, db.Callback().Update().Before("gorm:update").Register(name, func(tx *gorm.DB) {
		if tx.Statement.Table != table {
			return
		}
		cols, ok := tx.Statement.Dest.(map[string]interface{})
		if !ok {
			return
		}
		if _, ok := cols[column]; !ok {
			return
		}
		if fired.CompareAndSwap(false, true) {
			_ = tx.AddError(err)
		}
	}))
	t.Cleanup(func() { _ = db.Callback().Update().Remove(name) })
}
