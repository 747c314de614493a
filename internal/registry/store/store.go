// Package store holds the registry ledger: credentials, accreditation records
// and the event log, behind one transactional boundary.
//
// Both implementations follow the same contract. RunInTx runs one atomic,
// totally ordered transition; every write method must be called inside it and
// the state change commits together with its events or not at all. View pins
// one committed snapshot for a group of reads. Reads outside either observe
// the latest committed state.
package store

import (
	"errors"
	"time"
)

const defaultTxTimeout = 5 * time.Second

var errOutsideTx = errors.New("ledger write outside transaction")
