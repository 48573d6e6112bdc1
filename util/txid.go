package util

import "sync/atomic"

// TxGenerator provides unique transaction ids for transactional request/responses
// to the enclave
type TxGenerator struct {
	txcounter uint64
}

// NextID returns a new unique transaction id
func (t *TxGenerator) NextID() uint64 {
	return atomic.AddUint64(&t.txcounter, 1)
}
