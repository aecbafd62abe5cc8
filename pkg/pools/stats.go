package pools

import "github.com/houseofcat/turbocookedcassandra/pkg/utils"

// Stats is a point-in-time copy of an ObjectPool's lifetime counters.
type Stats struct {
	BorrowCount                int64 `json:"BorrowCount"`
	ReturnCount                int64 `json:"ReturnCount"`
	MakeCount                  int64 `json:"MakeCount"`
	ReuseCount                 int64 `json:"ReuseCount"`
	FailedMakeCount            int64 `json:"FailedMakeCount"`
	FailedActivateIdleCount    int64 `json:"FailedActivateIdleCount"`
	FailedValidateIdleCount    int64 `json:"FailedValidateIdleCount"`
	FailedActivateNewCount     int64 `json:"FailedActivateNewCount"`
	FailedValidateNewCount     int64 `json:"FailedValidateNewCount"`
	FailedValidateReturnCount  int64 `json:"FailedValidateReturnCount"`
	FailedPassivateReturnCount int64 `json:"FailedPassivateReturnCount"`
	FailedDestroyCount         int64 `json:"FailedDestroyCount"`
	TimeoutCount               int64 `json:"TimeoutCount"`
}

type poolCounters struct {
	borrow                utils.Counter
	ret                   utils.Counter
	make                  utils.Counter
	reuse                 utils.Counter
	failedMake            utils.Counter
	failedActivateIdle    utils.Counter
	failedValidateIdle    utils.Counter
	failedActivateNew     utils.Counter
	failedValidateNew     utils.Counter
	failedValidateReturn  utils.Counter
	failedPassivateReturn utils.Counter
	failedDestroy         utils.Counter
	timeout               utils.Counter
}

func (pc *poolCounters) snapshot() Stats {
	return Stats{
		BorrowCount:                pc.borrow.Value(),
		ReturnCount:                pc.ret.Value(),
		MakeCount:                  pc.make.Value(),
		ReuseCount:                 pc.reuse.Value(),
		FailedMakeCount:            pc.failedMake.Value(),
		FailedActivateIdleCount:    pc.failedActivateIdle.Value(),
		FailedValidateIdleCount:    pc.failedValidateIdle.Value(),
		FailedActivateNewCount:     pc.failedActivateNew.Value(),
		FailedValidateNewCount:     pc.failedValidateNew.Value(),
		FailedValidateReturnCount:  pc.failedValidateReturn.Value(),
		FailedPassivateReturnCount: pc.failedPassivateReturn.Value(),
		FailedDestroyCount:         pc.failedDestroy.Value(),
		TimeoutCount:               pc.timeout.Value(),
	}
}
