package controller

import ethcommon "github.com/ethereum/go-ethereum/common"

// RewardDistributor is notified by the gates before supply or borrow
// balances change so an incentive program could settle accrued rewards.
type RewardDistributor interface {
	UpdateSupplyIndex(pool ethcommon.Address)
	DistributeSupplier(pool, supplier ethcommon.Address)
	UpdateBorrowIndex(pool ethcommon.Address)
	DistributeBorrower(pool, borrower ethcommon.Address)
}

// NoopRewardDistributor ignores every notification.
type NoopRewardDistributor struct{}

func (NoopRewardDistributor) UpdateSupplyIndex(ethcommon.Address)                     {}
func (NoopRewardDistributor) DistributeSupplier(ethcommon.Address, ethcommon.Address) {}
func (NoopRewardDistributor) UpdateBorrowIndex(ethcommon.Address)                     {}
func (NoopRewardDistributor) DistributeBorrower(ethcommon.Address, ethcommon.Address) {}
