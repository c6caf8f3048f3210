package clearing

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/coldbell/clearing/pkg/clearing/fixedpoint"
	"github.com/coldbell/clearing/pkg/clearing/market"
)

// MarginAccount is a trader's cross-market collateral record. Created once,
// never destroyed. The balance excludes amounts reserved by open orders:
// placing an order debits the reservation immediately and terminal
// non-executed states credit it back in full.
type MarginAccount struct {
	Owner             common.Address
	CollateralBalance uint64 // engine collateral units (USDC micros)
	NextOrderNonce    uint64
	TotalNotional     uint64 // aggregate open notional across this venue

	Version uint64 `json:"version"` // ledger record version
}

// NewMarginAccount creates an empty margin account.
func NewMarginAccount(owner common.Address) *MarginAccount {
	return &MarginAccount{Owner: owner}
}

// orderReservation computes the collateral reserved when an order is placed:
// IMR plus the taker fee on the requested margin. Reduce-only orders reserve
// nothing since they can only shrink exposure.
func orderReservation(reduceOnly bool, orderMargin uint64, m *market.Market) (uint64, error) {
	if reduceOnly {
		return 0, nil
	}
	if orderMargin == 0 {
		return 0, ErrInvalidAmount
	}
	// Requested margin equals trade notional by convention.
	imr, err := fixedpoint.MulBps(orderMargin, uint64(m.Risk.IMRBps))
	if err != nil {
		return 0, err
	}
	fee, err := fixedpoint.MulBps(orderMargin, uint64(m.Fees.TakerFeeBps))
	if err != nil {
		return 0, err
	}
	return fixedpoint.CheckedAdd(imr, fee)
}
