package clearing

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Prefix-based so per-owner range scans (orders,
// positions) are a single iterator pass, with fixed-width numeric fields
// for lexicographic ordering.
const (
	prefixAccount = "acct:"  // margin account state
	prefixPos     = "pos:"   // per-market position state
	prefixOrder   = "ord:"   // order state
	prefixFunding = "fund:"  // per-market funding state
	prefixVault   = "vault:" // pool and collateral vault balances
)

// accountKey returns the key for a margin account.
// Format: "acct:{address}"
func accountKey(addr common.Address) []byte {
	return []byte(prefixAccount + addr.Hex())
}

// positionKey returns the key for an owner's position in one market.
// Format: "pos:{address}:{marketID}"
func positionKey(addr common.Address, marketID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixPos, addr.Hex(), marketID))
}

// positionPrefix returns the range-scan prefix for all of an owner's
// positions.
func positionPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixPos, addr.Hex()))
}

// orderKey returns the key for an order. Order IDs are per-owner nonces,
// zero-padded so iteration yields placement order.
// Format: "ord:{address}:{nonce}"
func orderKey(addr common.Address, orderID uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d", prefixOrder, addr.Hex(), orderID))
}

// orderPrefix returns the range-scan prefix for all of an owner's orders.
func orderPrefix(addr common.Address) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixOrder, addr.Hex()))
}

// fundingKey returns the key for a market's funding state.
// Format: "fund:{marketID}"
func fundingKey(marketID uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixFunding, marketID))
}

// vaultKey returns the key for a named vault balance.
// Format: "vault:{name}"
func vaultKey(name string) []byte {
	return []byte(prefixVault + name)
}

// keyUpperBound returns the exclusive upper bound for a prefix scan by
// incrementing the final byte of the prefix.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
