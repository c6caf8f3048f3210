package api

import (
	"fmt"

	"github.com/coldbell/clearing/pkg/clearing"
)

// ==============================
// Request types
// ==============================

type CreateAccountRequest struct {
	Owner string `json:"owner"`
}

type CreatePositionRequest struct {
	Owner    string `json:"owner"`
	MarketID uint64 `json:"marketId"`
}

type TransferRequest struct {
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"`
}

type PlaceOrderRequest struct {
	Owner         string `json:"owner"`
	MarketID      uint64 `json:"marketId"`
	Side          string `json:"side"` // "buy" | "sell"
	Type          string `json:"type"` // "market" | "limit"
	ReduceOnly    bool   `json:"reduceOnly"`
	Margin        uint64 `json:"margin"`
	Price         uint64 `json:"price"`
	TTLSecs       int64  `json:"ttlSecs"`
	ClientOrderID uint64 `json:"clientOrderId"`
}

type CancelOrderRequest struct {
	Owner    string `json:"owner"`
	OrderID  uint64 `json:"orderId"`
	Executor string `json:"executor,omitempty"` // set for executor-initiated cancels
}

// OracleUpdateBody mirrors a signed feed record; all fields feed-native.
type OracleUpdateBody struct {
	FeedID      string `json:"feedId"`
	Price       int64  `json:"price"`
	Conf        uint64 `json:"conf"`
	Exponent    int32  `json:"exponent"`
	PublishTime int64  `json:"publishTime"`
}

// FallbackBody is a caller-supplied observation at engine scale.
type FallbackBody struct {
	Price       uint64 `json:"price"`
	Conf        uint64 `json:"conf"`
	PublishTime int64  `json:"publishTime"`
}

type ExecuteOrderRequest struct {
	Executor  string            `json:"executor"`
	Owner     string            `json:"owner"`
	OrderID   uint64            `json:"orderId"`
	FillPrice uint64            `json:"fillPrice"`
	Oracle    *OracleUpdateBody `json:"oracle,omitempty"`
	Fallback  *FallbackBody     `json:"fallback,omitempty"`
}

type LiquidateRequest struct {
	Keeper   string `json:"keeper"`
	Trader   string `json:"trader"`
	MarketID uint64 `json:"marketId"`
	Leg      string `json:"leg"` // "long" | "short"
	CloseQty uint64 `json:"closeQty"`
}

type ClaimRebateRequest struct {
	Keeper string `json:"keeper"`
}

type FaucetClaimRequest struct {
	Owner  string `json:"owner"`
	Amount uint64 `json:"amount"` // 0 claims the default
}

type KeeperRequest struct {
	Admin  string `json:"admin"`
	Keeper string `json:"keeper"`
}

type PauseRequest struct {
	Admin  string `json:"admin"`
	Paused bool   `json:"paused"`
}

type MarketStatusRequest struct {
	Admin  string `json:"admin"`
	Status string `json:"status"` // "Active" | "Paused" | "Halted"
}

type InitFundingRequest struct {
	Admin    string `json:"admin"`
	MarketID uint64 `json:"marketId"`
}

type FundPoolRequest struct {
	Admin  string `json:"admin"`
	Vault  string `json:"vault"`
	Amount uint64 `json:"amount"`
}

type FaucetLimitsRequest struct {
	Admin        string `json:"admin"`
	DefaultClaim uint64 `json:"defaultClaim"`
	MaxClaim     uint64 `json:"maxClaim"`
}

// ==============================
// Response types
// ==============================

type MarketInfo struct {
	ID                  uint64 `json:"id"`
	Symbol              string `json:"symbol"`
	OracleFeed          string `json:"oracleFeed"`
	Status              string `json:"status"`
	MaxLeverage         uint16 `json:"maxLeverage"`
	IMRBps              uint16 `json:"imrBps"`
	MMRBps              uint16 `json:"mmrBps"`
	OICap               uint64 `json:"oiCap"`
	SkewCap             uint64 `json:"skewCap"`
	MaxTradeNotional    uint64 `json:"maxTradeNotional"`
	TakerFeeBps         uint16 `json:"takerFeeBps"`
	MakerFeeBps         uint16 `json:"makerFeeBps"`
	FundingIntervalSec  int64  `json:"fundingIntervalSec"`
	VelocityCapBpsDaily int64  `json:"velocityCapBpsPerDay"`
	PremiumClampBps     int64  `json:"premiumClampBps"`
}

type FundingInfo struct {
	MarketID     uint64 `json:"marketId"`
	FundingIndex string `json:"fundingIndex"` // funding-scale integral, stringified
	LastUpdateTS int64  `json:"lastUpdateTs"`
	OpenInterest uint64 `json:"openInterest"`
	Skew         string `json:"skew"`
	Halted       bool   `json:"halted"`
}

type AccountInfo struct {
	Owner             string `json:"owner"`
	CollateralBalance uint64 `json:"collateralBalance"`
	NextOrderNonce    uint64 `json:"nextOrderNonce"`
	TotalNotional     uint64 `json:"totalNotional"`
}

type PositionInfo struct {
	Owner              string `json:"owner"`
	MarketID           uint64 `json:"marketId"`
	LongQty            uint64 `json:"longQty"`
	LongEntryNotional  string `json:"longEntryNotional"`
	ShortQty           uint64 `json:"shortQty"`
	ShortEntryNotional string `json:"shortEntryNotional"`
}

type OrderInfo struct {
	ID            uint64 `json:"id"`
	Owner         string `json:"owner"`
	MarketID      uint64 `json:"marketId"`
	Side          string `json:"side"`
	Type          string `json:"type"`
	ReduceOnly    bool   `json:"reduceOnly"`
	Margin        uint64 `json:"margin"`
	Reserved      uint64 `json:"reserved"`
	Price         uint64 `json:"price"`
	CreatedAt     int64  `json:"createdAt"`
	ExpiresAt     int64  `json:"expiresAt"`
	ClientOrderID uint64 `json:"clientOrderId"`
	Status        string `json:"status"`
}

type FillInfo struct {
	Type       string `json:"type"` // "fill"
	MarketID   uint64 `json:"marketId"`
	Trader     string `json:"trader"`
	Keeper     string `json:"keeper"`
	OrderID    uint64 `json:"orderId"`
	Side       string `json:"side"`
	ReduceOnly bool   `json:"reduceOnly"`
	Qty        uint64 `json:"qty"`
	FillPrice  uint64 `json:"fillPrice"`
	Notional   uint64 `json:"notional"`
	Fee        uint64 `json:"fee"`
	Timestamp  int64  `json:"timestamp"`
}

type LiquidationInfo struct {
	Type      string `json:"type"` // "liquidation"
	MarketID  uint64 `json:"marketId"`
	Trader    string `json:"trader"`
	Keeper    string `json:"keeper"`
	Leg       string `json:"leg"`
	ClosedQty uint64 `json:"closedQty"`
	Notional  uint64 `json:"notional"`
	Penalty   uint64 `json:"penalty"`
	BadDebt   uint64 `json:"badDebt"`
	Halted    bool   `json:"halted"`
	Timestamp int64  `json:"timestamp"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// WSSubscribeRequest is a websocket channel subscription message.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" | "unsubscribe"
	Channels []string `json:"channels"`
}

// ==============================
// Enum parsing
// ==============================

func parseSide(s string) (clearing.Side, error) {
	switch s {
	case "buy":
		return clearing.Buy, nil
	case "sell":
		return clearing.Sell, nil
	default:
		return 0, fmt.Errorf("invalid side %q", s)
	}
}

func parseOrderType(s string) (clearing.OrderType, error) {
	switch s {
	case "market":
		return clearing.MarketOrder, nil
	case "limit":
		return clearing.LimitOrder, nil
	default:
		return 0, fmt.Errorf("invalid order type %q", s)
	}
}

func parseLeg(s string) (clearing.PositionLeg, error) {
	switch s {
	case "long":
		return clearing.LegLong, nil
	case "short":
		return clearing.LegShort, nil
	default:
		return 0, fmt.Errorf("invalid position leg %q", s)
	}
}
