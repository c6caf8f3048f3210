// Package api exposes the clearing engine over HTTP: trader operations,
// keeper operations, admin operations, read endpoints, and a websocket
// stream of fills and liquidations.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/coldbell/clearing/pkg/clearing"
	"github.com/coldbell/clearing/pkg/clearing/market"
	"github.com/coldbell/clearing/pkg/clearing/oracle"
	"github.com/coldbell/clearing/pkg/faucet"
	"github.com/coldbell/clearing/pkg/pool"
)

// Server handles REST API and WebSocket connections.
//
// Caller identities arrive as plain addresses in request bodies; signature
// verification happens upstream of this service (gateway/session layer),
// matching the engine's trust model for transport plumbing.
type Server struct {
	log      *zap.SugaredLogger
	engine   *clearing.Engine
	registry *market.Registry
	pool     *pool.Pool
	faucet   *faucet.Faucet
	router   *mux.Router
	hub      *Hub
}

// NewServer wires the API against the engine and its collaborators.
func NewServer(log *zap.SugaredLogger, engine *clearing.Engine, registry *market.Registry, p *pool.Pool, f *faucet.Faucet) *Server {
	s := &Server{
		log:      log,
		engine:   engine,
		registry: registry,
		pool:     p,
		faucet:   f,
		router:   mux.NewRouter(),
		hub:      NewHub(log),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Market reads
	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{id}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{id}/funding", s.handleGetFunding).Methods("GET")

	// Account reads
	api.HandleFunc("/accounts/{address}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{address}/positions", s.handleGetPositions).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders", s.handleGetOrders).Methods("GET")
	api.HandleFunc("/accounts/{address}/orders/{id}", s.handleGetOrder).Methods("GET")

	// Trader operations
	api.HandleFunc("/accounts", s.handleCreateAccount).Methods("POST")
	api.HandleFunc("/positions", s.handleCreatePosition).Methods("POST")
	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/cancel", s.handleCancelOrder).Methods("POST")

	// Keeper operations
	api.HandleFunc("/orders/execute", s.handleExecuteOrder).Methods("POST")
	api.HandleFunc("/liquidate", s.handleLiquidate).Methods("POST")
	api.HandleFunc("/pool/rebates/claim", s.handleClaimRebate).Methods("POST")

	// Pool reads
	api.HandleFunc("/pool", s.handleGetPool).Methods("GET")
	api.HandleFunc("/pool/rebates/{address}", s.handleGetRebate).Methods("GET")

	// Faucet
	api.HandleFunc("/faucet/claim", s.handleFaucetClaim).Methods("POST")

	// Admin operations
	api.HandleFunc("/admin/keepers/add", s.handleAddKeeper).Methods("POST")
	api.HandleFunc("/admin/keepers/remove", s.handleRemoveKeeper).Methods("POST")
	api.HandleFunc("/admin/pause", s.handleSetPause).Methods("POST")
	api.HandleFunc("/admin/markets/{id}/status", s.handleSetMarketStatus).Methods("POST")
	api.HandleFunc("/admin/markets/{id}/funding/init", s.handleInitFunding).Methods("POST")
	api.HandleFunc("/admin/pool/fund", s.handleFundPool).Methods("POST")
	api.HandleFunc("/admin/faucet/limits", s.handleFaucetLimits).Methods("POST")

	// WebSocket + health
	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and serves HTTP on addr.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api server starting", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// Event sink (clearing.EventSink)
// ==============================

// PublishFill streams an executed fill to websocket subscribers.
func (s *Server) PublishFill(fill clearing.TradeFill) {
	info := FillInfo{
		Type:       "fill",
		MarketID:   fill.MarketID,
		Trader:     fill.Trader.Hex(),
		Keeper:     fill.Keeper.Hex(),
		OrderID:    fill.OrderID,
		Side:       fill.Side.String(),
		ReduceOnly: fill.ReduceOnly,
		Qty:        fill.Qty,
		FillPrice:  fill.FillPrice,
		Notional:   fill.Notional,
		Fee:        fill.Fee,
		Timestamp:  fill.Timestamp,
	}
	s.hub.BroadcastToChannel("fills", info)
	s.hub.BroadcastToChannel(fmt.Sprintf("fills:%d", fill.MarketID), info)
}

// PublishLiquidation streams a liquidation to websocket subscribers.
func (s *Server) PublishLiquidation(ev clearing.LiquidationEvent) {
	info := LiquidationInfo{
		Type:      "liquidation",
		MarketID:  ev.MarketID,
		Trader:    ev.Trader.Hex(),
		Keeper:    ev.Keeper.Hex(),
		Leg:       ev.Leg.String(),
		ClosedQty: ev.ClosedQty,
		Notional:  ev.Notional,
		Penalty:   ev.Penalty,
		BadDebt:   ev.BadDebt,
		Halted:    ev.Halted,
		Timestamp: ev.Timestamp,
	}
	s.hub.BroadcastToChannel("liquidations", info)
	s.hub.BroadcastToChannel(fmt.Sprintf("liquidations:%d", ev.MarketID), info)
}

// ==============================
// Read handlers
// ==============================

func marketInfo(m *market.Market) MarketInfo {
	return MarketInfo{
		ID:                  m.ID,
		Symbol:              m.Symbol,
		OracleFeed:          m.OracleFeed.Hex(),
		Status:              m.Status.String(),
		MaxLeverage:         m.Risk.MaxLeverage,
		IMRBps:              m.Risk.IMRBps,
		MMRBps:              m.Risk.MMRBps,
		OICap:               m.Risk.OICap,
		SkewCap:             m.Risk.SkewCap,
		MaxTradeNotional:    m.Risk.MaxTradeNotional,
		TakerFeeBps:         m.Fees.TakerFeeBps,
		MakerFeeBps:         m.Fees.MakerFeeBps,
		FundingIntervalSec:  m.Funding.IntervalSec,
		VelocityCapBpsDaily: m.Funding.FundingVelocityCapBpsPerDay,
		PremiumClampBps:     m.Funding.PremiumClampBps,
	}
}

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	markets := s.registry.List()
	response := make([]MarketInfo, len(markets))
	for i, m := range markets {
		response[i] = marketInfo(m)
	}
	respondJSON(w, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := s.registry.Get(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	respondJSON(w, marketInfo(m))
}

func (s *Server) handleGetFunding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	fs, err := s.engine.Store().GetFunding(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read failed", err.Error())
		return
	}
	if fs == nil {
		respondError(w, http.StatusNotFound, "funding state not found", "")
		return
	}
	respondJSON(w, FundingInfo{
		MarketID:     fs.MarketID,
		FundingIndex: fs.FundingIndex.String(),
		LastUpdateTS: fs.LastUpdateTS,
		OpenInterest: fs.OpenInterest,
		Skew:         fs.Skew.String(),
		Halted:       fs.Halted,
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	acct, err := s.engine.Store().GetAccount(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read failed", err.Error())
		return
	}
	if acct == nil {
		respondError(w, http.StatusNotFound, "account not found", "")
		return
	}
	respondJSON(w, AccountInfo{
		Owner:             acct.Owner.Hex(),
		CollateralBalance: acct.CollateralBalance,
		NextOrderNonce:    acct.NextOrderNonce,
		TotalNotional:     acct.TotalNotional,
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	positions, err := s.engine.Store().GetPositions(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read failed", err.Error())
		return
	}
	response := make([]PositionInfo, 0, len(positions))
	for _, p := range positions {
		response = append(response, PositionInfo{
			Owner:              p.Owner.Hex(),
			MarketID:           p.MarketID,
			LongQty:            p.LongQty,
			LongEntryNotional:  p.LongEntryNotional.String(),
			ShortQty:           p.ShortQty,
			ShortEntryNotional: p.ShortEntryNotional.String(),
		})
	}
	respondJSON(w, response)
}

func orderInfo(o *clearing.Order) OrderInfo {
	return OrderInfo{
		ID:            o.ID,
		Owner:         o.Owner.Hex(),
		MarketID:      o.MarketID,
		Side:          o.Side.String(),
		Type:          o.Type.String(),
		ReduceOnly:    o.ReduceOnly,
		Margin:        o.Margin,
		Reserved:      o.Reserved,
		Price:         o.Price,
		CreatedAt:     o.CreatedAt,
		ExpiresAt:     o.ExpiresAt,
		ClientOrderID: o.ClientOrderID,
		Status:        o.Status.String(),
	}
}

func (s *Server) handleGetOrders(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	orders, err := s.engine.Store().GetOpenOrders(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read failed", err.Error())
		return
	}
	response := make([]OrderInfo, 0, len(orders))
	for _, o := range orders {
		response = append(response, orderInfo(o))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, err := s.engine.Store().GetOrder(addr, id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read failed", err.Error())
		return
	}
	if o == nil {
		respondError(w, http.StatusNotFound, "order not found", "")
		return
	}
	respondJSON(w, orderInfo(o))
}

func (s *Server) handleGetPool(w http.ResponseWriter, r *http.Request) {
	stats, err := s.pool.Snapshot()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read failed", err.Error())
		return
	}
	respondJSON(w, stats)
}

func (s *Server) handleGetRebate(w http.ResponseWriter, r *http.Request) {
	addr, ok := pathAddress(w, r)
	if !ok {
		return
	}
	amount, err := s.pool.PendingRebate(addr)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "read failed", err.Error())
		return
	}
	respondJSON(w, map[string]uint64{"pendingRebate": amount})
}

// ==============================
// Mutation handlers
// ==============================

func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decode(w, r, &req) {
		return
	}
	owner, ok := parseAddr(w, req.Owner, "owner")
	if !ok {
		return
	}
	if err := s.engine.CreateMarginAccount(owner); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "created"})
}

func (s *Server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var req CreatePositionRequest
	if !decode(w, r, &req) {
		return
	}
	owner, ok := parseAddr(w, req.Owner, "owner")
	if !ok {
		return
	}
	if err := s.engine.CreatePosition(owner, req.MarketID); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "created"})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	owner, ok := parseAddr(w, req.Owner, "owner")
	if !ok {
		return
	}
	if err := s.engine.Deposit(owner, req.Amount); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "deposited"})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req TransferRequest
	if !decode(w, r, &req) {
		return
	}
	owner, ok := parseAddr(w, req.Owner, "owner")
	if !ok {
		return
	}
	if err := s.engine.Withdraw(owner, req.Amount); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "withdrawn"})
}

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !decode(w, r, &req) {
		return
	}
	owner, ok := parseAddr(w, req.Owner, "owner")
	if !ok {
		return
	}
	side, err := parseSide(req.Side)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid side", err.Error())
		return
	}
	typ, err := parseOrderType(req.Type)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid type", err.Error())
		return
	}
	order, err := s.engine.PlaceOrder(owner, clearing.PlaceOrderParams{
		MarketID:      req.MarketID,
		Side:          side,
		Type:          typ,
		ReduceOnly:    req.ReduceOnly,
		Margin:        req.Margin,
		Price:         req.Price,
		TTLSecs:       req.TTLSecs,
		ClientOrderID: req.ClientOrderID,
	})
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, orderInfo(order))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	var req CancelOrderRequest
	if !decode(w, r, &req) {
		return
	}
	owner, ok := parseAddr(w, req.Owner, "owner")
	if !ok {
		return
	}
	var err error
	if req.Executor != "" {
		executor, ok := parseAddr(w, req.Executor, "executor")
		if !ok {
			return
		}
		err = s.engine.CancelOrderByExecutor(executor, owner, req.OrderID)
	} else {
		err = s.engine.CancelOrder(owner, req.OrderID)
	}
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "cancelled"})
}

func (s *Server) handleExecuteOrder(w http.ResponseWriter, r *http.Request) {
	var req ExecuteOrderRequest
	if !decode(w, r, &req) {
		return
	}
	executor, ok := parseAddr(w, req.Executor, "executor")
	if !ok {
		return
	}
	owner, ok := parseAddr(w, req.Owner, "owner")
	if !ok {
		return
	}

	var update *oracle.PriceUpdate
	if req.Oracle != nil {
		update = &oracle.PriceUpdate{
			FeedID:      common.HexToHash(req.Oracle.FeedID),
			Price:       req.Oracle.Price,
			Conf:        req.Oracle.Conf,
			Exponent:    req.Oracle.Exponent,
			PublishTime: req.Oracle.PublishTime,
		}
	}
	var fb oracle.Fallback
	if req.Fallback != nil {
		fb = oracle.Fallback{
			Price:       req.Fallback.Price,
			Conf:        req.Fallback.Conf,
			PublishTime: req.Fallback.PublishTime,
		}
	}

	fill, err := s.engine.ExecuteOrder(executor, owner, req.OrderID, req.FillPrice, update, fb)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	if fill == nil {
		respondJSON(w, map[string]string{"status": "expired"})
		return
	}
	respondJSON(w, map[string]any{"status": "executed", "qty": fill.Qty, "fee": fill.Fee, "notional": fill.Notional})
}

func (s *Server) handleLiquidate(w http.ResponseWriter, r *http.Request) {
	var req LiquidateRequest
	if !decode(w, r, &req) {
		return
	}
	keeper, ok := parseAddr(w, req.Keeper, "keeper")
	if !ok {
		return
	}
	trader, ok := parseAddr(w, req.Trader, "trader")
	if !ok {
		return
	}
	leg, err := parseLeg(req.Leg)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid leg", err.Error())
		return
	}
	ev, err := s.engine.Liquidate(keeper, trader, req.MarketID, leg, req.CloseQty)
	if err != nil && !errors.Is(err, clearing.ErrInsuranceShortfall) {
		respondEngineError(w, err)
		return
	}
	response := map[string]any{
		"status":   "liquidated",
		"notional": ev.Notional,
		"penalty":  ev.Penalty,
		"badDebt":  ev.BadDebt,
		"halted":   ev.Halted,
	}
	if err != nil {
		response["status"] = "halted"
		response["error"] = err.Error()
	}
	respondJSON(w, response)
}

func (s *Server) handleClaimRebate(w http.ResponseWriter, r *http.Request) {
	var req ClaimRebateRequest
	if !decode(w, r, &req) {
		return
	}
	keeper, ok := parseAddr(w, req.Keeper, "keeper")
	if !ok {
		return
	}
	amount, err := s.pool.ClaimRebate(keeper)
	if err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]uint64{"claimed": amount})
}

func (s *Server) handleFaucetClaim(w http.ResponseWriter, r *http.Request) {
	var req FaucetClaimRequest
	if !decode(w, r, &req) {
		return
	}
	owner, ok := parseAddr(w, req.Owner, "owner")
	if !ok {
		return
	}
	amount, err := s.faucet.Claim(owner, req.Amount)
	if err != nil {
		if errors.Is(err, faucet.ErrDisabled) {
			respondError(w, http.StatusForbidden, "faucet disabled", "")
			return
		}
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]uint64{"claimed": amount})
}

// ==============================
// Admin handlers
// ==============================

func (s *Server) handleAddKeeper(w http.ResponseWriter, r *http.Request) {
	s.handleKeeperChange(w, r, s.registry.AddKeeper)
}

func (s *Server) handleRemoveKeeper(w http.ResponseWriter, r *http.Request) {
	s.handleKeeperChange(w, r, s.registry.RemoveKeeper)
}

func (s *Server) handleKeeperChange(w http.ResponseWriter, r *http.Request, apply func(admin, keeper common.Address) error) {
	var req KeeperRequest
	if !decode(w, r, &req) {
		return
	}
	admin, ok := parseAddr(w, req.Admin, "admin")
	if !ok {
		return
	}
	keeper, ok := parseAddr(w, req.Keeper, "keeper")
	if !ok {
		return
	}
	if err := apply(admin, keeper); err != nil {
		respondError(w, http.StatusForbidden, "keeper change rejected", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": "ok"})
}

func (s *Server) handleSetPause(w http.ResponseWriter, r *http.Request) {
	var req PauseRequest
	if !decode(w, r, &req) {
		return
	}
	admin, ok := parseAddr(w, req.Admin, "admin")
	if !ok {
		return
	}
	if err := s.registry.SetGlobalPause(admin, req.Paused); err != nil {
		respondError(w, http.StatusForbidden, "pause rejected", err.Error())
		return
	}
	respondJSON(w, map[string]bool{"paused": req.Paused})
}

func (s *Server) handleSetMarketStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req MarketStatusRequest
	if !decode(w, r, &req) {
		return
	}
	admin, ok := parseAddr(w, req.Admin, "admin")
	if !ok {
		return
	}
	var status market.Status
	switch req.Status {
	case "Active":
		status = market.Active
	case "Paused":
		status = market.Paused
	case "Halted":
		status = market.Halted
	default:
		respondError(w, http.StatusBadRequest, "invalid status", req.Status)
		return
	}
	if err := s.registry.SetStatus(admin, id, status); err != nil {
		respondError(w, http.StatusForbidden, "status change rejected", err.Error())
		return
	}
	respondJSON(w, map[string]string{"status": req.Status})
}

func (s *Server) handleInitFunding(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req InitFundingRequest
	if !decode(w, r, &req) {
		return
	}
	admin, ok := parseAddr(w, req.Admin, "admin")
	if !ok {
		return
	}
	if err := s.engine.InitFundingState(admin, id); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "initialized"})
}

func (s *Server) handleFundPool(w http.ResponseWriter, r *http.Request) {
	var req FundPoolRequest
	if !decode(w, r, &req) {
		return
	}
	admin, ok := parseAddr(w, req.Admin, "admin")
	if !ok {
		return
	}
	if err := s.pool.Fund(admin, req.Vault, req.Amount); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "funded"})
}

func (s *Server) handleFaucetLimits(w http.ResponseWriter, r *http.Request) {
	var req FaucetLimitsRequest
	if !decode(w, r, &req) {
		return
	}
	admin, ok := parseAddr(w, req.Admin, "admin")
	if !ok {
		return
	}
	if err := s.faucet.SetLimits(admin, req.DefaultClaim, req.MaxClaim); err != nil {
		respondEngineError(w, err)
		return
	}
	respondJSON(w, map[string]string{"status": "updated"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helpers
// ==============================

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return false
	}
	return true
}

func parseAddr(w http.ResponseWriter, s, field string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		respondError(w, http.StatusBadRequest, "invalid address", field)
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func pathAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	return parseAddr(w, mux.Vars(r)["address"], "address")
}

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	var id uint64
	if _, err := fmt.Sscanf(mux.Vars(r)["id"], "%d", &id); err != nil {
		respondError(w, http.StatusBadRequest, "invalid id", err.Error())
		return 0, false
	}
	return id, true
}

func respondJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: error, Message: message})
}

// respondEngineError maps the engine's error taxonomy onto HTTP statuses so
// keepers can triage failures mechanically.
func respondEngineError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, clearing.ErrUnauthorized),
		errors.Is(err, clearing.ErrUnauthorizedExecutor):
		status = http.StatusForbidden
	case errors.Is(err, clearing.ErrAccountNotFound):
		status = http.StatusNotFound
	case errors.Is(err, clearing.ErrAccountExists),
		errors.Is(err, clearing.ErrVersionConflict):
		status = http.StatusConflict
	case errors.Is(err, clearing.ErrGlobalPaused),
		errors.Is(err, clearing.ErrMarketNotActive),
		errors.Is(err, clearing.ErrMarketHalted):
		status = http.StatusServiceUnavailable
	case errors.Is(err, clearing.ErrInsufficientCollateral),
		errors.Is(err, clearing.ErrMarginRequirement),
		errors.Is(err, clearing.ErrLeverageExceeded),
		errors.Is(err, clearing.ErrOICapExceeded),
		errors.Is(err, clearing.ErrSkewCapExceeded),
		errors.Is(err, clearing.ErrMaxNotionalExceeded),
		errors.Is(err, clearing.ErrNotLiquidatable):
		status = http.StatusUnprocessableEntity
	}
	respondError(w, status, err.Error(), "")
}
