// @title           Strategy Execution API
// @version         1.0
// @description     Read API over the execution engine state: strategies, instruments, trades and live positions

// @host      localhost:8080
// @BasePath  /api/v1

package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"main/internal/domain/entity/execution"
	"main/internal/domain/interfaces"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

const apiBasePath = "/api/v1"

var errMissingStrategy = errors.New("strategy_id is required")

// StateStore is the read side of the state mirror the gateway serves from.
type StateStore interface {
	Strategies(ctx context.Context) ([]execution.StrategyMeta, error)
	Order(ctx context.Context, slot execution.Slot) (*execution.PendingOrder, error)
	Position(ctx context.Context, slot execution.Slot) (*execution.Position, error)
	OrderSymbols(ctx context.Context, strategyID string) (map[string]struct{}, error)
	PositionSymbols(ctx context.Context, strategyID string) (map[string]struct{}, error)
	Candles(ctx context.Context, strategyID, symbol, timeframe string, limit int) ([]json.RawMessage, error)
	LastClose(ctx context.Context, strategyID, symbol, timeframe string) (float64, error)
}

type Handler struct {
	router *gin.Engine
	mirror StateStore
	ledger interfaces.TradeLedger
	hub    *Hub
}

func NewHandler(m StateStore, ledger interfaces.TradeLedger, hub *Hub) *Handler {
	router := gin.New()
	router.Use(gin.Recovery())

	h := &Handler{
		router: router,
		mirror: m,
		ledger: ledger,
		hub:    hub,
	}
	h.registerRoutes()
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	api := h.router.Group(apiBasePath)
	{
		api.GET("/strategies", h.listStrategies)
		api.GET("/instruments", h.listInstruments)

		strategies := api.Group("/strategies/:strategy_id")
		{
			strategies.GET("/trades", h.getTrades)
			strategies.GET("/state/:symbol", h.getState)
			strategies.GET("/candles/:symbol/:tf", h.getCandles)
		}
	}

	if h.hub != nil {
		h.router.GET("/ws/:strategy_id", h.hub.Serve)
	}
}

// listStrategies lists registered strategies
// @Summary      List strategies
// @Description  Registered strategy metadata from the state mirror
// @Tags         strategies
// @Produce      json
// @Success      200  {array}   execution.StrategyMeta
// @Failure      500  {object}  map[string]string
// @Router       /strategies [get]
func (h *Handler) listStrategies(c *gin.Context) {
	metas, err := h.mirror.Strategies(c.Request.Context())
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	if metas == nil {
		metas = []execution.StrategyMeta{}
	}
	c.JSON(http.StatusOK, metas)
}

type instrumentStrategy struct {
	StrategyID   string `json:"strategy_id"`
	StrategyName string `json:"strategy_name"`
	Status       string `json:"status"`
}

type instrumentView struct {
	Symbol     string               `json:"symbol"`
	LastPrice  float64              `json:"last_price"`
	Strategies []instrumentStrategy `json:"strategies"`
}

// listInstruments consolidates symbols across strategies
// @Summary      List instruments
// @Description  Symbols across all strategies with WAIT/PENDING/INTRADE status per strategy
// @Tags         strategies
// @Produce      json
// @Success      200  {array}   instrumentView
// @Failure      500  {object}  map[string]string
// @Router       /instruments [get]
func (h *Handler) listInstruments(c *gin.Context) {
	ctx := c.Request.Context()
	metas, err := h.mirror.Strategies(ctx)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}

	views := make(map[string]*instrumentView)
	var order []string
	for _, meta := range metas {
		orders, err := h.mirror.OrderSymbols(ctx, meta.StrategyID)
		if err != nil {
			writeError(c, http.StatusInternalServerError, err)
			return
		}
		positions, err := h.mirror.PositionSymbols(ctx, meta.StrategyID)
		if err != nil {
			writeError(c, http.StatusInternalServerError, err)
			return
		}

		for _, symbol := range meta.Symbols {
			view, ok := views[symbol]
			if !ok {
				lastPrice := 0.0
				if len(meta.Timeframes) > 0 {
					lastPrice, _ = h.mirror.LastClose(ctx, meta.StrategyID, symbol, meta.Timeframes[0])
				}
				view = &instrumentView{Symbol: symbol, LastPrice: lastPrice}
				views[symbol] = view
				order = append(order, symbol)
			}

			status := "WAIT"
			if _, ok := positions[symbol]; ok {
				status = "INTRADE"
			} else if _, ok := orders[symbol]; ok {
				status = "PENDING"
			}
			view.Strategies = append(view.Strategies, instrumentStrategy{
				StrategyID:   meta.StrategyID,
				StrategyName: meta.Name,
				Status:       status,
			})
		}
	}

	out := make([]instrumentView, 0, len(order))
	for _, symbol := range order {
		out = append(out, *views[symbol])
	}
	c.JSON(http.StatusOK, out)
}

// getTrades returns closed trades for a strategy
// @Summary      Get trades
// @Description  Closed trades from the durable ledger, optionally filtered by symbol
// @Tags         strategies
// @Produce      json
// @Param        strategy_id  path      string  true   "Strategy ID"
// @Param        symbol       query     string  false  "Symbol filter"
// @Success      200          {array}   execution.ClosedTrade
// @Failure      400          {object}  map[string]string
// @Failure      500          {object}  map[string]string
// @Router       /strategies/{strategy_id}/trades [get]
func (h *Handler) getTrades(c *gin.Context) {
	strategyID := c.Param("strategy_id")
	if strategyID == "" {
		writeError(c, http.StatusBadRequest, errMissingStrategy)
		return
	}
	trades, err := h.ledger.GetTrades(c.Request.Context(), strategyID, c.Query("symbol"))
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	if trades == nil {
		trades = []execution.ClosedTrade{}
	}
	c.JSON(http.StatusOK, trades)
}

type stateResponse struct {
	Position *execution.Position     `json:"position"`
	Order    *execution.PendingOrder `json:"order"`
}

// getState returns the live order/position for one slot
// @Summary      Get slot state
// @Description  Current pending order and open position for a symbol, absence is null
// @Tags         strategies
// @Produce      json
// @Param        strategy_id  path      string  true  "Strategy ID"
// @Param        symbol       path      string  true  "Symbol"
// @Success      200          {object}  stateResponse
// @Failure      500          {object}  map[string]string
// @Router       /strategies/{strategy_id}/state/{symbol} [get]
func (h *Handler) getState(c *gin.Context) {
	slot := execution.Slot{
		StrategyID: c.Param("strategy_id"),
		Symbol:     c.Param("symbol"),
	}
	ctx := c.Request.Context()

	position, err := h.mirror.Position(ctx, slot)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	order, err := h.mirror.Order(ctx, slot)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, stateResponse{Position: position, Order: order})
}

// getCandles returns recent candle history
// @Summary      Get candles
// @Description  Most recent candle history for a strategy slot and timeframe
// @Tags         strategies
// @Produce      json
// @Param        strategy_id  path      string  true   "Strategy ID"
// @Param        symbol       path      string  true   "Symbol"
// @Param        tf           path      string  true   "Timeframe"
// @Param        limit        query     int     false  "Max candles"  default(100)
// @Success      200          {array}   object
// @Failure      400          {object}  map[string]string
// @Failure      500          {object}  map[string]string
// @Router       /strategies/{strategy_id}/candles/{symbol}/{tf} [get]
func (h *Handler) getCandles(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(c, http.StatusBadRequest, errors.New("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	candles, err := h.mirror.Candles(c.Request.Context(), c.Param("strategy_id"), c.Param("symbol"), c.Param("tf"), limit)
	if err != nil {
		writeError(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusOK, candles)
}

func writeError(c *gin.Context, status int, err error) {
	if err == nil {
		status = http.StatusInternalServerError
		err = errors.New("unknown error")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
