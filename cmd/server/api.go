package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"nft-escrow-market/internal/events"
	"nft-escrow-market/internal/market"
	"nft-escrow-market/internal/observability"
	"nft-escrow-market/internal/pubkey"
	"nft-escrow-market/internal/solana"
	"nft-escrow-market/internal/storage"
)

const rpcStatusTimeout = 2 * time.Second

// API serves read endpoints over the marketplace state and the live feed.
type API struct {
	engine  *market.Engine
	sales   storage.SaleStore
	volumes storage.VolumeStore
	feed    http.Handler
	hub     *events.Hub
	rpc     solana.RPCClient
	store   string
	started time.Time
	logger  *zap.Logger
}

// Router returns the HTTP routes.
func (a *API) Router() *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	// Prometheus metrics
	r.Handle("/metrics", observability.Handler())

	r.HandleFunc("/status", a.handleStatus).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/registries", a.handleRegistries).Methods(http.MethodGet)
	v1.HandleFunc("/registries/{name}", a.handleRegistry).Methods(http.MethodGet)
	v1.HandleFunc("/registries/{name}/listings", a.handleListings).Methods(http.MethodGet)
	v1.HandleFunc("/registries/{name}/sales", a.handleRegistrySales).Methods(http.MethodGet)
	v1.HandleFunc("/registries/{name}/volume", a.handleVolume).Methods(http.MethodGet)
	v1.HandleFunc("/listings/{registry}/{asset}", a.handleListing).Methods(http.MethodGet)
	v1.HandleFunc("/assets/{asset}/sales", a.handleAssetSales).Methods(http.MethodGet)
	v1.Handle("/feed", a.feed)

	return r
}

// StatusResponse is the JSON response for /status endpoint.
type StatusResponse struct {
	Status          string    `json:"status"`
	Uptime          string    `json:"uptime"`
	Started         time.Time `json:"started"`
	Store           string    `json:"store"`
	FeedSubscribers int       `json:"feed_subscribers"`
	RPCSlot         int64     `json:"rpc_slot,omitempty"`
	RPCError        string    `json:"rpc_error,omitempty"`
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:          "running",
		Uptime:          time.Since(a.started).Round(time.Second).String(),
		Started:         a.started,
		Store:           a.store,
		FeedSubscribers: a.hub.Len(),
	}
	if a.rpc != nil {
		ctx, cancel := context.WithTimeout(r.Context(), rpcStatusTimeout)
		defer cancel()
		slot, err := a.rpc.GetSlot(ctx)
		if err != nil {
			a.logger.Warn("rpc status check failed", zap.Error(err))
			resp.Status = "degraded"
			resp.RPCError = err.Error()
		} else {
			resp.RPCSlot = slot
		}
	}
	a.writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRegistries(w http.ResponseWriter, r *http.Request) {
	regs, err := a.engine.Registries(r.Context())
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, regs)
}

func (a *API) handleRegistry(w http.ResponseWriter, r *http.Request) {
	reg, err := a.engine.RegistryByName(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, reg)
}

func (a *API) handleListings(w http.ResponseWriter, r *http.Request) {
	reg, err := a.engine.RegistryByName(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	listings, err := a.engine.Listings(r.Context(), reg.Address)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, listings)
}

func (a *API) handleRegistrySales(w http.ResponseWriter, r *http.Request) {
	reg, err := a.engine.RegistryByName(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	sales, err := a.sales.GetByRegistry(r.Context(), reg.Address)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sales)
}

// defaultVolumeWindow is the range reported when ?from is omitted.
const defaultVolumeWindow = 30 * 24 * time.Hour

func (a *API) handleVolume(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	to, err := queryMillis(r, "to", now.UnixMilli())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	from, err := queryMillis(r, "from", now.Add(-defaultVolumeWindow).UnixMilli())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if from > to {
		http.Error(w, "from is after to", http.StatusBadRequest)
		return
	}

	reg, err := a.engine.RegistryByName(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		a.writeError(w, err)
		return
	}
	volumes, err := a.volumes.GetDailyVolume(r.Context(), reg.Address, from, to)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, volumes)
}

// queryMillis reads a unix millisecond query parameter.
func queryMillis(r *http.Request, key string, def int64) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms < 0 {
		return 0, fmt.Errorf("invalid %s", key)
	}
	return ms, nil
}

func (a *API) handleListing(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	registry, err := pubkey.Parse(vars["registry"])
	if err != nil {
		http.Error(w, "invalid registry address", http.StatusBadRequest)
		return
	}
	asset, err := pubkey.Parse(vars["asset"])
	if err != nil {
		http.Error(w, "invalid asset address", http.StatusBadRequest)
		return
	}

	listing, err := a.engine.Listing(r.Context(), registry, asset)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, listing)
}

func (a *API) handleAssetSales(w http.ResponseWriter, r *http.Request) {
	asset, err := pubkey.Parse(mux.Vars(r)["asset"])
	if err != nil {
		http.Error(w, "invalid asset address", http.StatusBadRequest)
		return
	}
	sales, err := a.sales.GetByAsset(r.Context(), asset)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, sales)
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (a *API) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.Error("request failed", zap.Error(err))
	}
	a.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: market.KindOf(err).String()})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Debug("write response", zap.Error(err))
	}
}

// statusFor maps an engine error to an HTTP status.
func statusFor(err error) int {
	if errors.Is(err, market.ErrRegistryNotFound) ||
		errors.Is(err, market.ErrListingNotFound) ||
		errors.Is(err, storage.ErrNotFound) {
		return http.StatusNotFound
	}
	switch market.KindOf(err) {
	case market.KindValidation, market.KindArithmetic:
		return http.StatusBadRequest
	case market.KindAuthorization:
		return http.StatusForbidden
	case market.KindState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
