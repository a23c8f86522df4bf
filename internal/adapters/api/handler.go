package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/poyrazK/cloudFleet/internal/core/domain"
	"github.com/poyrazK/cloudFleet/internal/core/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// APIHandler handles HTTP requests for fleet and access management.
type APIHandler struct {
	dispatch ports.DispatchService
	registry ports.RegistryService
	keyring  ports.KeyringService
	settings ports.SettingsService
	repo     ports.FleetRepository
}

// NewAPIHandler creates and returns a new APIHandler instance.
func NewAPIHandler(dispatch ports.DispatchService, registry ports.RegistryService, keyring ports.KeyringService, settings ports.SettingsService, repo ports.FleetRepository) *APIHandler {
	return &APIHandler{dispatch: dispatch, registry: registry, keyring: keyring, settings: settings, repo: repo}
}

// RegisterRoutes registers the API routes with the provided ServeMux.
func (h *APIHandler) RegisterRoutes(mux *http.ServeMux) {
	// Public Routes
	mux.HandleFunc("GET /health", h.HealthCheck)
	mux.HandleFunc("GET /metrics", h.Metrics)

	// Middleware
	auth := AuthMiddleware(h.repo)
	admin := RequireRole(domain.RoleAdmin)

	// Dispatch (any authenticated role; the entitlement engine decides)
	mux.Handle("POST /jobs", auth(http.HandlerFunc(h.DispatchJob)))
	mux.Handle("GET /jobs", auth(http.HandlerFunc(h.ListActiveJobs)))
	mux.Handle("POST /keys/redeem", auth(http.HandlerFunc(h.RedeemKey)))

	// Fleet registry
	mux.Handle("GET /nodes", auth(admin(http.HandlerFunc(h.ListNodes))))
	mux.Handle("POST /nodes", auth(admin(http.HandlerFunc(h.AddNode))))
	mux.Handle("DELETE /nodes/{address}", auth(admin(http.HandlerFunc(h.RemoveNode))))

	// Key and grant lifecycle
	mux.Handle("POST /keys", auth(admin(http.HandlerFunc(h.IssueKey))))
	mux.Handle("GET /keys", auth(admin(http.HandlerFunc(h.ListKeys))))
	mux.Handle("GET /grants", auth(admin(http.HandlerFunc(h.ListGrants))))
	mux.Handle("POST /grants/{principal_id}/approve", auth(admin(http.HandlerFunc(h.ApproveManually))))
	mux.Handle("PUT /grants/{principal_id}/vip", auth(admin(http.HandlerFunc(h.SetVIP))))
	mux.Handle("DELETE /grants/{principal_id}", auth(admin(http.HandlerFunc(h.RevokeGrant))))

	// Resellers
	mux.Handle("GET /resellers", auth(admin(http.HandlerFunc(h.ListResellers))))
	mux.Handle("POST /resellers", auth(admin(http.HandlerFunc(h.AddReseller))))
	mux.Handle("DELETE /resellers/{principal_id}", auth(admin(http.HandlerFunc(h.RemoveReseller))))
	mux.Handle("POST /resellers/{principal_id}/balance", auth(admin(http.HandlerFunc(h.AdjustBalance))))

	// Runtime settings
	mux.Handle("GET /settings", auth(admin(http.HandlerFunc(h.GetSettings))))
	mux.Handle("PUT /settings", auth(admin(http.HandlerFunc(h.UpdateSettings))))

	// Audit trail
	mux.Handle("GET /audit-logs/{principal_id}", auth(admin(http.HandlerFunc(h.ListAuditLogs))))
}

// writeError maps domain sentinels to HTTP status codes so callers get the
// same taxonomy regardless of which operation failed.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrKeyInvalid), errors.Is(err, domain.ErrInvalidGrant):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateNode), errors.Is(err, domain.ErrKeyAlreadyRedeemed), errors.Is(err, domain.ErrInsufficientBalance):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrCooldownActive), errors.Is(err, domain.ErrTooManyConcurrentJobs):
		status = http.StatusTooManyRequests
	case errors.Is(err, domain.ErrNoCapacity):
		status = http.StatusServiceUnavailable
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func principalFrom(r *http.Request) (int64, bool) {
	id, ok := r.Context().Value(CtxPrincipalID).(int64)
	return id, ok
}

func pathPrincipalID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("principal_id"), 10, 64)
}

// Metrics handles Prometheus metrics scraping requests.
func (h *APIHandler) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

// HealthCheck handles health check requests.
func (h *APIHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := "UP"
	details := make(map[string]string)

	if err := h.repo.Ping(r.Context()); err != nil {
		status = "DEGRADED"
		details["database"] = err.Error()
	} else {
		details["database"] = "OK"
	}

	resp := map[string]interface{}{
		"status":  status,
		"details": details,
	}

	w.Header().Set("Content-Type", "application/json")
	if status == "DEGRADED" {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("failed to encode health check response: %v", err)
	}
}

// --- Dispatch ---

func (h *APIHandler) DispatchJob(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalFrom(r)
	if !ok {
		log.Printf("DispatchJob: missing principal in context")
		http.Error(w, "Unauthorized: missing principal context", http.StatusUnauthorized)
		return
	}

	var body struct {
		Target          string `json:"target"`
		Port            int    `json:"port"`
		DurationSeconds int    `json:"duration_seconds"`
		ChannelID       int64  `json:"channel_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	req := &domain.JobRequest{
		Target:          body.Target,
		Port:            body.Port,
		DurationSeconds: body.DurationSeconds,
		Principal:       principalID,
		Origin:          domain.Origin{ChannelID: body.ChannelID},
	}

	result, err := h.dispatch.Dispatch(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) ListActiveJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.dispatch.ActiveJobs())
}

// --- Fleet registry ---

func (h *APIHandler) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.registry.ListNodes(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (h *APIHandler) AddNode(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized: missing principal context", http.StatusUnauthorized)
		return
	}

	var body struct {
		Address  string `json:"address"`
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	node, err := h.registry.AddNode(r.Context(), body.Address, body.Username, body.Password, principalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (h *APIHandler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized: missing principal context", http.StatusUnauthorized)
		return
	}

	if err := h.registry.RemoveNode(r.Context(), r.PathValue("address"), principalID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Keys and grants ---

func (h *APIHandler) IssueKey(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized: missing principal context", http.StatusUnauthorized)
		return
	}

	var body struct {
		TierClass          string `json:"tier_class"`
		DurationUnits      int    `json:"duration_units"`
		VIP                bool   `json:"vip"`
		MaxSecondsOverride *int   `json:"max_seconds_override,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	code, key, err := h.keyring.IssueKey(r.Context(), domain.TierClass(body.TierClass), body.DurationUnits, principalID, body.VIP, body.MaxSecondsOverride)
	if err != nil {
		writeError(w, err)
		return
	}
	// The raw code is shown exactly once; only its hash is stored.
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"code": code,
		"key":  key,
	})
}

func (h *APIHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := h.keyring.ListKeys(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *APIHandler) RedeemKey(w http.ResponseWriter, r *http.Request) {
	principalID, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized: missing principal context", http.StatusUnauthorized)
		return
	}

	var body struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	grant, err := h.keyring.RedeemKey(r.Context(), body.Code, principalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grant)
}

func (h *APIHandler) ListGrants(w http.ResponseWriter, r *http.Request) {
	grants, err := h.keyring.ListGrants(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, grants)
}

func (h *APIHandler) ApproveManually(w http.ResponseWriter, r *http.Request) {
	approvedBy, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized: missing principal context", http.StatusUnauthorized)
		return
	}
	principalID, err := pathPrincipalID(r)
	if err != nil {
		http.Error(w, "invalid principal id", http.StatusBadRequest)
		return
	}

	grant, err := h.keyring.ApproveManually(r.Context(), principalID, approvedBy)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, grant)
}

func (h *APIHandler) SetVIP(w http.ResponseWriter, r *http.Request) {
	changedBy, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized: missing principal context", http.StatusUnauthorized)
		return
	}
	principalID, err := pathPrincipalID(r)
	if err != nil {
		http.Error(w, "invalid principal id", http.StatusBadRequest)
		return
	}

	var body struct {
		VIP bool `json:"vip"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.keyring.SetVIP(r.Context(), principalID, body.VIP, changedBy); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) RevokeGrant(w http.ResponseWriter, r *http.Request) {
	revokedBy, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized: missing principal context", http.StatusUnauthorized)
		return
	}
	principalID, err := pathPrincipalID(r)
	if err != nil {
		http.Error(w, "invalid principal id", http.StatusBadRequest)
		return
	}

	if err := h.keyring.RevokeGrant(r.Context(), principalID, revokedBy); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// --- Resellers ---

func (h *APIHandler) ListResellers(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.repo.ListResellers(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (h *APIHandler) AddReseller(w http.ResponseWriter, r *http.Request) {
	addedBy, ok := principalFrom(r)
	if !ok {
		http.Error(w, "Unauthorized: missing principal context", http.StatusUnauthorized)
		return
	}

	var body struct {
		PrincipalID int64   `json:"principal_id"`
		Balance     float64 `json:"balance"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if body.Balance < 0 {
		http.Error(w, "balance cannot be negative", http.StatusBadRequest)
		return
	}

	account := &domain.ResellerAccount{
		PrincipalID: body.PrincipalID,
		Balance:     body.Balance,
		AddedBy:     addedBy,
		AddedAt:     time.Now(),
	}
	if err := h.repo.AddReseller(r.Context(), account); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, account)
}

func (h *APIHandler) RemoveReseller(w http.ResponseWriter, r *http.Request) {
	principalID, err := pathPrincipalID(r)
	if err != nil {
		http.Error(w, "invalid principal id", http.StatusBadRequest)
		return
	}
	if err := h.repo.RemoveReseller(r.Context(), principalID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) AdjustBalance(w http.ResponseWriter, r *http.Request) {
	principalID, err := pathPrincipalID(r)
	if err != nil {
		http.Error(w, "invalid principal id", http.StatusBadRequest)
		return
	}

	var body struct {
		Delta float64 `json:"delta"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.repo.AdjustResellerBalance(r.Context(), principalID, body.Delta); err != nil {
		writeError(w, err)
		return
	}

	account, err := h.repo.GetReseller(r.Context(), principalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// --- Settings ---

func (h *APIHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Get())
}

// UpdateSettings applies a partial update; absent fields keep their current
// values. Each setter validates and persists independently.
func (h *APIHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CapacityPerNode   *int     `json:"capacity_per_node,omitempty"`
		MaxConcurrentJobs *int     `json:"max_concurrent_jobs,omitempty"`
		RegularMaxSeconds *int     `json:"regular_max_seconds,omitempty"`
		VIPMaxSeconds     *int     `json:"vip_max_seconds,omitempty"`
		AdminMaxSeconds   *int     `json:"admin_max_seconds,omitempty"`
		PublicMaxSeconds  *int     `json:"public_max_seconds,omitempty"`
		CooldownSeconds   *int     `json:"cooldown_seconds,omitempty"`
		DispatcherEnabled *bool    `json:"dispatcher_enabled,omitempty"`
		BlockedPorts      *[]int   `json:"blocked_ports,omitempty"`
		AllowedChannels   *[]int64 `json:"allowed_channels,omitempty"`
		PublicChannels    *[]int64 `json:"public_channels,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if body.CapacityPerNode != nil {
		if err := h.settings.SetCapacityPerNode(ctx, *body.CapacityPerNode); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.MaxConcurrentJobs != nil {
		if err := h.settings.SetMaxConcurrentJobs(ctx, *body.MaxConcurrentJobs); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.RegularMaxSeconds != nil || body.VIPMaxSeconds != nil || body.AdminMaxSeconds != nil || body.PublicMaxSeconds != nil {
		cfg := h.settings.Get()
		regular, vip, admin, public := cfg.RegularMaxSeconds, cfg.VIPMaxSeconds, cfg.AdminMaxSeconds, cfg.PublicMaxSeconds
		if body.RegularMaxSeconds != nil {
			regular = *body.RegularMaxSeconds
		}
		if body.VIPMaxSeconds != nil {
			vip = *body.VIPMaxSeconds
		}
		if body.AdminMaxSeconds != nil {
			admin = *body.AdminMaxSeconds
		}
		if body.PublicMaxSeconds != nil {
			public = *body.PublicMaxSeconds
		}
		if err := h.settings.SetCeilings(ctx, regular, vip, admin, public); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.CooldownSeconds != nil {
		if err := h.settings.SetCooldownSeconds(ctx, *body.CooldownSeconds); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.DispatcherEnabled != nil {
		if err := h.settings.SetDispatcherEnabled(ctx, *body.DispatcherEnabled); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.BlockedPorts != nil {
		if err := h.settings.SetBlockedPorts(ctx, *body.BlockedPorts); err != nil {
			writeError(w, err)
			return
		}
	}
	if body.AllowedChannels != nil || body.PublicChannels != nil {
		cfg := h.settings.Get()
		allowed, public := cfg.AllowedChannels, cfg.PublicChannels
		if body.AllowedChannels != nil {
			allowed = *body.AllowedChannels
		}
		if body.PublicChannels != nil {
			public = *body.PublicChannels
		}
		if err := h.settings.SetChannels(ctx, allowed, public); err != nil {
			writeError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, h.settings.Get())
}

// --- Audit trail ---

func (h *APIHandler) ListAuditLogs(w http.ResponseWriter, r *http.Request) {
	principalID, err := pathPrincipalID(r)
	if err != nil {
		http.Error(w, "invalid principal id", http.StatusBadRequest)
		return
	}

	logs, err := h.repo.GetAuditLogs(r.Context(), principalID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
