// Package api exposes the supervisor's operations over HTTP. It is thin
// request/response plumbing: all semantics live in the snapshot, corrector,
// and verifier packages.
package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rollguard/pkg/corrector"
	"rollguard/pkg/model"
	"rollguard/pkg/retry"
	"rollguard/pkg/snapshot"
	"rollguard/pkg/store"
	"rollguard/pkg/verifier"
	"rollguard/pkg/version"
)

// Handlers bundles the components the API fronts.
type Handlers struct {
	Store     store.Store
	Snapshots *snapshot.Manager
	Corrector *corrector.Corrector
	Verifier  *verifier.Verifier
	Retrier   *retry.Executor
	Hub       *WSHub
}

// Register wires the HTTP handlers on the provided mux.
func (h *Handlers) Register(mux *http.ServeMux, auth func(r *http.Request) bool) {
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("rollguard supervisor " + version.Build))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/api/v1/snapshots", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			items, err := h.Snapshots.List(limitParam(r, 50))
			if err != nil {
				http.Error(w, "failed to list snapshots", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
		case http.MethodPost:
			var req struct {
				Category    string `json:"category"`
				Description string `json:"description"`
				Notes       string `json:"notes"`
				MarkGolden  bool   `json:"markGolden"`
				RequestedBy string `json:"requestedBy"`
			}
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			if req.Category == "" {
				req.Category = model.CategoryManual
			}
			if !validCategory(req.Category) {
				http.Error(w, "unknown category", http.StatusBadRequest)
				return
			}
			snap, err := h.Snapshots.Create(r.Context(), req.Category, snapshot.CreateOptions{
				Description: req.Description,
				Notes:       req.Notes,
				MarkGolden:  req.MarkGolden,
			})
			if err != nil {
				log.Printf("snapshot create failed: %v", err)
				http.Error(w, "snapshot creation failed", http.StatusInternalServerError)
				return
			}
			h.audit(actor(req.RequestedBy), "snapshot_create", itoa(snap.ID), req.Description)
			h.broadcast("snapshot_created", snap)
			writeJSON(w, http.StatusOK, snap)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/snapshots/restore", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID          uint   `json:"id"`
			Detail      string `json:"detail"`
			RequestedBy string `json:"requestedBy"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		err := h.Snapshots.Restore(r.Context(), req.ID, model.ReasonManual, req.Detail, actor(req.RequestedBy))
		h.audit(actor(req.RequestedBy), "snapshot_restore", itoa(req.ID), req.Detail)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "snapshot not found", http.StatusNotFound)
				return
			}
			log.Printf("restore of snapshot %d failed: %v", req.ID, err)
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": err.Error()})
			return
		}
		h.broadcast("restore_result", map[string]interface{}{"id": req.ID, "success": true})
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})

	mux.HandleFunc("/api/v1/snapshots/golden", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			ID          uint   `json:"id"`
			RequestedBy string `json:"requestedBy"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ID == 0 {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if err := h.Snapshots.MarkGolden(req.ID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				http.Error(w, "snapshot not found", http.StatusNotFound)
				return
			}
			http.Error(w, "failed to mark golden", http.StatusInternalServerError)
			return
		}
		h.audit(actor(req.RequestedBy), "mark_golden", itoa(req.ID), "")
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})

	mux.HandleFunc("/api/v1/snapshots/golden/restore", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var req struct {
			Detail      string `json:"detail"`
			RequestedBy string `json:"requestedBy"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		err := h.Snapshots.RestoreGolden(r.Context(), actor(req.RequestedBy), req.Detail)
		h.audit(actor(req.RequestedBy), "restore_golden", "", req.Detail)
		if err != nil {
			if errors.Is(err, snapshot.ErrNoGolden) {
				http.Error(w, "no golden snapshot configured", http.StatusConflict)
				return
			}
			log.Printf("golden restore failed: %v", err)
			writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
	})

	mux.HandleFunc("/api/v1/problems", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		var report model.ProblemReport
		if err := json.NewDecoder(r.Body).Decode(&report); err != nil || report.Type == "" {
			http.Error(w, "invalid payload", http.StatusBadRequest)
			return
		}
		if report.Severity == "" {
			report.Severity = model.SeverityMedium
		}
		result := h.Corrector.ReportProblem(r.Context(), report)
		h.audit("corrector", "problem_report", report.Type, result.Message)
		h.broadcast("correction_result", result)
		writeJSON(w, http.StatusOK, result)
	})

	mux.HandleFunc("/api/v1/verify/run", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		run := h.Verifier.RunNow(r.Context())
		h.audit("verifier", "verify_run", "", run.Status)
		h.broadcast("verification_result", run)
		writeJSON(w, http.StatusOK, run)
	})

	mux.HandleFunc("/api/v1/verifier/config", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			cfg, err := h.Store.GetVerifierConfig()
			if err != nil {
				http.Error(w, "failed to load config", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, cfg)
		case http.MethodPut:
			var cfg model.VerifierConfig
			if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			if err := h.Store.SaveVerifierConfig(cfg); err != nil {
				http.Error(w, "failed to save config", http.StatusInternalServerError)
				return
			}
			if err := h.Verifier.Restart(); err != nil {
				log.Printf("verifier reschedule failed: %v", err)
			}
			h.audit("operator", "verifier_config_update", "", cfg.Schedule)
			writeJSON(w, http.StatusOK, cfg)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/policy/config", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		switch r.Method {
		case http.MethodGet:
			policy, err := h.Store.GetSnapshotPolicy()
			if err != nil {
				http.Error(w, "failed to load policy", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, policy)
		case http.MethodPut:
			var policy model.SnapshotPolicy
			if err := json.NewDecoder(r.Body).Decode(&policy); err != nil || policy.MaxRetained <= 0 {
				http.Error(w, "invalid payload", http.StatusBadRequest)
				return
			}
			if err := h.Store.SaveSnapshotPolicy(policy); err != nil {
				http.Error(w, "failed to save policy", http.StatusInternalServerError)
				return
			}
			h.audit("operator", "policy_update", "", "")
			writeJSON(w, http.StatusOK, policy)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/api/v1/restores", h.listHandler(auth, func(limit int) (interface{}, error) {
		return h.Store.ListRestores(limit)
	}))
	mux.HandleFunc("/api/v1/corrections", h.listHandler(auth, func(limit int) (interface{}, error) {
		return h.Store.ListCorrections(limit)
	}))
	mux.HandleFunc("/api/v1/runs", h.listHandler(auth, func(limit int) (interface{}, error) {
		return h.Store.ListRuns(limit)
	}))
	mux.HandleFunc("/api/v1/audit", h.listHandler(auth, func(limit int) (interface{}, error) {
		return h.Store.ListAudit(limit)
	}))

	mux.HandleFunc("/api/v1/retry/stats", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		name := r.URL.Query().Get("name")
		if name == "" {
			http.Error(w, "name required", http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, h.Retrier.GetStats(name))
	})

	if h.Hub != nil {
		mux.HandleFunc("/api/v1/events/ws", func(w http.ResponseWriter, r *http.Request) {
			if !auth(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			h.Hub.HandleSubscriber(w, r)
		})
	}
}

func (h *Handlers) listHandler(auth func(r *http.Request) bool, list func(limit int) (interface{}, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		items, err := list(limitParam(r, 50))
		if err != nil {
			http.Error(w, "failed to list", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"items": items})
	}
}

func (h *Handlers) audit(actor, action, target, detail string) {
	err := h.Store.AppendAudit(model.AuditEntry{
		Actor:     actor,
		Action:    action,
		Target:    target,
		Detail:    detail,
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("audit append failed: %v", err)
	}
}

func (h *Handlers) broadcast(msgType string, payload interface{}) {
	if h.Hub != nil {
		h.Hub.Broadcast(WSMessage{Type: msgType, Payload: payload})
	}
}

func actor(requestedBy string) string {
	if requestedBy == "" {
		return "operator"
	}
	return requestedBy
}

func validCategory(c string) bool {
	switch c {
	case model.CategoryScheduled, model.CategoryManual, model.CategoryPreChange, model.CategorySystem:
		return true
	}
	return false
}

func limitParam(r *http.Request, def int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func itoa(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}

// AuthFunc builds the request authorizer used by all routes. An empty token
// disables the shared-token check.
func AuthFunc(token string) func(r *http.Request) bool {
	if token == "" {
		return func(_ *http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		h := r.Header.Get("X-Auth-Token")
		if h == "" {
			// also allow simple Bearer token
			authz := r.Header.Get("Authorization")
			if strings.HasPrefix(authz, "Bearer ") {
				h = strings.TrimPrefix(authz, "Bearer ")
			}
		}
		return h == token
	}
}
