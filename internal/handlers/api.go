// Package handlers exposes the single HTTP endpoint the transport client
// talks to. The logical operation travels in the "action" field rather
// than the HTTP verb, and the bearer token travels as a request parameter
// rather than a header, because the script-tag read fallback can set
// neither verbs nor headers.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/hangle/salonbook/internal/auth"
	"github.com/hangle/salonbook/internal/store"
	"github.com/hangle/salonbook/internal/timekey"
)

type API struct {
	Gate   *auth.Gate
	Ledger *store.Ledger
}

// callbackPattern limits JSONP callback names to plain identifiers.
// Reflecting anything else into an application/javascript body would let a
// caller inject script into the response.
var callbackPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_.]{0,63}$`)

func (h *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, "", http.StatusBadRequest, "bad_request")
		return
	}

	// Script-tag delivery is GET-only by nature.
	callback := ""
	if r.Method == http.MethodGet {
		if cb := r.Form.Get("callback"); callbackPattern.MatchString(cb) {
			callback = cb
		}
	}

	action := r.Form.Get("action")
	ctx := r.Context()

	// Liveness probe, exempt from the gate.
	if action == "health" {
		writeJSON(w, callback, http.StatusOK, map[string]any{"success": true, "status": "ok"})
		return
	}

	identity, err := h.Gate.Authenticate(ctx, r.Form.Get("token"))
	if err != nil {
		writeError(w, callback, http.StatusUnauthorized, "unauthenticated")
		return
	}
	if err := h.Gate.Authorize(ctx, identity); err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			writeError(w, callback, http.StatusForbidden, "forbidden")
			return
		}
		slog.Error("authorization check failed", "error", err)
		writeError(w, callback, http.StatusInternalServerError, "internal")
		return
	}

	switch action {
	case "orders":
		h.listOrders(w, r, callback, identity)
	case "stats":
		h.stats(w, r, callback, identity)
	case "create":
		h.createOrder(w, r, callback, identity)
	case "delete":
		h.deleteOrder(w, r, callback, identity)
	default:
		writeError(w, callback, http.StatusBadRequest, "unknown_action")
	}
}

// The "employee" parameter some older clients still send is ignored on
// purpose: rows are always scoped to the authenticated identity.
func (h *API) listOrders(w http.ResponseWriter, r *http.Request, callback, identity string) {
	limit, _ := strconv.Atoi(r.Form.Get("limit"))

	orders, err := h.Ledger.List(r.Context(), identity, r.Form.Get("date"), limit)
	switch {
	case errors.Is(err, store.ErrBadDate):
		writeError(w, callback, http.StatusBadRequest, "bad_request")
		return
	case err != nil:
		slog.Error("list orders failed", "identity", identity, "error", err)
		writeError(w, callback, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, callback, http.StatusOK, map[string]any{
		"success": true,
		"orders":  orders,
		"total":   len(orders),
	})
}

func (h *API) stats(w http.ResponseWriter, r *http.Request, callback, identity string) {
	st, err := h.Ledger.Stats(r.Context(), identity)
	if err != nil {
		slog.Error("stats failed", "identity", identity, "error", err)
		writeError(w, callback, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, callback, http.StatusOK, map[string]any{
		"success":      true,
		"todayCount":   st.TodayCount,
		"todayRevenue": st.TodayRevenue,
		"monthRevenue": st.MonthRevenue,
		"totalOrders":  st.TotalOrders,
	})
}

func (h *API) createOrder(w http.ResponseWriter, r *http.Request, callback, identity string) {
	category := r.Form.Get("category")
	if category == "" {
		// Older clients call it "service".
		category = r.Form.Get("service")
	}
	if category == "" {
		writeError(w, callback, http.StatusBadRequest, "missing_category")
		return
	}
	amount := timekey.ParseAmount(r.Form.Get("amount"))

	order, err := h.Ledger.Create(r.Context(), identity, category, amount, r.Form.Get("note"))
	if err != nil {
		slog.Error("create order failed", "identity", identity, "error", err)
		writeError(w, callback, http.StatusInternalServerError, "internal")
		return
	}
	writeJSON(w, callback, http.StatusOK, map[string]any{
		"success": true,
		"order":   order,
	})
}

func (h *API) deleteOrder(w http.ResponseWriter, r *http.Request, callback, identity string) {
	id := r.Form.Get("id")
	if id == "" {
		writeError(w, callback, http.StatusBadRequest, "missing_id")
		return
	}

	err := h.Ledger.Delete(r.Context(), id, identity)
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, callback, http.StatusNotFound, "not_found")
	case errors.Is(err, store.ErrForbidden):
		writeError(w, callback, http.StatusForbidden, "forbidden")
	case err != nil:
		slog.Error("delete order failed", "identity", identity, "error", err)
		writeError(w, callback, http.StatusInternalServerError, "internal")
	default:
		writeJSON(w, callback, http.StatusOK, map[string]any{"success": true})
	}
}

// writeJSON serialises v as JSON. With a callback name the payload is
// wrapped as callback(<json>) and served as application/javascript with
// status 200 regardless of the logical status. Script tags in most
// browsers refuse to run non-2xx bodies, and the JSON already carries the
// error field.
func writeJSON(w http.ResponseWriter, callback string, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		slog.Error("marshal response failed", "error", err)
		http.Error(w, `{"success":false,"error":"internal"}`, http.StatusInternalServerError)
		return
	}
	if callback != "" {
		w.Header().Set("Content-Type", "application/javascript; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(callback + "("))
		w.Write(body)
		w.Write([]byte(")"))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, callback string, status int, code string) {
	writeJSON(w, callback, status, map[string]any{"success": false, "error": code})
}
