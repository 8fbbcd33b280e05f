package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/John-Robertt/surge-balancer/internal/admin"
)

// methodRequest is the envelope shared by the admin endpoints; the payload
// field is decoded once the method is known.
type methodRequest struct {
	Method        string          `json:"method"`
	Users         json.RawMessage `json:"users"`
	Subscriptions json.RawMessage `json:"subscriptions"`
	Template      *string         `json:"template"`
	SEAPIToken    *string         `json:"seApiToken"`
}

func decodePayload(raw json.RawMessage, field string, dst any, required bool) error {
	if len(raw) == 0 || string(raw) == "null" {
		if required {
			return requestError(field+" required", nil)
		}
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return requestError(fmt.Sprintf("%s: %v", field, err), err)
	}
	return nil
}

func (h *handler) handleUser(w http.ResponseWriter, r *http.Request) {
	var req methodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	ctx := r.Context()

	switch req.Method {
	case "syncUsers":
		res, err := h.opt.Admin.SyncUsers(ctx)
		if err != nil {
			writeErrorFromErr(w, err)
			return
		}
		WriteSuccess(w, res.Message(), res)

	case "editUsers":
		var edits admin.UserEdits
		if err := decodePayload(req.Users, "users", &edits, true); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		if err := h.opt.Admin.EditUsers(ctx, edits); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		WriteSuccess(w, "", nil)

	case "enableAll", "disableAll":
		if err := h.opt.Admin.SetAllUsersEnabled(ctx, req.Method == "enableAll"); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		WriteSuccess(w, "", nil)

	default:
		writeErrorFromErr(w, errInvalidMethod)
	}
}

func (h *handler) handleSubscription(w http.ResponseWriter, r *http.Request) {
	var req methodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	ctx := r.Context()

	switch req.Method {
	case "editSubscriptions":
		var edits admin.SubscriptionEdits
		if err := decodePayload(req.Subscriptions, "subscriptions", &edits, true); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		if err := h.opt.Admin.EditSubscriptions(ctx, edits); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		WriteSuccess(w, "", nil)

	case "checkSubscriptions":
		var names []string
		if err := decodePayload(req.Subscriptions, "subscriptions", &names, false); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		results, err := h.opt.Admin.CheckSubscriptions(ctx, names)
		if err != nil {
			writeErrorFromErr(w, err)
			return
		}
		WriteSuccess(w, fmt.Sprintf("Checked %d subscriptions", len(results)), results)

	case "enableAll", "disableAll":
		if err := h.opt.Admin.SetAllSubscriptionsEnabled(ctx, req.Method == "enableAll"); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		WriteSuccess(w, "", nil)

	default:
		writeErrorFromErr(w, errInvalidMethod)
	}
}

func (h *handler) handleSetting(w http.ResponseWriter, r *http.Request) {
	var req methodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErrorFromErr(w, err)
		return
	}
	ctx := r.Context()

	switch req.Method {
	case "editTemplate":
		if req.Template == nil {
			writeErrorFromErr(w, requestError("template required", nil))
			return
		}
		if err := h.opt.Admin.EditTemplate(ctx, *req.Template); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		WriteSuccess(w, "", nil)

	case "editSEApiToken":
		if req.SEAPIToken == nil {
			writeErrorFromErr(w, requestError("seApiToken required", nil))
			return
		}
		if err := h.opt.Admin.EditSEAPIToken(ctx, *req.SEAPIToken); err != nil {
			writeErrorFromErr(w, err)
			return
		}
		WriteSuccess(w, "", nil)

	default:
		writeErrorFromErr(w, errInvalidMethod)
	}
}
