// -----------------------------------------------------------------------
// Webhook Handler - notification webhook URL configuration and test
// -----------------------------------------------------------------------

package handlers

import (
	"net/http"
	"net/url"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/venator/internal/common"
	"github.com/ternarybob/venator/internal/services/notify"
)

type WebhookHandler struct {
	notifier *notify.Service
	logger   arbor.ILogger
}

func NewWebhookHandler(notifier *notify.Service) *WebhookHandler {
	return &WebhookHandler{
		notifier: notifier,
		logger:   common.GetLogger(),
	}
}

// ConfigHandler reads or replaces the webhook URL.
// GET/PUT /api/webhook
func (h *WebhookHandler) ConfigHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case "GET":
		h.get(w, r)
	case "PUT", "POST":
		h.set(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *WebhookHandler) get(w http.ResponseWriter, r *http.Request) {
	webhookURL, err := h.notifier.WebhookURL(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Msg("Failed to read webhook URL")
		WriteError(w, http.StatusInternalServerError, "Failed to read webhook URL")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"url":        webhookURL,
		"configured": webhookURL != "",
	})
}

func (h *WebhookHandler) set(w http.ResponseWriter, r *http.Request) {
	var req struct {
		URL string `json:"url"`
	}
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if req.URL != "" {
		parsed, err := url.Parse(req.URL)
		if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
			WriteError(w, http.StatusBadRequest, "Webhook URL must be http or https")
			return
		}
	}

	if err := h.notifier.SetWebhookURL(r.Context(), req.URL); err != nil {
		h.logger.Error().Err(err).Msg("Failed to save webhook URL")
		WriteError(w, http.StatusInternalServerError, "Failed to save webhook URL")
		return
	}

	if req.URL == "" {
		WriteSuccess(w, "Webhook URL cleared")
		return
	}
	WriteSuccess(w, "Webhook URL saved")
}

// TestHandler sends a test notification to the configured webhook.
// POST /api/webhook/test
func (h *WebhookHandler) TestHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "POST") {
		return
	}

	if err := h.notifier.Test(r.Context()); err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	WriteSuccess(w, "Test notification sent")
}
