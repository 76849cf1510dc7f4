// internal/controller/notification_controller.go
package controller

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/unclebandit/courier-backend/internal/hub"
	"github.com/unclebandit/courier-backend/internal/model"
)

// NotificationController exposes small operator endpoints over the hub.
type NotificationController struct {
	Hub *hub.Hub
}

// TestNotification pushes a test_notification event to every connection of
// one tenant.
func (c *NotificationController) TestNotification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TenantID int    `json:"tenant_id"`
		Message  string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	c.Hub.Push(body.TenantID, model.NewEvent(model.EventTestNotification, map[string]any{
		"message": body.Message,
	}))

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"tenant_id":   body.TenantID,
		"connections": c.Hub.ConnectionCount(body.TenantID),
	})
}

// Stats reports the tenants with live connections and their counts.
func (c *NotificationController) Stats(w http.ResponseWriter, r *http.Request) {
	tenants := map[string]int{}
	for _, id := range c.Hub.ListTenants() {
		tenants[strconv.Itoa(id)] = c.Hub.ConnectionCount(id)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tenants": tenants})
}
