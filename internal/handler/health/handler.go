package health

import (
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/mem"

	"github.com/fluxchat/backend/internal/service/registry"
	"github.com/fluxchat/backend/pkg/utils"
)

// Handler reports liveness plus a few operational numbers.
type Handler struct {
	registry *registry.Registry
	started  time.Time
}

func New(reg *registry.Registry) *Handler {
	return &Handler{registry: reg, started: time.Now()}
}

// RegisterRoutes mounts the health endpoint at the server root.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.handleHealth)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{
		"status":     "ok",
		"sessions":   h.registry.Count(),
		"uptimeSecs": int(time.Since(h.started).Seconds()),
		"goroutines": runtime.NumGoroutine(),
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		body["memoryUsedPercent"] = vm.UsedPercent
	}

	utils.RespondJSON(w, http.StatusOK, body)
}
