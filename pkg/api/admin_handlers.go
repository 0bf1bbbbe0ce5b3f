package api

import (
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/estateops/pkg/apperrors"
	"github.com/platinummonkey/estateops/pkg/automation"
	"github.com/platinummonkey/estateops/pkg/httputil"
	"github.com/platinummonkey/estateops/pkg/observability"
)

// AdminHandlers serves operator endpoints
type AdminHandlers struct {
	engine    *automation.Engine
	rulesPath string
}

// NewAdminHandlers creates admin handlers for the automation engine
func NewAdminHandlers(engine *automation.Engine, rulesPath string) *AdminHandlers {
	return &AdminHandlers{engine: engine, rulesPath: rulesPath}
}

// ReloadAutomation handles POST /v1/admin/automation/reload. Rule files
// are global, so only platform admins and owners reach this route.
func (h *AdminHandlers) ReloadAutomation(w http.ResponseWriter, r *http.Request) {
	log := observability.FromContext(r.Context())
	if err := h.engine.Reload(h.rulesPath); err != nil {
		log.WithError(err).Error("Automation rule reload failed")
		httputil.WriteAppError(w, apperrors.Wrap(err, apperrors.KindValidation, apperrors.CodeValidation,
			"automation rules are invalid; previous rules remain active"))
		return
	}

	count := h.engine.RuleCount()
	log.WithFields(logrus.Fields{"rules": count, "path": h.rulesPath}).Info("Automation rules reloaded")
	_ = httputil.WriteSuccess(w, map[string]int{"rules": count})
}
