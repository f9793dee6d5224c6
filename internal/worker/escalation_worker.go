package worker

import (
	"github.com/spec-kit/support-engine/internal/service"
)

// StartEscalationWorker registers escalation handlers.
func StartEscalationWorker(escalationService *service.EscalationService) {
	if escalationService == nil {
		return
	}
	escalationService.RegisterHandlers()
}
