package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"FlowScan/internal/domain/models"
	domrepo "FlowScan/internal/domain/repository"
	pkgkafka "FlowScan/pkg/kafka"
)

// AlertAuditHandler consumes the alert topic and replays every dispatched
// alert into the audit store, so the bus is the source of truth for what
// actually went out.
type AlertAuditHandler struct {
	topic   string
	store   domrepo.AlertAuditStore
	metrics domrepo.Metrics
}

func NewAlertAuditHandler(topic string, store domrepo.AlertAuditStore, metrics domrepo.Metrics) *AlertAuditHandler {
	return &AlertAuditHandler{topic: topic, store: store, metrics: metrics}
}

func (h *AlertAuditHandler) Topic() string { return h.topic }

func (h *AlertAuditHandler) Handle(ctx context.Context, b []byte) error {
	var m models.AlertMessage
	if err := json.Unmarshal(b, &m); err != nil {
		h.metrics.RecordError("audit_unmarshal")
		return err
	}
	if m.ID == "" || m.Mode == "" {
		h.metrics.RecordError("audit_invalid")
		return fmt.Errorf("audit message missing id/mode")
	}

	if err := h.store.StoreAudit(ctx, &m); err != nil {
		h.metrics.RecordError("audit_store")
		return err
	}
	return nil
}

var _ pkgkafka.MessageHandler = (*AlertAuditHandler)(nil)
