package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/quillon/ruleflow/internal/action"
	"github.com/quillon/ruleflow/internal/logger"
)

// SendNotification handles "send_notification". Delivery transports are an
// external collaborator's concern; this handler records the notification
// through the operator log so integrators can replace it with a real channel.
type SendNotification struct{}

func (SendNotification) Type() string { return "send_notification" }

func (SendNotification) Validate(params map[string]interface{}) error {
	if s, _ := params["message"].(string); s == "" {
		return fmt.Errorf("send_notification: message is required")
	}
	return nil
}

func (SendNotification) Execute(ctx context.Context, ec *action.ExecContext, params map[string]interface{}) (*action.Result, error) {
	message, _ := params["message"].(string)
	channel, _ := params["channel"].(string)
	if channel == "" {
		channel = "default"
	}
	recipient := fmt.Sprintf("%v", params["recipient"])

	logger.Info("notification",
		zap.String("channel", channel),
		zap.String("recipient", recipient),
		zap.String("message", message),
		zap.String("tenant", ec.TenantID),
	)
	return &action.Result{
		Success: true,
		Message: fmt.Sprintf("notified %s via %s", recipient, channel),
	}, nil
}
