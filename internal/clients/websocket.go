package clients

import (
	"context"
	"fmt"

	"condobill/internal/domain"
	ws "condobill/internal/transport/websocket"
)

// WebSocketClient pushes billing events to a party's connected portal
// sessions. Events are best-effort: a full channel or absent listener never
// fails the payment path.
type WebSocketClient struct {
	hub *ws.Hub
}

func NewWebSocketClient(hub *ws.Hub) *WebSocketClient {
	return &WebSocketClient{
		hub: hub,
	}
}

func (c *WebSocketClient) PaymentRegistered(ctx context.Context, userID int64, p domain.Payment, o domain.Obligation) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "payment_registered",
		Channel: fmt.Sprintf("billing#%d", userID),
		Data: map[string]interface{}{
			"payment_id":       p.ID,
			"obligation_kind":  string(o.Kind),
			"obligation_id":    o.ID,
			"amount":           p.Amount.StringFixed(2),
			"reference":        p.Reference,
			"obligation_state": string(o.State),
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}

func (c *WebSocketClient) ObligationUpdated(ctx context.Context, userID int64, o domain.Obligation) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "obligation_updated",
		Channel: fmt.Sprintf("billing#%d", userID),
		Data: map[string]interface{}{
			"obligation_kind":  string(o.Kind),
			"obligation_id":    o.ID,
			"obligation_state": string(o.State),
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}

func (c *WebSocketClient) ReceiptReady(ctx context.Context, userID int64, paymentID, url string) error {
	if c.hub == nil {
		return nil
	}

	message := &ws.Message{
		Type:    "receipt_ready",
		Channel: fmt.Sprintf("billing#%d", userID),
		Data: map[string]interface{}{
			"payment_id": paymentID,
			"url":        url,
		},
	}

	c.hub.Broadcast(userID, message)
	return nil
}
