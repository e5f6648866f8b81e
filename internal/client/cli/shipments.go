package cli

import (
	"context"
	"fmt"

	"github.com/mbelkin/courierdesk/internal/client/auth"
)

// Shipments lists the current user's shipments.
func (a *App) Shipments(ctx context.Context) error {
	shipments, err := a.shipments.Shipments(ctx)
	if err != nil {
		printlnFn(auth.DisplayMessage(err))
		return err
	}

	if len(shipments) == 0 {
		printlnFn("No shipments.")
		return nil
	}
	for _, s := range shipments {
		printlnFn(fmt.Sprintf("%s  %-12s  %s -> %s", s.TrackingCode, s.Status, s.SenderName, s.RecipientName))
	}
	return nil
}
