// Package widgets holds the small premium-status consumers of the purchase
// session: the restore button and the premium badge.
package widgets

import (
	"context"

	"purchase-sync/internal/models"
)

// Store is what the widgets need from the purchase session.
type Store interface {
	IsPremium() bool
	CustomerInfo() *models.CustomerInfo
	RestorePurchases(ctx context.Context) bool
	Loading() bool
}

type RestoreOutcome int

const (
	RestoreBusy RestoreOutcome = iota
	RestoreRestored
	RestoreNothingToRestore
	RestoreFailed
)

func (o RestoreOutcome) String() string {
	switch o {
	case RestoreBusy:
		return "busy"
	case RestoreRestored:
		return "restored"
	case RestoreNothingToRestore:
		return "nothing_to_restore"
	case RestoreFailed:
		return "failed"
	}
	return "unknown"
}

type RestoreResult struct {
	Outcome RestoreOutcome
	Message string
}

var restoreMessages = map[RestoreOutcome]string{
	RestoreBusy:             "Please wait for the current purchase to finish.",
	RestoreRestored:         "Your purchases have been restored.",
	RestoreNothingToRestore: "No previous purchases were found for this account.",
	RestoreFailed:           "Restore failed. Please try again.",
}

type RestoreButton struct {
	store Store
}

func NewRestoreButton(store Store) *RestoreButton {
	return &RestoreButton{store: store}
}

func (b *RestoreButton) Enabled() bool {
	return !b.store.Loading()
}

func (b *RestoreButton) Label() string {
	if b.store.Loading() {
		return "Restoring..."
	}
	return "Restore Purchases"
}

// Press restores and interprets the result. A successful call that does not
// grant premium is reported as nothing to restore, not as a failure.
func (b *RestoreButton) Press(ctx context.Context) RestoreResult {
	if b.store.Loading() {
		return result(RestoreBusy)
	}
	if !b.store.RestorePurchases(ctx) {
		return result(RestoreFailed)
	}
	if !b.store.IsPremium() {
		return result(RestoreNothingToRestore)
	}
	return result(RestoreRestored)
}

func result(o RestoreOutcome) RestoreResult {
	return RestoreResult{Outcome: o, Message: restoreMessages[o]}
}
