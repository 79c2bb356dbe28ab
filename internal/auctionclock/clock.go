package auctionclock

import (
	"time"

	"auction-engine/internal/models"
)

// Policy holds the anti-snipe tunables shared by every auction
type Policy struct {
	TriggerWindow   time.Duration
	ExtensionAmount time.Duration
}

// StatusAt computes the effective status of a at now.
// An auction past its end time reports ended even before finalization commits.
func StatusAt(a models.Auction, now time.Time, window time.Duration) models.AuctionStatus {
	switch {
	case a.Status == models.StatusEnded:
		return models.StatusEnded
	case now.Before(a.StartTime):
		return models.StatusUpcoming
	case !now.Before(a.EndTime):
		return models.StatusEnded
	case a.EndTime.Sub(now) <= window:
		return models.StatusEndingSoon
	case a.ExtensionCount > 0:
		return models.StatusExtended
	default:
		return models.StatusLive
	}
}

// Extend pushes the end time of a when a bid accepted at now lands inside
// the trailing window and extensions remain. It reports whether it did.
func Extend(a *models.Auction, now time.Time, p Policy) bool {
	remaining := a.EndTime.Sub(now)
	if remaining <= 0 || remaining > p.TriggerWindow {
		return false
	}
	if a.ExtensionCount >= a.MaxExtensions {
		return false
	}
	a.EndTime = a.EndTime.Add(p.ExtensionAmount)
	a.ExtensionCount++
	return true
}

// NextTransition is the next instant at which the effective status of a changes
func NextTransition(a models.Auction, now time.Time, window time.Duration) (time.Time, bool) {
	if a.Status == models.StatusEnded {
		return time.Time{}, false
	}
	if now.Before(a.StartTime) {
		return a.StartTime, true
	}
	if boundary := a.EndTime.Add(-window); now.Before(boundary) {
		return boundary, true
	}
	return a.EndTime, true
}

// Finalize closes a at now. An empty reason derives one from the auction
// state. It returns false, leaving a untouched, when a has already ended.
func Finalize(a *models.Auction, now time.Time, reason string) bool {
	if a.Status == models.StatusEnded {
		return false
	}

	a.ReserveMet = a.IsReserveMet()
	a.WinnerID = a.LeaderID

	switch {
	case reason != "":
		a.EndReason = reason
	case a.LeaderID == "":
		a.EndReason = models.EndReasonNoBids
	case !a.ReserveMet:
		a.EndReason = models.EndReasonReserveNotMet
	default:
		a.EndReason = models.EndReasonCompleted
	}

	if now.Before(a.EndTime) {
		a.EndTime = now
	}
	a.Status = models.StatusEnded
	a.UpdatedAt = now
	return true
}
