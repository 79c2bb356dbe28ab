package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"
	"auction-engine/internal/validator"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// numericRow replays query arguments as a result row. Money values come
// back the way a NUMERIC(20,4) column returns them.
type numericRow struct {
	values []any
}

func (r numericRow) Scan(dest ...any) error {
	if len(dest) != len(r.values) {
		return fmt.Errorf("scan: %d destinations for %d columns", len(dest), len(r.values))
	}
	for i, src := range r.values {
		v := stored(src)
		if sc, ok := dest[i].(sql.Scanner); ok {
			if err := sc.Scan(v); err != nil {
				return fmt.Errorf("scan column %d: %w", i, err)
			}
			continue
		}
		dv := reflect.ValueOf(dest[i]).Elem()
		dv.Set(reflect.ValueOf(v).Convert(dv.Type()))
	}
	return nil
}

func stored(src any) any {
	switch v := src.(type) {
	case decimal.Decimal:
		return v.StringFixed(validator.MoneyScale)
	case decimal.NullDecimal:
		if !v.Valid {
			return nil
		}
		return v.Decimal.StringFixed(validator.MoneyScale)
	default:
		return src
	}
}

type errRow struct {
	err error
}

func (r errRow) Scan(...any) error { return r.err }

type versionRow struct {
	version int64
}

func (r versionRow) Scan(dest ...any) error {
	*dest[0].(*int64) = r.version
	return nil
}

type rowsAffected int64

func (n rowsAffected) LastInsertId() (int64, error) { return 0, errors.New("not supported") }
func (n rowsAffected) RowsAffected() (int64, error) { return int64(n), nil }

type fakeConn struct {
	affected int64
	execErr  error
	row      rowScanner
	args     []any
}

func (c *fakeConn) ExecContext(_ context.Context, _ string, args ...any) (sql.Result, error) {
	c.args = args
	if c.execErr != nil {
		return nil, c.execErr
	}
	return rowsAffected(c.affected), nil
}

func (c *fakeConn) QueryRowContext(context.Context, string, ...any) rowScanner {
	return c.row
}

// requireSameAuction compares decimals by value and everything else exactly
func requireSameAuction(t *testing.T, want, got model.Auction) {
	t.Helper()

	pairs := []struct {
		name      string
		want, got decimal.Decimal
	}{
		{"starting_price", want.StartingPrice, got.StartingPrice},
		{"current_price", want.CurrentPrice, got.CurrentPrice},
		{"min_bid_increment", want.MinBidIncrement, got.MinBidIncrement},
	}
	for _, p := range pairs {
		require.True(t, p.want.Equal(p.got), "%s: want %s, got %s", p.name, p.want, p.got)
	}
	if want.ReservePrice == nil {
		require.Nil(t, got.ReservePrice)
	} else {
		require.NotNil(t, got.ReservePrice)
		require.True(t, want.ReservePrice.Equal(*got.ReservePrice), "reserve: want %s, got %s", want.ReservePrice, got.ReservePrice)
	}

	got.StartingPrice, got.CurrentPrice, got.MinBidIncrement = want.StartingPrice, want.CurrentPrice, want.MinBidIncrement
	got.ReservePrice = want.ReservePrice
	require.Equal(t, want, got)
}

func TestScanAuction_RoundTripsAuctionArgs(t *testing.T) {
	t.Parallel()

	reserve := decimal.NewFromInt(50000)
	fractional := decimal.RequireFromString("0.0001")

	ended := newAuction("a3", 100, base.Add(time.Hour))
	ended.Status = model.StatusEnded
	ended.LeaderID = "userB"
	ended.LeadingBidID = "bid9"
	ended.WinnerID = "userB"
	ended.ReserveMet = true
	ended.EndReason = model.EndReasonCompleted
	ended.BidCount = 9
	ended.UniqueBidders = 3
	ended.ExtensionCount = 2
	ended.Version = 12

	tests := []struct {
		name   string
		mutate func(a *model.Auction)
	}{
		{name: "no_reserve", mutate: func(a *model.Auction) {}},
		{name: "with_reserve", mutate: func(a *model.Auction) { a.ReservePrice = &reserve }},
		{name: "fractional_money", mutate: func(a *model.Auction) {
			a.CurrentPrice = decimal.RequireFromString("50123.4567")
			a.MinBidIncrement = decimal.RequireFromString("0.25")
			a.ReservePrice = &fractional
		}},
		{name: "storable_maximum", mutate: func(a *model.Auction) { a.CurrentPrice = validator.MaxStorableAmount }},
		{name: "ended", mutate: func(a *model.Auction) { *a = ended }},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := newAuction("a1", 40000, base.Add(time.Hour))
			tc.mutate(&a)

			args := auctionArgs(a)
			got, err := scanAuction(numericRow{values: args})
			require.NoError(t, err)
			requireSameAuction(t, a, got)
		})
	}
}

func TestScanAuction_Errors(t *testing.T) {
	t.Parallel()

	_, err := scanAuction(errRow{err: sql.ErrNoRows})
	require.ErrorIs(t, err, sql.ErrNoRows)

	_, err = scanAuction(numericRow{values: []any{"a1"}})
	require.Error(t, err)
}

func TestUpdateAuction(t *testing.T) {
	t.Parallel()

	driverErr := errors.New("connection reset")

	tests := []struct {
		name        string
		conn        *fakeConn
		expectedErr error
	}{
		{name: "row_updated", conn: &fakeConn{affected: 1}},
		{name: "stale_version", conn: &fakeConn{row: versionRow{version: 7}}, expectedErr: biddingerrors.ErrVersionConflict},
		{name: "missing_auction", conn: &fakeConn{row: errRow{err: sql.ErrNoRows}}, expectedErr: biddingerrors.ErrAuctionNotFound},
		{name: "exec_failure", conn: &fakeConn{execErr: driverErr}, expectedErr: driverErr},
		{name: "version_lookup_failure", conn: &fakeConn{row: errRow{err: driverErr}}, expectedErr: driverErr},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			a := newAuction("a1", 40000, base.Add(time.Hour))
			a.Version = 6

			err := updateAuction(context.Background(), tc.conn, a, 5)
			require.Equal(t, "a1", tc.conn.args[0])
			require.Equal(t, int64(5), tc.conn.args[len(tc.conn.args)-1], "guarded by the expected version")
			if tc.expectedErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tc.expectedErr)
		})
	}

	t.Run("conflict_reports_versions", func(t *testing.T) {
		t.Parallel()

		err := updateAuction(context.Background(), &fakeConn{row: versionRow{version: 7}}, newAuction("a1", 1, base), 5)
		require.ErrorContains(t, err, "stored version 7, expected 5")
		require.False(t, errors.Is(err, biddingerrors.ErrAuctionNotFound))
	})
}
