package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var dbTracer = otel.Tracer("postgres")

const auctionColumns = `auction_id, listing_id, owner_id, currency, starting_price, current_price,
	reserve_price, min_bid_increment, bid_count, unique_bidders, start_time, end_time,
	extension_count, max_extensions, status, leader_id, leading_bid_id, winner_id,
	reserve_met, end_reason, version, created_at, updated_at`

// PostgresRepo implements AuctionStore on PostgreSQL
type PostgresRepo struct {
	db *sql.DB
}

// NewPostgresRepo opens the database, checks connectivity and applies the schema
func NewPostgresRepo(ctx context.Context, dsn string) (*PostgresRepo, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	repo := &PostgresRepo{db: db}
	if err := repo.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return repo, nil
}

// Close releases the connection pool
func (r *PostgresRepo) Close() error {
	return r.db.Close()
}

func (r *PostgresRepo) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS auctions (
		auction_id VARCHAR(64) PRIMARY KEY,
		listing_id VARCHAR(64) NOT NULL,
		owner_id VARCHAR(64) NOT NULL,
		currency VARCHAR(8) NOT NULL,
		starting_price NUMERIC(20, 4) NOT NULL,
		current_price NUMERIC(20, 4) NOT NULL,
		reserve_price NUMERIC(20, 4),
		min_bid_increment NUMERIC(20, 4) NOT NULL,
		bid_count INTEGER NOT NULL DEFAULT 0,
		unique_bidders INTEGER NOT NULL DEFAULT 0,
		start_time TIMESTAMP WITH TIME ZONE NOT NULL,
		end_time TIMESTAMP WITH TIME ZONE NOT NULL,
		extension_count INTEGER NOT NULL DEFAULT 0,
		max_extensions INTEGER NOT NULL DEFAULT 0,
		status VARCHAR(16) NOT NULL,
		leader_id VARCHAR(64) NOT NULL DEFAULT '',
		leading_bid_id VARCHAR(64) NOT NULL DEFAULT '',
		winner_id VARCHAR(64) NOT NULL DEFAULT '',
		reserve_met BOOLEAN NOT NULL DEFAULT FALSE,
		end_reason VARCHAR(32) NOT NULL DEFAULT '',
		version BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS bids (
		seq BIGSERIAL,
		bid_id VARCHAR(64) PRIMARY KEY,
		auction_id VARCHAR(64) NOT NULL REFERENCES auctions(auction_id),
		bidder_id VARCHAR(64) NOT NULL,
		amount NUMERIC(20, 4) NOT NULL,
		kind VARCHAR(16) NOT NULL,
		proxy_ceiling NUMERIC(20, 4),
		placed_at TIMESTAMP WITH TIME ZONE NOT NULL,
		status VARCHAR(16) NOT NULL
	);

	CREATE TABLE IF NOT EXISTS proxy_ceilings (
		auction_id VARCHAR(64) NOT NULL REFERENCES auctions(auction_id),
		bidder_id VARCHAR(64) NOT NULL,
		ceiling NUMERIC(20, 4) NOT NULL,
		placed_at TIMESTAMP WITH TIME ZONE NOT NULL,
		PRIMARY KEY (auction_id, bidder_id)
	);

	CREATE INDEX IF NOT EXISTS idx_auctions_status ON auctions(status, end_time);
	CREATE INDEX IF NOT EXISTS idx_bids_auction ON bids(auction_id, seq);
	CREATE INDEX IF NOT EXISTS idx_bids_bidder ON bids(bidder_id);
	`

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	_, err := r.db.ExecContext(ctx, schema)
	return err
}

func startSpan(ctx context.Context, name, operation, table string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", operation),
		attribute.String("db.sql.table", table),
	}
	return dbTracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(append(base, attrs...)...))
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// CreateAuction stores a new auction
func (r *PostgresRepo) CreateAuction(ctx context.Context, a model.Auction) error {
	ctx, span := startSpan(ctx, "postgres.create_auction", "INSERT", "auctions",
		attribute.String("auction_id", a.AuctionID))
	defer span.End()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auctions (`+auctionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`, auctionArgs(a)...)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fail(span, fmt.Errorf("create auction %s: %w", a.AuctionID, biddingerrors.ErrAuctionExists))
		}
		return fail(span, fmt.Errorf("create auction %s: %w", a.AuctionID, err))
	}
	return nil
}

// GetAuction returns the stored auction
func (r *PostgresRepo) GetAuction(ctx context.Context, auctionID string) (model.Auction, error) {
	ctx, span := startSpan(ctx, "postgres.get_auction", "SELECT", "auctions",
		attribute.String("auction_id", auctionID))
	defer span.End()

	row := r.db.QueryRowContext(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE auction_id = $1`, auctionID)
	a, err := scanAuction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", auctionID, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, fail(span, fmt.Errorf("get auction %s: %w", auctionID, err))
	}
	return a, nil
}

// ListOpenAuctions returns every auction that has not been finalized, ordered by end time
func (r *PostgresRepo) ListOpenAuctions(ctx context.Context) ([]model.Auction, error) {
	ctx, span := startSpan(ctx, "postgres.list_open_auctions", "SELECT", "auctions")
	defer span.End()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE status <> $1
		ORDER BY end_time
	`, string(model.StatusEnded))
	if err != nil {
		return nil, fail(span, fmt.Errorf("list open auctions: %w", err))
	}
	defer rows.Close()

	auctions, err := scanAuctions(rows)
	if err != nil {
		return nil, fail(span, fmt.Errorf("list open auctions: %w", err))
	}
	span.SetAttributes(attribute.Int("auctions.count", len(auctions)))
	return auctions, nil
}

// GetBids returns all bids for an auction in placement order
func (r *PostgresRepo) GetBids(ctx context.Context, auctionID string) ([]model.Bid, error) {
	ctx, span := startSpan(ctx, "postgres.get_bids", "SELECT", "bids",
		attribute.String("auction_id", auctionID))
	defer span.End()

	if err := r.auctionExists(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT bid_id, auction_id, bidder_id, amount, kind, proxy_ceiling, placed_at, status
		FROM bids
		WHERE auction_id = $1
		ORDER BY seq
	`, auctionID)
	if err != nil {
		return nil, fail(span, fmt.Errorf("get bids for auction %s: %w", auctionID, err))
	}
	defer rows.Close()

	var bids []model.Bid
	for rows.Next() {
		var (
			b       model.Bid
			kind    string
			status  string
			ceiling decimal.NullDecimal
		)
		if err := rows.Scan(&b.BidID, &b.AuctionID, &b.BidderID, &b.Amount, &kind, &ceiling, &b.PlacedAt, &status); err != nil {
			return nil, fail(span, fmt.Errorf("get bids for auction %s: %w", auctionID, err))
		}
		b.Kind = model.BidKind(kind)
		b.Status = model.BidStatus(status)
		if ceiling.Valid {
			c := ceiling.Decimal
			b.ProxyCeiling = &c
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("get bids for auction %s: %w", auctionID, err))
	}
	if len(bids) == 0 {
		return nil, fmt.Errorf("get bids for auction %s: %w", auctionID, biddingerrors.ErrNoBids)
	}
	span.SetAttributes(attribute.Int("bids.count", len(bids)))
	return bids, nil
}

// GetProxyCeilings returns the standing proxy ceilings of an auction, oldest first
func (r *PostgresRepo) GetProxyCeilings(ctx context.Context, auctionID string) ([]model.ProxyCeiling, error) {
	ctx, span := startSpan(ctx, "postgres.get_proxy_ceilings", "SELECT", "proxy_ceilings",
		attribute.String("auction_id", auctionID))
	defer span.End()

	if err := r.auctionExists(ctx, auctionID); err != nil {
		return nil, fmt.Errorf("get proxy ceilings for auction %s: %w", auctionID, err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT auction_id, bidder_id, ceiling, placed_at
		FROM proxy_ceilings
		WHERE auction_id = $1
		ORDER BY placed_at
	`, auctionID)
	if err != nil {
		return nil, fail(span, fmt.Errorf("get proxy ceilings for auction %s: %w", auctionID, err))
	}
	defer rows.Close()

	ceilings := []model.ProxyCeiling{}
	for rows.Next() {
		var c model.ProxyCeiling
		if err := rows.Scan(&c.AuctionID, &c.BidderID, &c.Ceiling, &c.PlacedAt); err != nil {
			return nil, fail(span, fmt.Errorf("get proxy ceilings for auction %s: %w", auctionID, err))
		}
		ceilings = append(ceilings, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("get proxy ceilings for auction %s: %w", auctionID, err))
	}
	return ceilings, nil
}

// GetAuctionsByBidder returns all auctions a user has bid on
func (r *PostgresRepo) GetAuctionsByBidder(ctx context.Context, bidderID string) ([]model.Auction, error) {
	ctx, span := startSpan(ctx, "postgres.get_auctions_by_bidder", "SELECT", "auctions",
		attribute.String("bidder_id", bidderID))
	defer span.End()

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+auctionColumns+` FROM auctions
		WHERE auction_id IN (SELECT DISTINCT auction_id FROM bids WHERE bidder_id = $1)
		ORDER BY end_time
	`, bidderID)
	if err != nil {
		return nil, fail(span, fmt.Errorf("get auctions for user %s: %w", bidderID, err))
	}
	defer rows.Close()

	auctions, err := scanAuctions(rows)
	if err != nil {
		return nil, fail(span, fmt.Errorf("get auctions for user %s: %w", bidderID, err))
	}
	if len(auctions) == 0 {
		return nil, fmt.Errorf("get auctions for user %s: %w", bidderID, biddingerrors.ErrUserNoBids)
	}
	return auctions, nil
}

// CommitBid applies an accepted submission in one transaction guarded by the version column
func (r *PostgresRepo) CommitBid(ctx context.Context, commit BidCommit) error {
	a := commit.Auction
	ctx, span := startSpan(ctx, "postgres.commit_bid", "transaction", "auctions",
		attribute.String("auction_id", a.AuctionID),
		attribute.Int("bids.count", len(commit.Bids)),
		attribute.Int64("version.expected", commit.ExpectedVersion))
	defer span.End()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(span, fmt.Errorf("commit bid for auction %s: %w", a.AuctionID, err))
	}
	defer tx.Rollback()

	if err := updateAuction(ctx, txConn{tx}, a, commit.ExpectedVersion); err != nil {
		return fail(span, fmt.Errorf("commit bid for auction %s: %w", a.AuctionID, err))
	}

	for _, b := range commit.Bids {
		var ceiling decimal.NullDecimal
		if b.ProxyCeiling != nil {
			ceiling = decimal.NewNullDecimal(*b.ProxyCeiling)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bids (bid_id, auction_id, bidder_id, amount, kind, proxy_ceiling, placed_at, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`, b.BidID, b.AuctionID, b.BidderID, b.Amount, string(b.Kind), ceiling, b.PlacedAt, string(b.Status))
		if err != nil {
			return fail(span, fmt.Errorf("commit bid for auction %s: insert bid %s: %w", a.AuctionID, b.BidID, err))
		}
	}

	if c := commit.Ceiling; c != nil {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO proxy_ceilings (auction_id, bidder_id, ceiling, placed_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (auction_id, bidder_id) DO UPDATE SET
				ceiling = EXCLUDED.ceiling,
				placed_at = EXCLUDED.placed_at
		`, c.AuctionID, c.BidderID, c.Ceiling, c.PlacedAt)
		if err != nil {
			return fail(span, fmt.Errorf("commit bid for auction %s: upsert proxy ceiling: %w", a.AuctionID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(span, fmt.Errorf("commit bid for auction %s: %w", a.AuctionID, err))
	}
	span.SetAttributes(attribute.Int64("version.new", a.Version))
	return nil
}

// SaveAuction replaces the auction record if the stored version still matches
func (r *PostgresRepo) SaveAuction(ctx context.Context, a model.Auction, expectedVersion int64) error {
	ctx, span := startSpan(ctx, "postgres.save_auction", "UPDATE", "auctions",
		attribute.String("auction_id", a.AuctionID),
		attribute.Int64("version.expected", expectedVersion))
	defer span.End()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fail(span, fmt.Errorf("save auction %s: %w", a.AuctionID, err))
	}
	defer tx.Rollback()

	if err := updateAuction(ctx, txConn{tx}, a, expectedVersion); err != nil {
		return fail(span, fmt.Errorf("save auction %s: %w", a.AuctionID, err))
	}
	if err := tx.Commit(); err != nil {
		return fail(span, fmt.Errorf("save auction %s: %w", a.AuctionID, err))
	}
	return nil
}

func (r *PostgresRepo) auctionExists(ctx context.Context, auctionID string) error {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM auctions WHERE auction_id = $1)`, auctionID).Scan(&exists)
	if err != nil {
		return err
	}
	if !exists {
		return biddingerrors.ErrAuctionNotFound
	}
	return nil
}

// conn is the part of a transaction updateAuction needs
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) rowScanner
}

type txConn struct {
	tx *sql.Tx
}

func (c txConn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.tx.ExecContext(ctx, query, args...)
}

func (c txConn) QueryRowContext(ctx context.Context, query string, args ...any) rowScanner {
	return c.tx.QueryRowContext(ctx, query, args...)
}

// updateAuction writes a and fails with ErrVersionConflict (or ErrAuctionNotFound) if no row matched
func updateAuction(ctx context.Context, tx conn, a model.Auction, expectedVersion int64) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE auctions SET
			current_price = $2,
			bid_count = $3,
			unique_bidders = $4,
			end_time = $5,
			extension_count = $6,
			status = $7,
			leader_id = $8,
			leading_bid_id = $9,
			winner_id = $10,
			reserve_met = $11,
			end_reason = $12,
			version = $13,
			updated_at = $14
		WHERE auction_id = $1 AND version = $15
	`, a.AuctionID, a.CurrentPrice, a.BidCount, a.UniqueBidders, a.EndTime, a.ExtensionCount,
		string(a.Status), a.LeaderID, a.LeadingBidID, a.WinnerID, a.ReserveMet, a.EndReason,
		a.Version, a.UpdatedAt, expectedVersion)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		var stored int64
		err := tx.QueryRowContext(ctx, `SELECT version FROM auctions WHERE auction_id = $1`, a.AuctionID).Scan(&stored)
		if errors.Is(err, sql.ErrNoRows) {
			return biddingerrors.ErrAuctionNotFound
		}
		if err != nil {
			return err
		}
		return fmt.Errorf("%w - stored version %d, expected %d", biddingerrors.ErrVersionConflict, stored, expectedVersion)
	}
	return nil
}

func auctionArgs(a model.Auction) []any {
	var reserve decimal.NullDecimal
	if a.ReservePrice != nil {
		reserve = decimal.NewNullDecimal(*a.ReservePrice)
	}
	return []any{
		a.AuctionID, a.ListingID, a.OwnerID, a.Currency, a.StartingPrice, a.CurrentPrice,
		reserve, a.MinBidIncrement, a.BidCount, a.UniqueBidders, a.StartTime, a.EndTime,
		a.ExtensionCount, a.MaxExtensions, string(a.Status), a.LeaderID, a.LeadingBidID, a.WinnerID,
		a.ReserveMet, a.EndReason, a.Version, a.CreatedAt, a.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (model.Auction, error) {
	var (
		a       model.Auction
		reserve decimal.NullDecimal
		status  string
	)
	err := row.Scan(
		&a.AuctionID, &a.ListingID, &a.OwnerID, &a.Currency, &a.StartingPrice, &a.CurrentPrice,
		&reserve, &a.MinBidIncrement, &a.BidCount, &a.UniqueBidders, &a.StartTime, &a.EndTime,
		&a.ExtensionCount, &a.MaxExtensions, &status, &a.LeaderID, &a.LeadingBidID, &a.WinnerID,
		&a.ReserveMet, &a.EndReason, &a.Version, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.Auction{}, err
	}
	a.Status = model.AuctionStatus(status)
	if reserve.Valid {
		r := reserve.Decimal
		a.ReservePrice = &r
	}
	return a, nil
}

func scanAuctions(rows *sql.Rows) ([]model.Auction, error) {
	var auctions []model.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, a)
	}
	return auctions, rows.Err()
}
