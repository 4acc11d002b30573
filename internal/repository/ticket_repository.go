package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/nft-ticket-registry/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

const ticketColumns = "id, asset_unit, mint_tx_hash, original_owner_wallet, status, metadata_uri, seat_id, event_name, created_at, updated_at"

// TicketRepo is the ticket registry.  The unique key on asset_unit is the
// only concurrency control it relies on: a second insert for the same unit
// fails fast and never touches the first row.
type TicketRepo struct {
	db *sql.DB // db is the underlying database connection pool
}

func NewTicketRepo(db *sql.DB) *TicketRepo {
	return &TicketRepo{db: db}
}

// Create inserts rec.  On success ID and timestamps are filled in.  A
// duplicate asset unit yields ErrTicketExists and leaves the stored row as
// it was.
func (r *TicketRepo) Create(ctx context.Context, rec *model.TicketRecord) error {
	if rec.Status == "" {
		rec.Status = model.TicketValid
	}
	const qInsert = `INSERT INTO tickets
		(asset_unit, mint_tx_hash, original_owner_wallet, status, metadata_uri, seat_id, event_name)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, qInsert,
		rec.AssetUnit, rec.MintTxHash, rec.OriginalOwnerWallet, string(rec.Status),
		nullString(rec.MetadataURI), nullString(rec.SeatID), nullString(rec.EventName))
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", ErrTicketExists, rec.AssetUnit)
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)

	const qSelect = "SELECT created_at, updated_at FROM tickets WHERE id = ?"
	return r.db.QueryRowContext(ctx, qSelect, rec.ID).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}

// FindByAssetUnit returns ErrTicketNotFound when nothing is registered.
func (r *TicketRepo) FindByAssetUnit(ctx context.Context, unit string) (*model.TicketRecord, error) {
	q := "SELECT " + ticketColumns + " FROM tickets WHERE asset_unit = ?"
	rec, err := scanTicket(r.db.QueryRowContext(ctx, q, unit))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// List returns records newest first.
func (r *TicketRepo) List(ctx context.Context, limit, offset int) ([]model.TicketRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	q := "SELECT " + ticketColumns + " FROM tickets ORDER BY id DESC LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, q, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.TicketRecord{}
	for rows.Next() {
		rec, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// UpdateStatus moves a ticket to status.  CANCELLED is terminal; setting
// the current status again is a no-op.
func (r *TicketRepo) UpdateStatus(ctx context.Context, unit string, status model.TicketStatus) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, "SELECT status FROM tickets WHERE asset_unit = ? FOR UPDATE", unit).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrTicketNotFound
	}
	if err != nil {
		return err
	}
	if model.TicketStatus(current) == status {
		return tx.Commit()
	}
	if model.TicketStatus(current) == model.TicketCancelled {
		return fmt.Errorf("%w: %s is cancelled", ErrInvalidTransition, unit)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE tickets SET status = ? WHERE asset_unit = ?", string(status), unit); err != nil {
		return err
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTicket(s rowScanner) (*model.TicketRecord, error) {
	var (
		rec                      model.TicketRecord
		status                   string
		metadataURI, seat, event sql.NullString
	)
	if err := s.Scan(&rec.ID, &rec.AssetUnit, &rec.MintTxHash, &rec.OriginalOwnerWallet, &status,
		&metadataURI, &seat, &event, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}
	rec.Status = model.TicketStatus(status)
	rec.MetadataURI = metadataURI.String
	rec.SeatID = seat.String
	rec.EventName = event.String
	return &rec, nil
}

func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
