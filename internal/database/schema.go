package database

import (
	"context"
	"database/sql"
)

// ticketsDDL is the registry table.  Rows are never deleted; asset_unit is
// the idempotency key for registration.
const ticketsDDL = `CREATE TABLE IF NOT EXISTS tickets (
	id                    BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
	asset_unit            VARCHAR(120)    NOT NULL,
	mint_tx_hash          CHAR(64)        NOT NULL,
	original_owner_wallet VARCHAR(128)    NOT NULL,
	status                ENUM('VALID','TRANSFERRED','CANCELLED') NOT NULL DEFAULT 'VALID',
	metadata_uri          VARCHAR(512)    NULL,
	seat_id               VARCHAR(64)     NULL,
	event_name            VARCHAR(255)    NULL,
	created_at            DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at            DATETIME        NOT NULL DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
	PRIMARY KEY (id),
	UNIQUE KEY uq_tickets_asset_unit (asset_unit),
	KEY idx_tickets_owner (original_owner_wallet)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates the registry table when it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, ticketsDDL)
	return err
}
