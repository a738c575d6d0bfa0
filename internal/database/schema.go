package database

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is applied statement by statement; MySQL does not accept several
// statements in one Exec without multiStatements=true.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS auctions (
		id           CHAR(36)     NOT NULL PRIMARY KEY,
		owner_id     VARCHAR(64)  NOT NULL,
		title        VARCHAR(255) NOT NULL DEFAULT '',
		car_id       VARCHAR(64)  NOT NULL DEFAULT '',
		status       ENUM('PENDING','ACTIVE','ENDED') NOT NULL DEFAULT 'PENDING',
		start_time   DATETIME(3)  NOT NULL,
		end_time     DATETIME(3)  NOT NULL,
		starting_bid BIGINT       NOT NULL DEFAULT 0,
		current_bid  BIGINT       NULL,
		winner_id    VARCHAR(64)  NULL,
		version      BIGINT       NOT NULL DEFAULT 1,
		created_at   DATETIME(3)  NOT NULL,
		updated_at   DATETIME(3)  NOT NULL,
		KEY idx_auctions_status_start (status, start_time),
		KEY idx_auctions_status_end (status, end_time)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS bids (
		id         CHAR(36)    NOT NULL PRIMARY KEY,
		auction_id CHAR(36)    NOT NULL,
		bidder_id  VARCHAR(64) NOT NULL,
		amount     BIGINT      NOT NULL,
		created_at DATETIME(3) NOT NULL,
		KEY idx_bids_auction_amount (auction_id, amount DESC, created_at),
		CONSTRAINT fk_bids_auction FOREIGN KEY (auction_id) REFERENCES auctions (id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS audit_log (
		id          BIGINT       NOT NULL AUTO_INCREMENT PRIMARY KEY,
		dedupe_key  VARCHAR(191) NOT NULL,
		event_type  VARCHAR(64)  NOT NULL,
		user_id     VARCHAR(64)  NULL,
		auction_id  CHAR(36)     NULL,
		bid_id      CHAR(36)     NULL,
		data        JSON         NULL,
		occurred_at DATETIME(3)  NOT NULL,
		recorded_at DATETIME(3)  NOT NULL,
		UNIQUE KEY uq_audit_dedupe (dedupe_key),
		KEY idx_audit_auction (auction_id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	`CREATE TABLE IF NOT EXISTS event_outbox (
		id              VARCHAR(64)  NOT NULL PRIMARY KEY,
		aggregate_id    CHAR(36)     NOT NULL,
		event_type      VARCHAR(64)  NOT NULL,
		payload         JSON         NOT NULL,
		priority        BOOLEAN      NOT NULL DEFAULT FALSE,
		status          ENUM('pending','sent','failed') NOT NULL DEFAULT 'pending',
		attempts        INT          NOT NULL DEFAULT 0,
		last_error      VARCHAR(512) NULL,
		next_attempt_at DATETIME(3)  NOT NULL,
		created_at      DATETIME(3)  NOT NULL,
		published_at    DATETIME(3)  NULL,
		KEY idx_outbox_due (status, next_attempt_at)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}

// EnsureSchema creates the tables used by the bidding core if they do not
// exist yet.  It is safe to run on every boot.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}
	return nil
}
