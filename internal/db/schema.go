package db

import (
	"database/sql"
	"fmt"
)

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id                INTEGER PRIMARY KEY,
    email             TEXT NOT NULL,
    name              TEXT NOT NULL DEFAULT '',
    password_hash     TEXT NOT NULL,
    role              TEXT NOT NULL DEFAULT 'volunteer' CHECK (role IN ('admin', 'volunteer')),
    access_expires_at DATETIME,
    is_active         INTEGER NOT NULL DEFAULT 1,
    created_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    deleted_at        DATETIME
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_email_active
    ON users(email) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS revoked_tokens (
    jti        TEXT PRIMARY KEY,
    expires_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS locations (
    id          INTEGER PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    category    TEXT NOT NULL CHECK (category IN ('FLOOR', 'STORAGE', 'EVENT', 'OTHER')),
    description TEXT NOT NULL DEFAULT '',
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS boxes (
    id          INTEGER PRIMARY KEY,
    code        TEXT NOT NULL UNIQUE,
    label       TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    location_id INTEGER NOT NULL REFERENCES locations(id) ON DELETE RESTRICT,
    created_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id                  INTEGER PRIMARY KEY,
    code                TEXT NOT NULL UNIQUE,
    title               TEXT NOT NULL,
    platform            TEXT NOT NULL DEFAULT '',
    item_type           TEXT NOT NULL DEFAULT 'SOFTWARE' CHECK (item_type IN ('SOFTWARE', 'HARDWARE', 'NON_ELECTRONIC')),
    condition           TEXT NOT NULL DEFAULT 'GOOD' CHECK (condition IN ('EXCELLENT', 'GOOD', 'FAIR', 'POOR')),
    is_complete         TEXT NOT NULL DEFAULT 'UNKNOWN' CHECK (is_complete IN ('YES', 'NO', 'UNKNOWN')),
    is_functional       TEXT NOT NULL DEFAULT 'UNKNOWN' CHECK (is_functional IN ('YES', 'NO', 'UNKNOWN')),
    description         TEXT NOT NULL DEFAULT '',
    box_id              INTEGER REFERENCES boxes(id) ON DELETE SET NULL,
    current_location_id INTEGER NOT NULL REFERENCES locations(id) ON DELETE RESTRICT,
    is_on_floor         INTEGER NOT NULL DEFAULT 0,
    is_public_visible   INTEGER NOT NULL DEFAULT 1,
    status              TEXT NOT NULL DEFAULT 'AVAILABLE' CHECK (status IN ('AVAILABLE', 'IN_TRANSIT')),
    image               BLOB,
    image_mime          TEXT,
    thumbnail           BLOB,
    created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_is_on_floor ON items(is_on_floor);
CREATE INDEX IF NOT EXISTS idx_items_platform ON items(platform);
CREATE INDEX IF NOT EXISTS idx_items_current_location ON items(current_location_id);

CREATE TABLE IF NOT EXISTS movement_requests (
    id               INTEGER PRIMARY KEY,
    item_id          INTEGER NOT NULL REFERENCES items(id) ON DELETE RESTRICT,
    requested_by     INTEGER REFERENCES users(id),
    from_location_id INTEGER NOT NULL REFERENCES locations(id) ON DELETE RESTRICT,
    to_location_id   INTEGER NOT NULL REFERENCES locations(id) ON DELETE RESTRICT,
    status           TEXT NOT NULL DEFAULT 'WAITING_APPROVAL'
                     CHECK (status IN ('WAITING_APPROVAL', 'APPROVED', 'REJECTED', 'CANCELLED')),
    admin_id         INTEGER REFERENCES users(id),
    admin_comment    TEXT NOT NULL DEFAULT '',
    created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_movement_requests_item ON movement_requests(item_id, status);

CREATE TABLE IF NOT EXISTS history_events (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    item_id             INTEGER NOT NULL REFERENCES items(id) ON DELETE RESTRICT,
    kind                TEXT NOT NULL CHECK (kind IN ('INITIAL', 'MOVE_REQUESTED', 'MOVE_APPROVED', 'MOVE_REJECTED',
                                                      'IN_TRANSIT', 'ARRIVED', 'VERIFIED', 'LOCATION_CORRECTION')),
    from_location_id    INTEGER REFERENCES locations(id) ON DELETE RESTRICT,
    to_location_id      INTEGER REFERENCES locations(id) ON DELETE RESTRICT,
    movement_request_id INTEGER REFERENCES movement_requests(id) ON DELETE RESTRICT,
    acted_by            INTEGER REFERENCES users(id),
    notes               TEXT NOT NULL DEFAULT '',
    created_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_events_item ON history_events(item_id, created_at, id);

CREATE TRIGGER IF NOT EXISTS history_events_no_update
    BEFORE UPDATE ON history_events
BEGIN
    SELECT RAISE(ABORT, 'history events are append-only');
END;

CREATE TRIGGER IF NOT EXISTS history_events_no_delete
    BEFORE DELETE ON history_events
BEGIN
    SELECT RAISE(ABORT, 'history events are append-only');
END;
`

// EnsureSchema creates all tables and indexes if they don't already exist.
func EnsureSchema(db *sql.DB) error {
	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}
