package discovery

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const storeSchema = `CREATE TABLE IF NOT EXISTS channel_identifiers (
  channel TEXT NOT NULL PRIMARY KEY,
  chatroom_id TEXT NOT NULL,
  channel_id TEXT NOT NULL DEFAULT '',
  updated_at TEXT NOT NULL
);`

// SQLiteStore persists confirmed channel identifiers across restarts, so a
// previously watched channel never needs a rediscovery round trip. Guessed
// identifiers are never written here.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	if _, err := db.Exec(storeSchema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "apply schema")
	}
	if _, err := db.Exec(`PRAGMA journal_mode=wal;`); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "set WAL")
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) Load(ctx context.Context, channel string) (Identifiers, bool, error) {
	const q = `SELECT chatroom_id, channel_id FROM channel_identifiers WHERE channel = ?;`
	var chatroomID, channelID string
	err := s.db.QueryRowContext(ctx, q, cacheKey(channel)).Scan(&chatroomID, &channelID)
	if err == sql.ErrNoRows {
		return Identifiers{}, false, nil
	}
	if err != nil {
		return Identifiers{}, false, errors.Wrap(err, "load identifiers")
	}
	return Identifiers{
		Chatroom: Identifier{Value: chatroomID},
		Channel:  Identifier{Value: channelID},
	}, true, nil
}

func (s *SQLiteStore) Save(ctx context.Context, channel string, ids Identifiers) error {
	if !ids.Chatroom.Known() || ids.Chatroom.Guessed {
		return nil
	}
	channelID := ""
	if ids.Channel.Known() && !ids.Channel.Guessed {
		channelID = ids.Channel.Value
	}
	const q = `INSERT INTO channel_identifiers (channel, chatroom_id, channel_id, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(channel) DO UPDATE SET
  chatroom_id = excluded.chatroom_id,
  channel_id = CASE WHEN excluded.channel_id != '' THEN excluded.channel_id ELSE channel_identifiers.channel_id END,
  updated_at = excluded.updated_at;`
	_, err := s.db.ExecContext(ctx, q, cacheKey(channel), ids.Chatroom.Value, channelID,
		time.Now().UTC().Format(time.RFC3339Nano))
	return errors.Wrap(err, "save identifiers")
}
