package migrations

// Schema for the local conversation cache. Applied idempotently at open.
const initialSchema = `
CREATE TABLE IF NOT EXISTS messages (
    id TEXT PRIMARY KEY,
    sender_id TEXT NOT NULL,
    receiver_id TEXT NOT NULL,
    type TEXT NOT NULL,
    content TEXT,
    image_url TEXT,
    audio_url TEXT,
    metadata TEXT,
    status TEXT NOT NULL,
    reply_to TEXT,
    reactions TEXT,
    idempotency_key TEXT,
    created_at TIMESTAMP NOT NULL,
    edited_at TIMESTAMP,
    deleted_at TIMESTAMP,
    cached_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_messages_pair_time
    ON messages(sender_id, receiver_id, created_at);

CREATE INDEX IF NOT EXISTS idx_messages_cached_at
    ON messages(cached_at);
`

// GetInitialSchema returns the initial database schema
func GetInitialSchema() string {
	return initialSchema
}
