package database

// Message cache queries
const (
	upsertMessageQuery = `
		INSERT INTO messages (
			id, sender_id, receiver_id, type, content, image_url, audio_url,
			metadata, status, reply_to, reactions, idempotency_key,
			created_at, edited_at, deleted_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			content = excluded.content,
			image_url = excluded.image_url,
			audio_url = excluded.audio_url,
			metadata = excluded.metadata,
			status = excluded.status,
			reactions = excluded.reactions,
			edited_at = excluded.edited_at,
			deleted_at = excluded.deleted_at,
			cached_at = CURRENT_TIMESTAMP
	`

	selectConversationQuery = `
		SELECT id, sender_id, receiver_id, type, content, image_url, audio_url,
			   metadata, status, reply_to, reactions, idempotency_key,
			   created_at, edited_at, deleted_at
		FROM messages
		WHERE (sender_id = ? AND receiver_id = ?)
		   OR (sender_id = ? AND receiver_id = ?)
		ORDER BY created_at ASC
	`

	selectMessageByIDQuery = `
		SELECT id, sender_id, receiver_id, type, content, image_url, audio_url,
			   metadata, status, reply_to, reactions, idempotency_key,
			   created_at, edited_at, deleted_at
		FROM messages
		WHERE id = ?
	`

	updateStatusQuery = `
		UPDATE messages
		SET status = ?, cached_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	tombstoneMessageQuery = `
		UPDATE messages
		SET content = ?, type = 'text', image_url = NULL, audio_url = NULL,
		    metadata = NULL, deleted_at = ?, cached_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	deleteOldMessagesQuery = `
		DELETE FROM messages
		WHERE cached_at < datetime('now', '-' || ? || ' days')
	`
)
