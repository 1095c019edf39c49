package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"courierchat/internal/migrations"
	"courierchat/internal/models"

	_ "github.com/mattn/go-sqlite3"
)

// Database is the local conversation cache. Confirmed messages are written
// through so a session can render history offline and reconcile after a
// polling refresh. Message bodies and media URLs are encrypted at rest when
// a cache secret is configured.
type Database struct {
	db        *sql.DB
	encryptor *encryptor
}

func New(dbPath string) (*Database, error) {
	if len(dbPath) == 0 || dbPath[0] == '\x00' {
		return nil, fmt.Errorf("invalid database path")
	}

	file, err := os.OpenFile(dbPath, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create database file: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close database file: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping database: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.Exec(migrations.GetInitialSchema()); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize schema: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	encryptor, err := newEncryptor()
	if err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to initialize encryptor: %w (close error: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to initialize encryptor: %w", err)
	}

	return &Database{db: db, encryptor: encryptor}, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// SaveMessage upserts a confirmed message. Only server-confirmed records
// belong in the cache; unconfirmed optimistic entries are rejected.
func (d *Database) SaveMessage(ctx context.Context, msg *models.Message) error {
	if msg.Ref.Server == "" {
		return fmt.Errorf("refusing to cache unconfirmed message %s", msg.Ref.String())
	}

	content, err := d.encryptor.EncryptIfEnabled(msg.Content)
	if err != nil {
		return fmt.Errorf("failed to encrypt content: %w", err)
	}
	imageURL, err := d.encryptor.EncryptIfEnabled(msg.ImageURL)
	if err != nil {
		return fmt.Errorf("failed to encrypt image URL: %w", err)
	}
	audioURL, err := d.encryptor.EncryptIfEnabled(msg.AudioURL)
	if err != nil {
		return fmt.Errorf("failed to encrypt audio URL: %w", err)
	}

	metadata, err := marshalNullable(msg.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	reactions, err := marshalNullable(msg.Reactions)
	if err != nil {
		return fmt.Errorf("failed to marshal reactions: %w", err)
	}

	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, upsertMessageQuery,
			msg.Ref.Server,
			msg.SenderID,
			msg.ReceiverID,
			string(msg.Type),
			content,
			nullableString(imageURL),
			nullableString(audioURL),
			metadata,
			string(msg.Status),
			nullableString(msg.ReplyTo),
			reactions,
			nullableString(msg.IdempotencyKey),
			msg.CreatedAt.UTC(),
			nullableTime(msg.EditedAt),
			nullableTime(msg.DeletedAt),
		)
		return err
	}, "save message")
}

// GetConversation returns all cached messages between the two users,
// ascending by created_at. Zero rows yield an empty slice, not an error.
func (d *Database) GetConversation(ctx context.Context, userA, userB string) ([]models.Message, error) {
	rows, err := d.db.QueryContext(ctx, selectConversationQuery, userA, userB, userB, userA)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var messages []models.Message
	for rows.Next() {
		msg, err := d.scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate conversation rows: %w", err)
	}
	return messages, nil
}

// GetMessageByID returns the cached message, or nil when absent.
func (d *Database) GetMessageByID(ctx context.Context, id string) (*models.Message, error) {
	rows, err := d.db.QueryContext(ctx, selectMessageByIDQuery, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query message: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return d.scanMessage(rows)
}

// UpdateStatus replaces only the status field of a cached message.
func (d *Database) UpdateStatus(ctx context.Context, id string, status models.MessageStatus) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, updateStatusQuery, string(status), id)
		return err
	}, "update status")
}

// Tombstone soft-deletes a cached message, mirroring the server rewrite.
func (d *Database) Tombstone(ctx context.Context, id string, deletedAt time.Time) error {
	content, err := d.encryptor.EncryptIfEnabled(models.DeletedTombstone)
	if err != nil {
		return fmt.Errorf("failed to encrypt tombstone: %w", err)
	}
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, tombstoneMessageQuery, content, deletedAt.UTC(), id)
		return err
	}, "tombstone message")
}

// DeleteOldMessages removes cache rows older than the retention window.
func (d *Database) DeleteOldMessages(ctx context.Context, retentionDays int) error {
	return retryableDBOperation(ctx, func() error {
		_, err := d.db.ExecContext(ctx, deleteOldMessagesQuery, retentionDays)
		return err
	}, "delete old messages")
}

func (d *Database) scanMessage(rows *sql.Rows) (*models.Message, error) {
	var (
		msg                       models.Message
		serverID, msgType, status string
		content                   sql.NullString
		imageURL, audioURL        sql.NullString
		metadata, reactions       sql.NullString
		replyTo, idempotencyKey   sql.NullString
		editedAt, deletedAt       sql.NullTime
	)

	if err := rows.Scan(
		&serverID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msgType,
		&content,
		&imageURL,
		&audioURL,
		&metadata,
		&status,
		&replyTo,
		&reactions,
		&idempotencyKey,
		&msg.CreatedAt,
		&editedAt,
		&deletedAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan message row: %w", err)
	}

	msg.Ref = models.ServerRef(serverID)
	msg.Type = models.MessageType(msgType)
	msg.Status = models.MessageStatus(status)
	msg.ReplyTo = replyTo.String
	msg.IdempotencyKey = idempotencyKey.String

	decContent, err := d.encryptor.DecryptIfEnabled(content.String)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt content: %w", err)
	}
	msg.Content = decContent

	decImage, err := d.encryptor.DecryptIfEnabled(imageURL.String)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt image URL: %w", err)
	}
	msg.ImageURL = decImage

	decAudio, err := d.encryptor.DecryptIfEnabled(audioURL.String)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt audio URL: %w", err)
	}
	msg.AudioURL = decAudio

	if metadata.Valid && metadata.String != "" {
		var meta models.MediaMetadata
		if err := json.Unmarshal([]byte(metadata.String), &meta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
		msg.Metadata = &meta
	}
	if reactions.Valid && reactions.String != "" {
		if err := json.Unmarshal([]byte(reactions.String), &msg.Reactions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal reactions: %w", err)
		}
	}
	if editedAt.Valid {
		t := editedAt.Time
		msg.EditedAt = &t
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		msg.DeletedAt = &t
	}

	return &msg, nil
}

func marshalNullable(v interface{}) (interface{}, error) {
	switch val := v.(type) {
	case *models.MediaMetadata:
		if val == nil {
			return nil, nil
		}
	case map[string]int:
		if len(val) == 0 {
			return nil, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}
