package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"verba.town/etc"
)

var ErrNotFound = errors.New("not found")

// Transcription is one recording's metadata. Immutable once created.
type Transcription struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

// TranscriptSegment is one finalized piece of a transcription. Speaker
// is empty when the provider attributed no speaker.
type TranscriptSegment struct {
	ID              string
	TranscriptionID string
	Text            string
	Speaker         string
	StartTime       float64
	EndTime         float64
	IsFinal         bool
	CreatedAt       time.Time
}

type AppendSegmentParams struct {
	Text      string
	Speaker   string
	StartTime float64
	EndTime   float64
	IsFinal   bool
}

func (s *Store) CreateTranscription(ctx context.Context, title string) (Transcription, error) {
	var t Transcription
	err := s.pool.QueryRow(ctx, `
		INSERT INTO transcriptions (id, title)
		VALUES ($1, $2)
		RETURNING id, title, created_at`,
		etc.NewFreshID(), title,
	).Scan(&t.ID, &t.Title, &t.CreatedAt)
	if err != nil {
		return Transcription{}, fmt.Errorf("create transcription: %w", err)
	}
	return t, nil
}

func (s *Store) GetTranscription(ctx context.Context, id string) (Transcription, error) {
	var t Transcription
	err := s.pool.QueryRow(ctx, `
		SELECT id, title, created_at
		FROM transcriptions
		WHERE id = $1`,
		id,
	).Scan(&t.ID, &t.Title, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transcription{}, fmt.Errorf("transcription %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Transcription{}, fmt.Errorf("get transcription: %w", err)
	}
	return t, nil
}

func (s *Store) ListTranscriptions(ctx context.Context) ([]Transcription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, title, created_at
		FROM transcriptions
		ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list transcriptions: %w", err)
	}
	defer rows.Close()

	transcriptions := make([]Transcription, 0)
	for rows.Next() {
		var t Transcription
		if err := rows.Scan(&t.ID, &t.Title, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan transcription: %w", err)
		}
		transcriptions = append(transcriptions, t)
	}
	return transcriptions, rows.Err()
}

// ListSegments returns a transcription's segments ordered by start time.
func (s *Store) ListSegments(ctx context.Context, transcriptionID string) ([]TranscriptSegment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, transcription_id, text, COALESCE(speaker, ''),
		       start_time, end_time, is_final, created_at
		FROM transcript_segments
		WHERE transcription_id = $1
		ORDER BY start_time`,
		transcriptionID,
	)
	if err != nil {
		return nil, fmt.Errorf("list segments: %w", err)
	}
	defer rows.Close()

	segments := make([]TranscriptSegment, 0)
	for rows.Next() {
		var seg TranscriptSegment
		if err := rows.Scan(
			&seg.ID, &seg.TranscriptionID, &seg.Text, &seg.Speaker,
			&seg.StartTime, &seg.EndTime, &seg.IsFinal, &seg.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segments = append(segments, seg)
	}
	return segments, rows.Err()
}

func (s *Store) AppendSegment(
	ctx context.Context,
	transcriptionID string,
	params AppendSegmentParams,
) (TranscriptSegment, error) {
	var seg TranscriptSegment
	err := s.pool.QueryRow(ctx, `
		INSERT INTO transcript_segments
			(id, transcription_id, text, speaker, start_time, end_time, is_final)
		VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6, $7)
		RETURNING id, transcription_id, text, COALESCE(speaker, ''),
		          start_time, end_time, is_final, created_at`,
		etc.NewFreshID(), transcriptionID, params.Text, params.Speaker,
		params.StartTime, params.EndTime, params.IsFinal,
	).Scan(
		&seg.ID, &seg.TranscriptionID, &seg.Text, &seg.Speaker,
		&seg.StartTime, &seg.EndTime, &seg.IsFinal, &seg.CreatedAt,
	)
	if err != nil {
		return TranscriptSegment{}, fmt.Errorf("append segment: %w", err)
	}
	return seg, nil
}

// Config table accessors, used by the config package.

type ConfigEntry struct {
	Key   string
	Value string
}

func (s *Store) GetAllConfig(ctx context.Context) ([]ConfigEntry, error) {
	rows, err := s.pool.Query(ctx, `SELECT key, value FROM config`)
	if err != nil {
		return nil, fmt.Errorf("get all config: %w", err)
	}
	defer rows.Close()

	entries := make([]ConfigEntry, 0)
	for rows.Next() {
		var e ConfigEntry
		if err := rows.Scan(&e.Key, &e.Value); err != nil {
			return nil, fmt.Errorf("scan config entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *Store) GetConfigValue(ctx context.Context, key string) (string, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM config WHERE key = $1`, key).
		Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("config key %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get config value: %w", err)
	}
	return value, nil
}

func (s *Store) SetConfigValue(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO config (key, value)
		VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set config value: %w", err)
	}
	return nil
}
