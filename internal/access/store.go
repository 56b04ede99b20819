package access

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/garagegate/internal/door"
)

// PlateStore is the authorised plate list. The vision pipeline only reads
// it; writes come from configuration seeding.
type PlateStore interface {
	// Lookup returns the record for an already-cleaned plate, or
	// ErrPlateNotAuthorized.
	Lookup(ctx context.Context, plate string) (*door.AuthorizationRecord, error)

	// List returns every authorised plate ordered by plate.
	List(ctx context.Context) ([]door.AuthorizationRecord, error)
}

// SQLitePlateStore implements PlateStore over the authorized_plates table.
type SQLitePlateStore struct {
	db *sql.DB
}

// NewSQLitePlateStore creates a plate store on an open database.
func NewSQLitePlateStore(db *sql.DB) *SQLitePlateStore {
	return &SQLitePlateStore{db: db}
}

// Lookup implements PlateStore.
func (s *SQLitePlateStore) Lookup(ctx context.Context, plate string) (*door.AuthorizationRecord, error) {
	plate = CleanPlate(plate)
	if plate == "" {
		return nil, ErrInvalidPlate
	}

	var metadataJSON, createdAt string
	err := s.db.QueryRowContext(ctx,
		"SELECT metadata, created_at FROM authorized_plates WHERE plate_id = ?",
		plate,
	).Scan(&metadataJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlateNotAuthorized
	}
	if err != nil {
		return nil, fmt.Errorf("querying plate: %w", err)
	}

	return buildRecord(plate, metadataJSON, createdAt)
}

// List implements PlateStore.
func (s *SQLitePlateStore) List(ctx context.Context) ([]door.AuthorizationRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT plate_id, metadata, created_at FROM authorized_plates ORDER BY plate_id",
	)
	if err != nil {
		return nil, fmt.Errorf("querying plates: %w", err)
	}
	defer rows.Close()

	var records []door.AuthorizationRecord
	for rows.Next() {
		var plate, metadataJSON, createdAt string
		if err := rows.Scan(&plate, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning plate: %w", err)
		}
		rec, err := buildRecord(plate, metadataJSON, createdAt)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating plates: %w", err)
	}
	return records, nil
}

// Upsert stores a plate, replacing the metadata of an existing entry.
// The plate is cleaned first; it returns the stored key.
func (s *SQLitePlateStore) Upsert(ctx context.Context, plate string, metadata map[string]string) (string, error) {
	key := CleanPlate(plate)
	if key == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidPlate, plate)
	}
	if metadata == nil {
		metadata = map[string]string{}
	}
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return "", fmt.Errorf("marshalling metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO authorized_plates (plate_id, metadata, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(plate_id) DO UPDATE SET metadata = excluded.metadata`,
		key,
		string(metadataJSON),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return "", fmt.Errorf("upserting plate: %w", err)
	}
	return key, nil
}

// Count returns the number of authorised plates.
func (s *SQLitePlateStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM authorized_plates").Scan(&n); err != nil {
		return 0, fmt.Errorf("counting plates: %w", err)
	}
	return n, nil
}

func buildRecord(plate, metadataJSON, createdAt string) (*door.AuthorizationRecord, error) {
	rec := &door.AuthorizationRecord{PlateID: plate}
	if metadataJSON != "" {
		if err := json.Unmarshal([]byte(metadataJSON), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshalling plate metadata: %w", err)
		}
	}
	ts, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	rec.CreatedAt = ts
	return rec, nil
}
