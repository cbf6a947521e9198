// Package postgres provides a PostgreSQL implementation of RaceStore.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/midoshouse/racebot"
	"github.com/midoshouse/racebot/store"
)

// Store is a PostgreSQL implementation of RaceStore. It provides
// persistent storage for races, rolled seeds and the pre-roll cache.
type Store struct {
	db             *sql.DB
	racesTable     string
	seedsTable     string
	prerolledTable string
}

// New creates a new PostgreSQL store with default table names.
func New(db *sql.DB) *Store {
	return NewWithConfig(db, DefaultTableConfig())
}

// NewWithConfig creates a new PostgreSQL store with custom table names.
func NewWithConfig(db *sql.DB, config TableConfig) *Store {
	return &Store{
		db:             db,
		racesTable:     config.RacesTable,
		seedsTable:     config.SeedsTable,
		prerolledTable: config.PrerolledSeedsTable,
	}
}

var _ store.RaceStore = (*Store)(nil)

// CreateRace records a scheduled race and returns it with ID and
// CreatedAt assigned.
func (s *Store) CreateRace(ctx context.Context, race store.Race) (store.Race, error) {
	query := fmt.Sprintf(`
		INSERT INTO %s (event, goal, start_time, room_url)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, s.racesTable)

	err := s.db.QueryRowContext(ctx, query, race.Event, race.Goal, race.Start, race.RoomURL).Scan(
		&race.ID,
		&race.CreatedAt,
	)
	if err != nil {
		return store.Race{}, fmt.Errorf("failed to create race: %w", err)
	}

	return race, nil
}

// Race returns a race by ID.
// Returns store.ErrRaceNotFound if the race does not exist.
func (s *Store) Race(ctx context.Context, id int64) (store.Race, error) {
	query := fmt.Sprintf(`
		SELECT id, event, goal, start_time, room_url, created_at
		FROM %s
		WHERE id = $1
	`, s.racesTable)

	var race store.Race
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&race.ID,
		&race.Event,
		&race.Goal,
		&race.Start,
		&race.RoomURL,
		&race.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Race{}, store.ErrRaceNotFound
	}
	if err != nil {
		return store.Race{}, fmt.Errorf("failed to get race: %w", err)
	}

	return race, nil
}

// SetRoomURL records the race room opened for a race.
// Returns store.ErrRaceNotFound if the race does not exist.
func (s *Store) SetRoomURL(ctx context.Context, raceID int64, roomURL string) error {
	query := fmt.Sprintf(`
		UPDATE %s
		SET room_url = $2
		WHERE id = $1
	`, s.racesTable)

	result, err := s.db.ExecContext(ctx, query, raceID, roomURL)
	if err != nil {
		return fmt.Errorf("failed to set room URL: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrRaceNotFound
	}

	return nil
}

// RacesDueForRooms returns races without a room whose scheduled start
// is at or before openBefore, ordered by start time.
func (s *Store) RacesDueForRooms(ctx context.Context, openBefore time.Time) ([]store.Race, error) {
	query := fmt.Sprintf(`
		SELECT id, event, goal, start_time, room_url, created_at
		FROM %s
		WHERE room_url = '' AND start_time <= $1
		ORDER BY start_time
	`, s.racesTable)

	rows, err := s.db.QueryContext(ctx, query, openBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to query due races: %w", err)
	}
	defer rows.Close()

	races := []store.Race{}
	for rows.Next() {
		var race store.Race
		if err := rows.Scan(&race.ID, &race.Event, &race.Goal, &race.Start, &race.RoomURL, &race.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan race: %w", err)
		}
		races = append(races, race)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate due races: %w", err)
	}

	return races, nil
}

// seedColumns is the column list shared by the seeds and prerolled
// seeds tables, in scan order.
const seedColumns = "storage, file_stem, locked_spoiler_path, web_id, gen_time, tfb_uuid, daily_date, daily_ordinal, hash1, hash2, hash3, hash4, hash5, password"

func seedArgs(seed *racebot.SeedRecord) []any {
	var genTime sql.NullTime
	if !seed.GenTime.IsZero() {
		genTime = sql.NullTime{Time: seed.GenTime, Valid: true}
	}
	var tfbUUID sql.NullString
	if seed.ThirdPartyID != uuid.Nil {
		tfbUUID = sql.NullString{String: seed.ThirdPartyID.String(), Valid: true}
	}
	var dailyDate sql.NullTime
	if !seed.DailyDate.IsZero() {
		dailyDate = sql.NullTime{Time: seed.DailyDate, Valid: true}
	}

	hash := make([]sql.NullString, 5)
	for i := 0; i < len(seed.FileHash) && i < 5; i++ {
		hash[i] = sql.NullString{String: string(seed.FileHash[i]), Valid: true}
	}

	password := make([]byte, len(seed.Password))
	for i, note := range seed.Password {
		password[i] = byte(note)
	}

	return []any{
		string(seed.Storage),
		seed.FileStem,
		seed.LockedSpoilerPath,
		seed.WebID,
		genTime,
		tfbUUID,
		dailyDate,
		seed.DailyOrdinal,
		hash[0], hash[1], hash[2], hash[3], hash[4],
		string(password),
	}
}

func scanSeed(scan func(dest ...any) error) (*racebot.SeedRecord, error) {
	var (
		seed      racebot.SeedRecord
		storage   string
		genTime   sql.NullTime
		tfbUUID   sql.NullString
		dailyDate sql.NullTime
		hash      [5]sql.NullString
		password  string
	)
	err := scan(
		&storage,
		&seed.FileStem,
		&seed.LockedSpoilerPath,
		&seed.WebID,
		&genTime,
		&tfbUUID,
		&dailyDate,
		&seed.DailyOrdinal,
		&hash[0], &hash[1], &hash[2], &hash[3], &hash[4],
		&password,
	)
	if err != nil {
		return nil, err
	}

	seed.Storage = racebot.StorageKind(storage)
	if genTime.Valid {
		seed.GenTime = genTime.Time
	}
	if tfbUUID.Valid {
		id, err := uuid.Parse(tfbUUID.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse seed uuid: %w", err)
		}
		seed.ThirdPartyID = id
	}
	if dailyDate.Valid {
		seed.DailyDate = dailyDate.Time
	}
	for _, h := range hash {
		if h.Valid {
			seed.FileHash = append(seed.FileHash, racebot.HashIcon(h.String))
		}
	}
	for i := 0; i < len(password); i++ {
		seed.Password = append(seed.Password, racebot.OcarinaNote(password[i]))
	}

	return &seed, nil
}

// SaveSeed persists the seed rolled for a race, replacing any earlier
// record for the same race.
func (s *Store) SaveSeed(ctx context.Context, raceID int64, seed *racebot.SeedRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (race_id, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (race_id) DO UPDATE SET
			storage = EXCLUDED.storage,
			file_stem = EXCLUDED.file_stem,
			locked_spoiler_path = EXCLUDED.locked_spoiler_path,
			web_id = EXCLUDED.web_id,
			gen_time = EXCLUDED.gen_time,
			tfb_uuid = EXCLUDED.tfb_uuid,
			daily_date = EXCLUDED.daily_date,
			daily_ordinal = EXCLUDED.daily_ordinal,
			hash1 = EXCLUDED.hash1,
			hash2 = EXCLUDED.hash2,
			hash3 = EXCLUDED.hash3,
			hash4 = EXCLUDED.hash4,
			hash5 = EXCLUDED.hash5,
			password = EXCLUDED.password
	`, s.seedsTable, seedColumns)

	args := append([]any{raceID}, seedArgs(seed)...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save seed: %w", err)
	}

	return nil
}

// Seed returns the seed rolled for a race.
// Returns store.ErrSeedNotFound if no seed has been saved for the race.
func (s *Store) Seed(ctx context.Context, raceID int64) (*racebot.SeedRecord, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE race_id = $1
	`, seedColumns, s.seedsTable)

	seed, err := scanSeed(s.db.QueryRowContext(ctx, query, raceID).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSeedNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get seed: %w", err)
	}

	return seed, nil
}

// CachePrerolledSeed adds a seed to the pre-roll cache for a goal.
func (s *Store) CachePrerolledSeed(ctx context.Context, goal string, seed *racebot.SeedRecord) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (goal, %s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, s.prerolledTable, seedColumns)

	args := append([]any{goal}, seedArgs(seed)...)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to cache prerolled seed: %w", err)
	}

	return nil
}

// TakePrerolledSeed removes and returns the oldest cached seed for a
// goal. Returns store.ErrNoPrerolledSeed if the cache is empty.
// SKIP LOCKED keeps concurrent takers from racing for the same row.
func (s *Store) TakePrerolledSeed(ctx context.Context, goal string) (*racebot.SeedRecord, error) {
	query := fmt.Sprintf(`
		DELETE FROM %[1]s
		WHERE id = (
			SELECT id FROM %[1]s
			WHERE goal = $1
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING %[2]s
	`, s.prerolledTable, seedColumns)

	seed, err := scanSeed(s.db.QueryRowContext(ctx, query, goal).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoPrerolledSeed
	}
	if err != nil {
		return nil, fmt.Errorf("failed to take prerolled seed: %w", err)
	}

	return seed, nil
}
