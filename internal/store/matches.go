package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trawler/internal/match"
)

const matchColumns = "match_id, seq_num, start_time, duration, winner, radiant_score, dire_score, region, winning_draft, replay_salt, replay_url, raw_payload, created_at"

// Put inserts a match record. It reports whether a new row was written;
// an already-stored match id leaves the table untouched and returns false,
// so re-committing a batch after a crash cannot duplicate rows.
func (s *Store) Put(ctx context.Context, rec match.Persisted) (bool, error) {
	if rec.MatchID <= 0 {
		return false, fmt.Errorf("put match: non-positive match id %d", rec.MatchID)
	}
	if rec.SeqNum <= 0 {
		return false, fmt.Errorf("put match %d: non-positive sequence number %d", rec.MatchID, rec.SeqNum)
	}
	if len(rec.WinningDraft) != 5 {
		return false, fmt.Errorf("put match %d: winning draft has %d picks, want 5", rec.MatchID, len(rec.WinningDraft))
	}

	draft, err := json.Marshal(rec.WinningDraft)
	if err != nil {
		return false, fmt.Errorf("put match %d: encode draft: %w", rec.MatchID, err)
	}
	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.execWithRetry(
		ctx,
		`INSERT OR IGNORE INTO matches (
            match_id, seq_num, start_time, duration, winner, radiant_score,
            dire_score, region, winning_draft, replay_salt, replay_url,
            raw_payload, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.MatchID,
		rec.SeqNum,
		rec.StartTime,
		rec.Duration,
		string(rec.Winner),
		rec.RadiantScore,
		rec.DireScore,
		rec.Region,
		string(draft),
		rec.ReplaySalt,
		rec.ReplayURL,
		string(rec.RawPayload),
		createdAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return false, fmt.Errorf("insert match %d: %w", rec.MatchID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// Has reports whether a match id is already stored.
func (s *Store) Has(ctx context.Context, matchID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM matches WHERE match_id = ?`, matchID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("check match %d: %w", matchID, err)
	}
	return true, nil
}

// Get fetches a stored match by id, or nil when absent.
func (s *Store) Get(ctx context.Context, matchID int64) (*match.Persisted, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+matchColumns+` FROM matches WHERE match_id = ?`, matchID)
	rec, err := scanMatch(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get match %d: %w", matchID, err)
	}
	return &rec, nil
}

// ListAfter returns up to limit matches with id greater than afterMatchID in
// ascending id order. Callers page through the table by passing the last id
// of the previous page.
func (s *Store) ListAfter(ctx context.Context, afterMatchID int64, limit int) ([]match.Persisted, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+matchColumns+` FROM matches WHERE match_id > ? ORDER BY match_id LIMIT ?`,
		afterMatchID,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list matches: %w", err)
	}
	defer rows.Close()

	var records []match.Persisted
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Recent returns up to limit matches in descending id order, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]match.Persisted, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+matchColumns+` FROM matches ORDER BY match_id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent matches: %w", err)
	}
	defer rows.Close()

	var records []match.Persisted
	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Each walks every stored match in ascending id order, stopping at the first
// error returned by fn.
func (s *Store) Each(ctx context.Context, fn func(match.Persisted) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+matchColumns+` FROM matches ORDER BY match_id`)
	if err != nil {
		return fmt.Errorf("walk matches: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanMatch(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// EachID walks every stored match id in ascending order. It reads only the
// primary key, so warming an in-memory id set does not page raw payloads.
func (s *Store) EachID(ctx context.Context, fn func(matchID int64) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT match_id FROM matches ORDER BY match_id`)
	if err != nil {
		return fmt.Errorf("walk match ids: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan match id: %w", err)
		}
		if err := fn(id); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Count returns the number of stored matches.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM matches`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count matches: %w", err)
	}
	return count, nil
}

// Stats summarizes the stored corpus for diagnostic output.
type Stats struct {
	Matches     int64
	MinSeqNum   int64
	MaxSeqNum   int64
	OldestStart time.Time
	NewestStart time.Time
	LastInsert  time.Time
}

// Stats aggregates corpus-wide counters in a single query.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var (
		stats      Stats
		minSeq     sql.NullInt64
		maxSeq     sql.NullInt64
		minStart   sql.NullInt64
		maxStart   sql.NullInt64
		lastInsert sql.NullString
	)
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1), MIN(seq_num), MAX(seq_num), MIN(start_time), MAX(start_time), MAX(created_at) FROM matches`,
	).Scan(&stats.Matches, &minSeq, &maxSeq, &minStart, &maxStart, &lastInsert)
	if err != nil {
		return Stats{}, fmt.Errorf("match stats: %w", err)
	}
	stats.MinSeqNum = minSeq.Int64
	stats.MaxSeqNum = maxSeq.Int64
	if minStart.Valid {
		stats.OldestStart = time.Unix(minStart.Int64, 0).UTC()
	}
	if maxStart.Valid {
		stats.NewestStart = time.Unix(maxStart.Int64, 0).UTC()
	}
	if lastInsert.Valid {
		if t, err := time.Parse(time.RFC3339Nano, lastInsert.String); err == nil {
			stats.LastInsert = t
		}
	}
	return stats, nil
}

func scanMatch(scanner interface{ Scan(dest ...any) error }) (match.Persisted, error) {
	var (
		rec        match.Persisted
		winner     string
		draftRaw   string
		payloadRaw string
		createdRaw string
	)
	if err := scanner.Scan(
		&rec.MatchID,
		&rec.SeqNum,
		&rec.StartTime,
		&rec.Duration,
		&winner,
		&rec.RadiantScore,
		&rec.DireScore,
		&rec.Region,
		&draftRaw,
		&rec.ReplaySalt,
		&rec.ReplayURL,
		&payloadRaw,
		&createdRaw,
	); err != nil {
		return match.Persisted{}, err
	}

	rec.Winner = match.Team(winner)
	if err := json.Unmarshal([]byte(draftRaw), &rec.WinningDraft); err != nil {
		return match.Persisted{}, fmt.Errorf("decode draft for match %d: %w", rec.MatchID, err)
	}
	rec.RawPayload = []byte(payloadRaw)
	if created, err := time.Parse(time.RFC3339Nano, createdRaw); err == nil {
		rec.CreatedAt = created
	}
	return rec, nil
}
