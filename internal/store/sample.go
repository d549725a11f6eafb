package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/forest"
)

// Sample represents one labeled feature vector stored in the database.
type Sample struct {
	ID        int64     `json:"id"`
	Kind      string    `json:"kind"`
	Label     string    `json:"label"`
	Features  []float64 `json:"features"`
	BatchID   string    `json:"batch_id"`
	CreatedAt time.Time `json:"created_at"`
}

// SampleRepository provides operations on training samples.
type SampleRepository struct {
	db *sql.DB
}

// Samples returns the sample repository for this store.
func (s *Store) Samples() *SampleRepository {
	return &SampleRepository{db: s.db}
}

// Append inserts labeled vectors for kind in a single transaction and returns
// the number inserted. An empty batchID is replaced with a fresh UUID.
func (r *SampleRepository) Append(kind, batchID string, features [][]float64, labels []string) (int, error) {
	if len(features) != len(labels) {
		return 0, fmt.Errorf("%w: %d vectors, %d labels", forest.ErrLabelLengthMismatch, len(features), len(labels))
	}
	if batchID == "" {
		batchID = uuid.New().String()
	}

	tx, err := r.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO training_samples (kind, label, features, batch_id, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	now := time.Now()
	for i, v := range features {
		data, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("encode sample %d: %w", i, err)
		}
		if _, err := stmt.Exec(kind, labels[i], string(data), batchID, now); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(features), nil
}

// List retrieves all samples for kind in insertion order.
func (r *SampleRepository) List(kind string) ([]Sample, error) {
	rows, err := r.db.Query(
		`SELECT id, kind, label, features, batch_id, created_at
		 FROM training_samples
		 WHERE kind = ?
		 ORDER BY id`,
		kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var samples []Sample
	for rows.Next() {
		var s Sample
		var data string
		if err := rows.Scan(&s.ID, &s.Kind, &s.Label, &data, &s.BatchID, &s.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(data), &s.Features); err != nil {
			return nil, fmt.Errorf("decode sample %d: %w", s.ID, err)
		}
		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return samples, nil
}

// TrainingSet returns the samples of kind as a training set in insertion order.
func (r *SampleRepository) TrainingSet(kind string) (forest.TrainingSet, error) {
	samples, err := r.List(kind)
	if err != nil {
		return forest.TrainingSet{}, err
	}

	set := forest.TrainingSet{
		Features: make([][]float64, 0, len(samples)),
		Labels:   make([]string, 0, len(samples)),
	}
	for _, s := range samples {
		set.Append(s.Features, s.Label)
	}
	return set, nil
}

// Count returns the number of samples stored for kind.
func (r *SampleRepository) Count(kind string) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM training_samples WHERE kind = ?`, kind).Scan(&n)
	return n, err
}

// CountByLabel returns the number of samples per label for kind.
func (r *SampleRepository) CountByLabel(kind string) (map[string]int, error) {
	rows, err := r.db.Query(
		`SELECT label, COUNT(*) FROM training_samples WHERE kind = ? GROUP BY label`,
		kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return nil, err
		}
		counts[label] = n
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return counts, nil
}

// DeleteByKind removes all samples for kind and returns how many were removed.
func (r *SampleRepository) DeleteByKind(kind string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM training_samples WHERE kind = ?`, kind)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// DeleteBatch removes the samples inserted under batchID.
func (r *SampleRepository) DeleteBatch(batchID string) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM training_samples WHERE batch_id = ?`, batchID)
	if err != nil {
		return 0, err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}
