package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/mudra/internal/forest"
)

// ModelRecord is a serialized forest with its training metadata.
type ModelRecord struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Schema    string    `json:"schema"`
	NumTrees  int       `json:"num_trees"`
	Accuracy  float64   `json:"accuracy"`
	Samples   int       `json:"samples"`
	Data      []byte    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// ModelRepository provides operations on trained models.
type ModelRepository struct {
	db *sql.DB
}

// Models returns the model repository for this store.
func (s *Store) Models() *ModelRepository {
	return &ModelRepository{db: s.db}
}

// Save inserts rec, assigning an ID and creation time when unset.
func (r *ModelRepository) Save(rec *ModelRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err := r.db.Exec(
		`INSERT INTO models (id, kind, schema, num_trees, accuracy, samples, data, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.Schema, rec.NumTrees, rec.Accuracy, rec.Samples, rec.Data, rec.CreatedAt,
	)
	return err
}

// Latest retrieves the newest model for kind, including its data.
func (r *ModelRepository) Latest(kind string) (*ModelRecord, error) {
	rec := &ModelRecord{}

	err := r.db.QueryRow(
		`SELECT id, kind, schema, num_trees, accuracy, samples, data, created_at
		 FROM models WHERE kind = ?
		 ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		kind,
	).Scan(&rec.ID, &rec.Kind, &rec.Schema, &rec.NumTrees, &rec.Accuracy, &rec.Samples, &rec.Data, &rec.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	return rec, nil
}

// List retrieves model metadata for kind, newest first. Data is not loaded.
func (r *ModelRepository) List(kind string) ([]*ModelRecord, error) {
	rows, err := r.db.Query(
		`SELECT id, kind, schema, num_trees, accuracy, samples, created_at
		 FROM models WHERE kind = ?
		 ORDER BY created_at DESC, rowid DESC`,
		kind,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*ModelRecord
	for rows.Next() {
		rec := &ModelRecord{}
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Schema, &rec.NumTrees, &rec.Accuracy, &rec.Samples, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return records, nil
}

// Delete removes a model by ID.
func (r *ModelRepository) Delete(id string) error {
	result, err := r.db.Exec(`DELETE FROM models WHERE id = ?`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrNotFound
	}

	return nil
}

// Prune deletes all but the newest keep models of kind.
func (r *ModelRepository) Prune(kind string, keep int) (int64, error) {
	result, err := r.db.Exec(
		`DELETE FROM models WHERE kind = ? AND id NOT IN (
			SELECT id FROM models WHERE kind = ? ORDER BY created_at DESC, rowid DESC LIMIT ?
		)`,
		kind, kind, keep,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// SaveModel serializes f and stores it as the newest model for kind.
func (r *ModelRepository) SaveModel(kind string, f *forest.Forest, accuracy float64, samples int) error {
	data, err := forest.Marshal(f)
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}

	return r.Save(&ModelRecord{
		Kind:     kind,
		Schema:   f.Schema,
		NumTrees: len(f.Trees),
		Accuracy: accuracy,
		Samples:  samples,
		Data:     data,
	})
}

// LoadModel decodes the newest model for kind.
func (r *ModelRepository) LoadModel(kind string) (*forest.Forest, error) {
	rec, err := r.Latest(kind)
	if err != nil {
		return nil, err
	}
	return forest.Unmarshal(rec.Data)
}
