package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Labeled feature vectors captured for training, one row per vector
		`CREATE TABLE IF NOT EXISTS training_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL,
			label TEXT NOT NULL,
			features TEXT NOT NULL,
			batch_id TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Serialized forests; the newest row per kind is the active model
		`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			schema TEXT NOT NULL,
			num_trees INTEGER NOT NULL,
			accuracy REAL NOT NULL DEFAULT 0,
			samples INTEGER NOT NULL DEFAULT 0,
			data BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_training_samples_kind ON training_samples(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_training_samples_batch_id ON training_samples(batch_id)`,
		`CREATE INDEX IF NOT EXISTS idx_models_kind_created_at ON models(kind, created_at)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
