package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// Exercise is a stored custom exercise. Definition holds the JSON encoding of
// the exercise configuration record.
type Exercise struct {
	ID         string
	Name       string
	Definition json.RawMessage
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ExerciseRepository provides CRUD operations for custom exercises.
type ExerciseRepository struct {
	db *sql.DB
}

// Exercises returns the exercise repository for this store.
func (s *Store) Exercises() *ExerciseRepository {
	return &ExerciseRepository{db: s.db}
}

// Create inserts a new exercise.
func (r *ExerciseRepository) Create(e *Exercise) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now

	_, err := r.db.Exec(
		`INSERT INTO exercises (id, name, definition, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.Name, string(e.Definition), e.CreatedAt, e.UpdatedAt,
	)
	return err
}

// GetByName retrieves an exercise by its name.
func (r *ExerciseRepository) GetByName(name string) (*Exercise, error) {
	e := &Exercise{}
	var def string

	err := r.db.QueryRow(
		`SELECT id, name, definition, created_at, updated_at
		 FROM exercises WHERE name = ?`,
		name,
	).Scan(&e.ID, &e.Name, &def, &e.CreatedAt, &e.UpdatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	e.Definition = json.RawMessage(def)
	return e, nil
}

// List retrieves all custom exercises ordered by name.
func (r *ExerciseRepository) List() ([]*Exercise, error) {
	rows, err := r.db.Query(
		`SELECT id, name, definition, created_at, updated_at
		 FROM exercises ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exercises []*Exercise
	for rows.Next() {
		e := &Exercise{}
		var def string
		if err := rows.Scan(&e.ID, &e.Name, &def, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Definition = json.RawMessage(def)
		exercises = append(exercises, e)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return exercises, nil
}

// Update replaces the definition of the exercise with e.Name.
func (r *ExerciseRepository) Update(e *Exercise) error {
	e.UpdatedAt = time.Now()

	result, err := r.db.Exec(
		`UPDATE exercises SET definition = ?, updated_at = ? WHERE name = ?`,
		string(e.Definition), e.UpdatedAt, e.Name,
	)
	if err != nil {
		return err
	}
	return affectedOne(result)
}

// Delete removes an exercise by name.
func (r *ExerciseRepository) Delete(name string) error {
	result, err := r.db.Exec(`DELETE FROM exercises WHERE name = ?`, name)
	if err != nil {
		return err
	}
	return affectedOne(result)
}
