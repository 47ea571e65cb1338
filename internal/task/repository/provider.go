package repository

import (
	"github.com/jmoiron/sqlx"

	"github.com/codecommand/codecommand/internal/task/repository/sqlite"
)

// Provide creates the repository using separate writer and reader pools.
// The returned closer releases nothing when the pools are owned elsewhere.
func Provide(writer, reader *sqlx.DB) (*sqlite.Repository, func() error, error) {
	repo, err := sqlite.NewWithDB(writer, reader)
	if err != nil {
		return nil, nil, err
	}
	return repo, repo.Close, nil
}
