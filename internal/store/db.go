package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults and ensures the
// schema exists.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(context.Background()); err != nil {
		return nil, err
	}
	if err := migrate(db); err != nil {
		return nil, err
	}
	return &DB{Client: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chamados (
		id           TEXT PRIMARY KEY,
		aluno_id     TEXT NOT NULL,
		nome         TEXT NOT NULL,
		turma        TEXT NOT NULL DEFAULT '',
		colecao      TEXT NOT NULL,
		criado_em    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		data_chamada TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chamados_aluno_data ON chamados(aluno_id, data_chamada);
	CREATE INDEX IF NOT EXISTS idx_chamados_colecao    ON chamados(colecao);
	CREATE INDEX IF NOT EXISTS idx_chamados_criado_em  ON chamados(criado_em);
	`
	_, err := db.Exec(schema)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
