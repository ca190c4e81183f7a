package postgres

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/diwise/hyperstate/pkg/hyperstate"
	"github.com/diwise/hyperstate/pkg/hyperstate/errors"
	"github.com/diwise/hyperstate/pkg/hyperstate/repository"
)

type Config struct {
	host     string
	user     string
	password string
	port     string
	dbname   string
	sslmode  string
}

func NewConfig(host, user, password, port, dbname, sslmode string) Config {
	return Config{
		host:     host,
		user:     user,
		password: password,
		port:     port,
		dbname:   dbname,
		sslmode:  sslmode,
	}
}

// LoadConfiguration reads the connection settings from the environment
func LoadConfiguration(ctx context.Context) Config {
	return Config{
		host:     env.GetVariableOrDefault(ctx, "POSTGRES_HOST", ""),
		user:     env.GetVariableOrDefault(ctx, "POSTGRES_USER", ""),
		password: env.GetVariableOrDefault(ctx, "POSTGRES_PASSWORD", ""),
		port:     env.GetVariableOrDefault(ctx, "POSTGRES_PORT", "5432"),
		dbname:   env.GetVariableOrDefault(ctx, "POSTGRES_DBNAME", "hyperstate"),
		sslmode:  env.GetVariableOrDefault(ctx, "POSTGRES_SSLMODE", "disable"),
	}
}

func (c Config) ConnStr() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s", c.user, c.password, c.host, c.port, c.dbname, c.sslmode)
}

func (c Config) Host() string {
	return c.host
}

// Connect opens a connection pool and verifies that the database answers
func Connect(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	conn, err := pgxpool.New(ctx, cfg.ConnStr())
	if err != nil {
		return nil, err
	}

	err = conn.Ping(ctx)
	if err != nil {
		conn.Close()
		return nil, errors.NewTransportError(fmt.Sprintf("failed to reach database at %s", cfg.host), err)
	}

	return conn, nil
}

type store struct {
	pool  *pgxpool.Pool
	paths repository.PathGenerator
}

type Option func(*store)

func WithPathGenerator(g repository.PathGenerator) Option {
	return func(s *store) {
		s.paths = g
	}
}

// New returns a store that keeps entities in postgres. The tables it needs
// are created if they do not exist.
func New(ctx context.Context, pool *pgxpool.Pool, options ...Option) (repository.Store, error) {
	s := &store{
		pool:  pool,
		paths: repository.SequentialPaths,
	}

	for _, option := range options {
		option(s)
	}

	if err := s.initialize(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *store) initialize(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS hyperstate_entities (
			path        TEXT PRIMARY KEY,
			natures     TEXT[] NOT NULL,
			document    JSONB NOT NULL,
			version     BIGINT NOT NULL,
			modified_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);

		CREATE TABLE IF NOT EXISTS hyperstate_children (
			position BIGSERIAL,
			parent   TEXT NOT NULL,
			child    TEXT NOT NULL,
			rel      TEXT NOT NULL,
			PRIMARY KEY (parent, child)
		);

		CREATE INDEX IF NOT EXISTS hyperstate_children_child_idx ON hyperstate_children (child);

		CREATE TABLE IF NOT EXISTS hyperstate_sequences (
			collection TEXT PRIMARY KEY,
			seq        BIGINT NOT NULL
		);`

	_, err := s.pool.Exec(ctx, ddl)
	if err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	logging.GetFromContext(ctx).Debug("hyperstate tables initialized")

	return nil
}

func (s *store) Load(ctx context.Context, path string) (*repository.Record, error) {
	rec := &repository.Record{Path: path}

	var version int64

	err := s.pool.QueryRow(ctx,
		`SELECT natures, document, version FROM hyperstate_entities WHERE path=$1`, path,
	).Scan(&rec.Natures, &rec.Document, &version)
	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return nil, errors.NewNotFoundError(fmt.Sprintf("no entity found at %s", path))
		}
		return nil, err
	}

	rec.Version = uint64(version)

	return rec, nil
}

func (s *store) Put(ctx context.Context, rec repository.Record, expectedVersion uint64) (uint64, error) {
	var version int64
	var err error

	if expectedVersion == 0 {
		err = s.pool.QueryRow(ctx, `
			INSERT INTO hyperstate_entities (path, natures, document, version)
			VALUES ($1, $2, $3, 1)
			ON CONFLICT (path) DO UPDATE
			SET natures=EXCLUDED.natures, document=EXCLUDED.document, version=hyperstate_entities.version+1, modified_at=now()
			RETURNING version`,
			rec.Path, rec.Natures, string(rec.Document),
		).Scan(&version)
	} else {
		err = s.pool.QueryRow(ctx, `
			UPDATE hyperstate_entities
			SET natures=$2, document=$3, version=version+1, modified_at=now()
			WHERE path=$1 AND version=$4
			RETURNING version`,
			rec.Path, rec.Natures, string(rec.Document), int64(expectedVersion),
		).Scan(&version)
	}

	if err != nil {
		if stderrors.Is(err, pgx.ErrNoRows) {
			return 0, errors.NewConflictError(fmt.Sprintf("entity at %s has been modified or removed, expected version %d", rec.Path, expectedVersion))
		}
		return 0, err
	}

	return uint64(version), nil
}

func (s *store) Remove(ctx context.Context, path string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `DELETE FROM hyperstate_entities WHERE path=$1`, path)
	if err != nil {
		tx.Rollback(ctx)
		return err
	}

	if tag.RowsAffected() == 0 {
		tx.Rollback(ctx)
		return errors.NewNotFoundError(fmt.Sprintf("no entity found at %s", path))
	}

	_, err = tx.Exec(ctx, `DELETE FROM hyperstate_children WHERE parent=$1 OR child=$1`, path)
	if err != nil {
		tx.Rollback(ctx)
		return err
	}

	return tx.Commit(ctx)
}

func (s *store) Has(ctx context.Context, path string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM hyperstate_entities WHERE path=$1)`, path).Scan(&exists)
	return exists, err
}

func (s *store) AddChild(ctx context.Context, parent, child string, rel hyperstate.Relationship) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO hyperstate_children (parent, child, rel) VALUES ($1, $2, $3) ON CONFLICT (parent, child) DO NOTHING`,
		parent, child, string(rel),
	)
	return err
}

func (s *store) Children(ctx context.Context, parent string) ([]repository.ChildRef, error) {
	rows, err := s.pool.Query(ctx, `SELECT child, rel FROM hyperstate_children WHERE parent=$1 ORDER BY position`, parent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	refs := make([]repository.ChildRef, 0)

	for rows.Next() {
		var child, rel string
		err := rows.Scan(&child, &rel)
		if err != nil {
			return nil, err
		}
		refs = append(refs, repository.ChildRef{Path: child, Rel: hyperstate.Relationship(rel)})
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return refs, nil
}

func (s *store) NextPath(ctx context.Context, collection string) (string, error) {
	for {
		var seq int64

		err := s.pool.QueryRow(ctx, `
			INSERT INTO hyperstate_sequences (collection, seq) VALUES ($1, 1)
			ON CONFLICT (collection) DO UPDATE SET seq=hyperstate_sequences.seq+1
			RETURNING seq`,
			collection,
		).Scan(&seq)
		if err != nil {
			return "", err
		}

		path := s.paths(collection, uint64(seq))

		taken, err := s.Has(ctx, path)
		if err != nil {
			return "", err
		}

		if !taken {
			return path, nil
		}
	}
}

func (s *store) Clear(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE hyperstate_entities, hyperstate_children, hyperstate_sequences`)
	return err
}

// Parents returns the paths of every entity that has child edges
func Parents(ctx context.Context, pool *pgxpool.Pool) ([]string, error) {
	rows, err := pool.Query(ctx, `SELECT DISTINCT parent FROM hyperstate_children ORDER BY parent`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	parents := make([]string, 0)

	for rows.Next() {
		var p string
		err := rows.Scan(&p)
		if err != nil {
			return nil, err
		}
		parents = append(parents, p)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return parents, nil
}

// RemoveOrphans deletes the child edges of parent that point at an entity
// that no longer exists, or all of them if parent itself is gone. It returns
// the number of edges removed.
func RemoveOrphans(ctx context.Context, pool *pgxpool.Pool, parent string) (int64, error) {
	tag, err := pool.Exec(ctx, `
		DELETE FROM hyperstate_children c
		WHERE c.parent = $1
		  AND (NOT EXISTS (SELECT 1 FROM hyperstate_entities e WHERE e.path = c.parent)
		   OR NOT EXISTS (SELECT 1 FROM hyperstate_entities e WHERE e.path = c.child))`,
		parent,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func Vacuum(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, "VACUUM ANALYZE hyperstate_entities, hyperstate_children;")
	return err
}
