package gnomad

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/marcboeker/go-duckdb"
)

// Store caches the constraint table in a DuckDB side file so repeated runs
// skip the TSV parse. `outan refs --build-cache` creates it; the annotate
// pipeline reads the index back into a plain map before workers start.
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates a DuckDB database for constraint data.
func OpenStore(dbPath string) (*Store, error) {
	if dbPath != "" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create directory: %w", err)
		}
	}

	db, err := sql.Open("duckdb", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	s := &Store{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS constraint_metrics (
		gene VARCHAR,
		pli DOUBLE,
		oe_lof DOUBLE,
		lof_z DOUBLE,
		mis_z DOUBLE,
		syn_z DOUBLE,
		oe_mis DOUBLE,
		oe_syn DOUBLE,
		constraint_flag VARCHAR
	)`); err != nil {
		return err
	}
	s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_constraint_gene ON constraint_metrics (gene)`)
	return nil
}

// Loaded returns true if the constraint table has data.
func (s *Store) Loaded() bool {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM constraint_metrics").Scan(&count)
	return err == nil && count > 0
}

// Count returns the number of rows in the constraint table.
func (s *Store) Count() (int64, error) {
	var count int64
	err := s.db.QueryRow("SELECT COUNT(*) FROM constraint_metrics").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count constraint rows: %w", err)
	}
	return count, nil
}

// Load bulk-loads a gnomAD by-gene TSV using DuckDB's read_csv. NA and
// unparseable numeric cells become NULL. Reloading replaces existing data.
func (s *Store) Load(tsvPath string) error {
	s.db.Exec(`DELETE FROM constraint_metrics`)

	query := fmt.Sprintf(`INSERT INTO constraint_metrics
		SELECT gene,
			TRY_CAST(pLI AS DOUBLE),
			TRY_CAST(oe_lof AS DOUBLE),
			TRY_CAST(lof_z AS DOUBLE),
			TRY_CAST(mis_z AS DOUBLE),
			TRY_CAST(syn_z AS DOUBLE),
			TRY_CAST(oe_mis AS DOUBLE),
			TRY_CAST(oe_syn AS DOUBLE),
			constraint_flag
		FROM read_csv('%s', delim='\t', header=true, all_varchar=true, nullstr='NA')`, tsvPath)

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("loading constraint data: %w", err)
	}
	return nil
}

// Index reads the whole table back into a symbol-keyed map, applying the
// same highest-pLI dedup rule as NewIndex.
func (s *Store) Index() (Index, error) {
	rows, err := s.db.Query(`SELECT gene, pli, oe_lof, lof_z, mis_z, syn_z, oe_mis, oe_syn,
		COALESCE(constraint_flag, '') FROM constraint_metrics`)
	if err != nil {
		return nil, fmt.Errorf("query constraint table: %w", err)
	}
	defer rows.Close()

	var records []Constraint
	for rows.Next() {
		var c Constraint
		var pli, oeLof, lofZ, misZ, synZ, oeMis, oeSyn sql.NullFloat64
		if err := rows.Scan(&c.Gene, &pli, &oeLof, &lofZ, &misZ, &synZ, &oeMis, &oeSyn, &c.Flags); err != nil {
			return nil, fmt.Errorf("scan constraint row: %w", err)
		}
		c.PLI = nullableFloat(pli)
		c.OELof = nullableFloat(oeLof)
		c.LofZ = nullableFloat(lofZ)
		c.MisZ = nullableFloat(misZ)
		c.SynZ = nullableFloat(synZ)
		c.OEMis = nullableFloat(oeMis)
		c.OESyn = nullableFloat(oeSyn)
		records = append(records, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("constraint rows: %w", err)
	}

	return NewIndex(records), nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
