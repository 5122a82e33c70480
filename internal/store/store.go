// Package store persists the mapping from real identity keys to synthetic
// identities. One store is shared by every file in a run; it is the only
// source of cross-file consistency.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rs/zerolog"

	"phi-sanitizer/internal/identity"
	"phi-sanitizer/internal/phi"
)

// ErrUnavailable marks a store that could not be opened or created.
// It is fatal for the whole run.
var ErrUnavailable = errors.New("pseudonym store unavailable")

// Stats holds row counts per mapping table.
type Stats struct {
	Patients      int `yaml:"patients"`
	Organizations int `yaml:"organizations"`
	Providers     int `yaml:"providers"`
	MRNMappings   int `yaml:"mrn_mappings"`
}

// Store is a sqlite-backed pseudonym store.
type Store struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	hasher *identity.Hasher
	logger zerolog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the store logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// WithHasher sets the hasher used for MRN hashes.
func WithHasher(h *identity.Hasher) Option {
	return func(s *Store) { s.hasher = h }
}

// Open opens or creates the store at path and brings its schema up to date.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	s := &Store{
		path:   path,
		hasher: identity.NewHasher(""),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create directory %s: %w", ErrUnavailable, dir, err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_txlock=immediate"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrUnavailable, path, err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrUnavailable, path, err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initialize schema: %w", ErrUnavailable, err)
	}
	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}

	s.db = db
	s.logger.Debug().Str("path", path).Msg("pseudonym store opened")
	return s, nil
}

// Hasher returns the hasher the store derives MRN hashes with. Callers
// key identities with the same one.
func (s *Store) Hasher() *identity.Hasher { return s.hasher }

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database handle.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// withTx runs fn inside one immediate transaction while holding the store
// mutex, which makes every check-then-insert atomic.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return fmt.Errorf("%w: store is closed", ErrUnavailable)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Patient returns the stored patient for key.
func (s *Store) Patient(ctx context.Context, key string) (phi.Patient, bool, error) {
	var (
		p  phi.Patient
		ok bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, ok, err = selectPatient(ctx, tx, key)
		return err
	})
	return p, ok, err
}

// GetOrCreatePatient returns the patient for key, calling gen exactly once
// to create it when the key has never been seen.
func (s *Store) GetOrCreatePatient(ctx context.Context, key string, gen func() phi.Patient) (phi.Patient, error) {
	var out phi.Patient
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, ok, err := selectPatient(ctx, tx, key)
		if err != nil || ok {
			out = p
			return err
		}

		p = gen()
		p.Key = key
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO patients (original_name_hash, fake_first_name, fake_last_name, fake_dob, fake_ssn)
			VALUES (?, ?, ?, ?, ?)`,
			key, p.FirstName, p.LastName, p.DOB, p.SSN); err != nil {
			return fmt.Errorf("insert patient: %w", err)
		}
		s.logger.Debug().Str("key", short(key)).Msg("created patient mapping")
		out = p
		return nil
	})
	return out, err
}

func selectPatient(ctx context.Context, tx *sql.Tx, key string) (phi.Patient, bool, error) {
	p := phi.Patient{Key: key}
	err := tx.QueryRowContext(ctx, `
		SELECT fake_first_name, fake_last_name, fake_dob, fake_ssn
		FROM patients WHERE original_name_hash = ?`, key).
		Scan(&p.FirstName, &p.LastName, &p.DOB, &p.SSN)
	if errors.Is(err, sql.ErrNoRows) {
		return phi.Patient{}, false, nil
	}
	if err != nil {
		return phi.Patient{}, false, fmt.Errorf("select patient: %w", err)
	}
	return p, true, nil
}

// Organization returns the stored organization for key.
func (s *Store) Organization(ctx context.Context, key string) (phi.Organization, bool, error) {
	var (
		o  phi.Organization
		ok bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		o, ok, err = selectOrganization(ctx, tx, key)
		return err
	})
	return o, ok, err
}

// GetOrCreateOrganization returns the organization for key, calling gen
// exactly once to create it when the key has never been seen.
func (s *Store) GetOrCreateOrganization(ctx context.Context, key string, gen func() phi.Organization) (phi.Organization, error) {
	var out phi.Organization
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		o, ok, err := selectOrganization(ctx, tx, key)
		if err != nil || ok {
			out = o
			return err
		}

		o = gen()
		o.Key = key
		if o.OrgID == "" {
			o.OrgID = stableOrgID(key)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO organizations
				(original_org_hash, fake_org_name, fake_org_id, fake_address, fake_city, fake_state, fake_zip, latitude, longitude)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			key, o.Name, o.OrgID, o.Street, o.City, o.State, o.Zip,
			nullFloat(o.Latitude), nullFloat(o.Longitude)); err != nil {
			return fmt.Errorf("insert organization: %w", err)
		}
		s.logger.Debug().Str("key", short(key)).Str("org_id", o.OrgID).Msg("created organization mapping")
		out = o
		return nil
	})
	return out, err
}

func selectOrganization(ctx context.Context, tx *sql.Tx, key string) (phi.Organization, bool, error) {
	o := phi.Organization{Key: key}
	var (
		orgID    sql.NullString
		lat, lon sql.NullFloat64
	)
	err := tx.QueryRowContext(ctx, `
		SELECT fake_org_name, fake_org_id, fake_address, fake_city, fake_state, fake_zip, latitude, longitude
		FROM organizations WHERE original_org_hash = ?`, key).
		Scan(&o.Name, &orgID, &o.Street, &o.City, &o.State, &o.Zip, &lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return phi.Organization{}, false, nil
	}
	if err != nil {
		return phi.Organization{}, false, fmt.Errorf("select organization: %w", err)
	}

	o.OrgID = orgID.String
	if lat.Valid {
		o.Latitude = &lat.Float64
	}
	if lon.Valid {
		o.Longitude = &lon.Float64
	}

	// rows written before fake_org_id existed get a stable id, persisted once
	if o.OrgID == "" {
		o.OrgID = stableOrgID(key)
		if _, err := tx.ExecContext(ctx,
			`UPDATE organizations SET fake_org_id = ? WHERE original_org_hash = ?`, o.OrgID, key); err != nil {
			return phi.Organization{}, false, fmt.Errorf("backfill org id: %w", err)
		}
	}
	return o, true, nil
}

// Provider returns the stored provider for key.
func (s *Store) Provider(ctx context.Context, key string) (phi.Provider, bool, error) {
	var (
		p  phi.Provider
		ok bool
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		p, ok, err = selectProvider(ctx, tx, key)
		return err
	})
	return p, ok, err
}

// GetOrCreateProvider returns the provider for key, calling gen exactly
// once to create it when the key has never been seen.
func (s *Store) GetOrCreateProvider(ctx context.Context, key string, gen func() phi.Provider) (phi.Provider, error) {
	var out phi.Provider
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, ok, err := selectProvider(ctx, tx, key)
		if err != nil || ok {
			out = p
			return err
		}

		p = gen()
		p.Key = key
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO providers (original_provider_hash, fake_first_name, fake_last_name, fake_npi)
			VALUES (?, ?, ?, ?)`,
			key, p.FirstName, p.LastName, p.NPI); err != nil {
			return fmt.Errorf("insert provider: %w", err)
		}
		s.logger.Debug().Str("key", short(key)).Msg("created provider mapping")
		out = p
		return nil
	})
	return out, err
}

func selectProvider(ctx context.Context, tx *sql.Tx, key string) (phi.Provider, bool, error) {
	p := phi.Provider{Key: key}
	err := tx.QueryRowContext(ctx, `
		SELECT fake_first_name, fake_last_name, fake_npi
		FROM providers WHERE original_provider_hash = ?`, key).
		Scan(&p.FirstName, &p.LastName, &p.NPI)
	if errors.Is(err, sql.ErrNoRows) {
		return phi.Provider{}, false, nil
	}
	if err != nil {
		return phi.Provider{}, false, fmt.Errorf("select provider: %w", err)
	}
	return p, true, nil
}

// GetOrCreateMRN returns the one fake MRN for a (patient, organization)
// pair. Both identities must already be stored. A stored value that still
// contains originalMRN is a legacy leak; it is replaced by candidate in
// place and its hash re-derived.
func (s *Store) GetOrCreateMRN(ctx context.Context, patientKey, orgKey, originalMRN, candidate string) (string, error) {
	var out string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		patientID, err := rowID(ctx, tx, `SELECT id FROM patients WHERE original_name_hash = ?`, patientKey)
		if err != nil {
			return fmt.Errorf("lookup patient %s: %w", short(patientKey), err)
		}
		orgID, err := rowID(ctx, tx, `SELECT id FROM organizations WHERE original_org_hash = ?`, orgKey)
		if err != nil {
			return fmt.Errorf("lookup organization %s: %w", short(orgKey), err)
		}

		mrnHash := s.hasher.MRNHash(originalMRN)

		var existing string
		err = tx.QueryRowContext(ctx,
			`SELECT fake_mrn FROM patient_org_mrn WHERE patient_id = ? AND org_id = ?`,
			patientID, orgID).Scan(&existing)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO patient_org_mrn (patient_id, org_id, original_mrn_hash, fake_mrn)
				VALUES (?, ?, ?, ?)`, patientID, orgID, mrnHash, candidate); err != nil {
				return fmt.Errorf("insert mrn mapping: %w", err)
			}
			s.logger.Debug().Str("fake_mrn", candidate).Msg("created mrn mapping")
			out = candidate
			return nil
		case err != nil:
			return fmt.Errorf("select mrn mapping: %w", err)
		}

		if originalMRN != "" && strings.Contains(existing, originalMRN) {
			if _, err := tx.ExecContext(ctx, `
				UPDATE patient_org_mrn SET original_mrn_hash = ?, fake_mrn = ?
				WHERE patient_id = ? AND org_id = ?`, mrnHash, candidate, patientID, orgID); err != nil {
				return fmt.Errorf("upgrade legacy mrn mapping: %w", err)
			}
			s.logger.Info().Int64("patient_id", patientID).Int64("org_id", orgID).
				Msg("upgraded legacy mrn mapping")
			out = candidate
			return nil
		}

		out = existing
		return nil
	})
	return out, err
}

func rowID(ctx context.Context, tx *sql.Tx, query, key string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx, query, key).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, errors.New("not in store")
	}
	return id, err
}

// Stats returns row counts for every mapping table.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		counts := []struct {
			table string
			dst   *int
		}{
			{"patients", &st.Patients},
			{"organizations", &st.Organizations},
			{"providers", &st.Providers},
			{"patient_org_mrn", &st.MRNMappings},
		}
		for _, c := range counts {
			if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+c.table).Scan(c.dst); err != nil {
				return fmt.Errorf("count %s: %w", c.table, err)
			}
		}
		return nil
	})
	return st, err
}

// Reset deletes every mapping. Fake identities issued before a reset will
// not be reproduced afterwards.
func (s *Store) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"patient_org_mrn", "patients", "organizations", "providers"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		s.logger.Warn().Msg("pseudonym store cleared")
		return nil
	})
}

func stableOrgID(key string) string {
	if len(key) > 8 {
		key = key[:8]
	}
	return "ORG-" + strings.ToUpper(key)
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func short(key string) string {
	if len(key) > 12 {
		return key[:12]
	}
	return key
}
