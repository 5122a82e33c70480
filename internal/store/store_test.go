package store

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phi-sanitizer/internal/identity"
	"phi-sanitizer/internal/phi"
)

func openTestStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestGetOrCreatePatientConsistentAcrossRuns(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mappings.db")
	key := identity.NewHasher("").PatientKey("Nguyen", "An", "19850512")

	calls := 0
	gen := func() phi.Patient {
		calls++
		return phi.Patient{FirstName: "Maria", LastName: "Lopez", DOB: "19830101", SSN: "123-45-6789"}
	}

	s, err := Open(ctx, path)
	require.NoError(t, err)
	first, err := s.GetOrCreatePatient(ctx, key, gen)
	require.NoError(t, err)
	again, err := s.GetOrCreatePatient(ctx, key, gen)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, again)
	assert.Equal(t, key, first.Key)

	// a second run against the same file sees the same identity
	s2 := openTestStore(t, path)
	third, err := s2.GetOrCreatePatient(ctx, key, func() phi.Patient {
		t.Fatal("generator must not run for a stored key")
		return phi.Patient{}
	})
	require.NoError(t, err)
	assert.Equal(t, first, third)

	got, ok, err := s2.Patient(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, first, got)
}

func TestGetMissing(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "m.db"))

	_, ok, err := s.Patient(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Organization(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = s.Provider(ctx, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOrganizationAndProvider(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "m.db"))
	lat := 30.27

	org, err := s.GetOrCreateOrganization(ctx, "orgkey0123456789", func() phi.Organization {
		return phi.Organization{Name: "Austin Medical Center", Address: phi.Address{City: "Austin", State: "TX", Latitude: &lat}}
	})
	require.NoError(t, err)
	assert.Equal(t, "ORG-ORGKEY01", org.OrgID, "missing org id falls back to a stable one")

	stored, ok, err := s.Organization(ctx, "orgkey0123456789")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Austin Medical Center", stored.Name)
	require.NotNil(t, stored.Latitude)
	assert.InDelta(t, 30.27, *stored.Latitude, 1e-9)
	assert.Nil(t, stored.Longitude)

	prov, err := s.GetOrCreateProvider(ctx, "provkey", func() phi.Provider {
		return phi.Provider{FirstName: "Dana", LastName: "Ruiz", NPI: "1234567890"}
	})
	require.NoError(t, err)
	again, err := s.GetOrCreateProvider(ctx, "provkey", func() phi.Provider {
		return phi.Provider{FirstName: "Other"}
	})
	require.NoError(t, err)
	assert.Equal(t, prov, again)
}

func seedPatientAndOrg(t *testing.T, s *Store, patientKey, orgKey string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.GetOrCreatePatient(ctx, patientKey, func() phi.Patient {
		return phi.Patient{FirstName: "A", LastName: "B", DOB: "20000101"}
	})
	require.NoError(t, err)
	_, err = s.GetOrCreateOrganization(ctx, orgKey, func() phi.Organization {
		return phi.Organization{Name: "Org", OrgID: "ABC"}
	})
	require.NoError(t, err)
}

func TestGetOrCreateMRNComposite(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "m.db"))
	seedPatientAndOrg(t, s, "p1", "o1")
	_, err := s.GetOrCreateOrganization(ctx, "o2", func() phi.Organization { return phi.Organization{Name: "Org2"} })
	require.NoError(t, err)

	mrn, err := s.GetOrCreateMRN(ctx, "p1", "o1", "00045213", "ABC-7QX2")
	require.NoError(t, err)
	assert.Equal(t, "ABC-7QX2", mrn)

	mrn, err = s.GetOrCreateMRN(ctx, "p1", "o1", "00045213", "ABC-ZZZZ")
	require.NoError(t, err)
	assert.Equal(t, "ABC-7QX2", mrn, "one fake MRN per (patient, org)")

	other, err := s.GetOrCreateMRN(ctx, "p1", "o2", "00045213", "ORG-K9L0")
	require.NoError(t, err)
	assert.Equal(t, "ORG-K9L0", other)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Patients: 1, Organizations: 2, MRNMappings: 2}, st)
}

func TestGetOrCreateMRNUnknownIdentity(t *testing.T) {
	s := openTestStore(t, filepath.Join(t.TempDir(), "m.db"))
	_, err := s.GetOrCreateMRN(context.Background(), "missing", "o1", "1", "X-1")
	assert.Error(t, err)
}

func TestGetOrCreateMRNHealsLegacyLeak(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "m.db"))
	seedPatientAndOrg(t, s, "p1", "o1")

	// legacy format embedded the raw MRN
	_, err := s.GetOrCreateMRN(ctx, "p1", "o1", "00045213", "TX-00045213-AB")
	require.NoError(t, err)

	healed, err := s.GetOrCreateMRN(ctx, "p1", "o1", "00045213", "ABC-7QX2")
	require.NoError(t, err)
	assert.Equal(t, "ABC-7QX2", healed)
	assert.NotContains(t, healed, "00045213")

	again, err := s.GetOrCreateMRN(ctx, "p1", "o1", "00045213", "ABC-NEW1")
	require.NoError(t, err)
	assert.Equal(t, "ABC-7QX2", again)

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.MRNMappings, "healing rewrites in place")
}

func TestOpenUpgradesLegacyOrganizationTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", "file:"+path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE organizations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			original_org_hash TEXT UNIQUE NOT NULL,
			fake_org_name TEXT NOT NULL,
			fake_address TEXT NOT NULL,
			fake_city TEXT NOT NULL,
			fake_state TEXT NOT NULL,
			fake_zip TEXT NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		INSERT INTO organizations (original_org_hash, fake_org_name, fake_address, fake_city, fake_state, fake_zip)
		VALUES ('abcdef0123456789', 'Old Clinic', '1 Main St', 'Waco', 'TX', '76701');`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	s := openTestStore(t, path)

	org, ok, err := s.Organization(ctx, "abcdef0123456789")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Old Clinic", org.Name)
	assert.Equal(t, "ORG-ABCDEF01", org.OrgID)

	// the backfilled id is persisted, not recomputed
	var stored string
	require.NoError(t, s.db.QueryRow(
		`SELECT fake_org_id FROM organizations WHERE original_org_hash = 'abcdef0123456789'`).Scan(&stored))
	assert.Equal(t, "ORG-ABCDEF01", stored)

	var version int
	require.NoError(t, s.db.QueryRow(`SELECT MAX(version) FROM schema_version`).Scan(&version))
	assert.Equal(t, len(migrations), version)
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "m.db")
	for i := 0; i < 3; i++ {
		s, err := Open(context.Background(), path)
		require.NoError(t, err)
		require.NoError(t, s.Close())
	}
}

func TestOpenUnavailable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	_, err := Open(context.Background(), filepath.Join(blocker, "sub", "m.db"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnavailable))
}

func TestClosedStore(t *testing.T) {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, _, err = s.Patient(context.Background(), "k")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t, filepath.Join(t.TempDir(), "m.db"))
	seedPatientAndOrg(t, s, "p1", "o1")
	_, err := s.GetOrCreateMRN(ctx, "p1", "o1", "1", "ABC-1111")
	require.NoError(t, err)

	require.NoError(t, s.Reset(ctx))
	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)
}

func TestStableOrgID(t *testing.T) {
	assert.Equal(t, "ORG-ABCDEF01", stableOrgID("abcdef0123"))
	assert.True(t, strings.HasPrefix(stableOrgID("ab"), "ORG-AB"))
}
