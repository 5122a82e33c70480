package store

// schema is the baseline layout. Columns added after the first release
// (fake_org_id, latitude, longitude) are applied by migrations so that
// fresh and legacy stores follow the same upgrade path.
const schema = `
CREATE TABLE IF NOT EXISTS patients (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	original_name_hash TEXT NOT NULL UNIQUE,
	fake_first_name TEXT NOT NULL,
	fake_last_name TEXT NOT NULL,
	fake_dob TEXT NOT NULL,
	fake_ssn TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS organizations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	original_org_hash TEXT NOT NULL UNIQUE,
	fake_org_name TEXT NOT NULL,
	fake_address TEXT NOT NULL DEFAULT '',
	fake_city TEXT NOT NULL DEFAULT '',
	fake_state TEXT NOT NULL DEFAULT '',
	fake_zip TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS providers (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	original_provider_hash TEXT NOT NULL UNIQUE,
	fake_first_name TEXT NOT NULL,
	fake_last_name TEXT NOT NULL,
	fake_npi TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS patient_org_mrn (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	patient_id INTEGER NOT NULL REFERENCES patients(id),
	org_id INTEGER NOT NULL REFERENCES organizations(id),
	original_mrn_hash TEXT NOT NULL,
	fake_mrn TEXT NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(patient_id, org_id)
);
`
