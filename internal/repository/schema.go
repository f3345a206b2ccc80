package repository

// Schema definitions for the corpus store.
// Compatible with both SQLite and PostgreSQL.

const schemaCorpora = `
CREATE TABLE IF NOT EXISTS training_corpora (
    corpus_key TEXT PRIMARY KEY,
    id TEXT NOT NULL,
    seed BIGINT NOT NULL,
    size INTEGER NOT NULL,
    legit_fraction REAL NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

const schemaSamples = `
CREATE TABLE IF NOT EXISTS training_samples (
    corpus_key TEXT NOT NULL,
    idx INTEGER NOT NULL,
    features TEXT NOT NULL,
    label INTEGER NOT NULL,
    PRIMARY KEY (corpus_key, idx)
);
`

// AllSchemas returns all schema definitions in order.
func AllSchemas() []string {
	return []string{
		schemaCorpora,
		schemaSamples,
	}
}
