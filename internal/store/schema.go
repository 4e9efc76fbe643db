package store

// SchemaVersion is the current database schema version
const SchemaVersion = 2

// Collection names
const (
	CollProviders = "providers"
	CollOrders    = "orders"
	CollBranches  = "branches"
	CollUsers     = "users"
)

// collectionSpec describes a collection table and its secondary indexes.
// Each index maps to a column filled from the document field of the same name.
type collectionSpec struct {
	indexes []string
	unique  map[string]bool
}

var collections = map[string]collectionSpec{
	CollProviders: {indexes: []string{"branch", "name"}},
	CollOrders:    {indexes: []string{"branch", "user", "provider", "status"}},
	CollBranches:  {},
	CollUsers:     {indexes: []string{"email", "branch"}, unique: map[string]bool{"email": true}},
}

// collectionOrder fixes iteration order for DDL and ClearAll.
var collectionOrder = []string{CollProviders, CollOrders, CollBranches, CollUsers}

func (c collectionSpec) hasIndex(name string) bool {
	for _, idx := range c.indexes {
		if idx == name {
			return true
		}
	}
	return false
}

const queueSchema = `
CREATE TABLE IF NOT EXISTS sync_queue (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    id TEXT NOT NULL UNIQUE,
    operation TEXT NOT NULL,
    entity TEXT NOT NULL,
    payload TEXT NOT NULL,
    queued_at INTEGER NOT NULL,
    synced INTEGER NOT NULL DEFAULT 0,
    attempts INTEGER NOT NULL DEFAULT 0,
    last_error TEXT NOT NULL DEFAULT '',
    dead INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_sync_queue_synced ON sync_queue(synced);
CREATE INDEX IF NOT EXISTS idx_sync_queue_entity ON sync_queue(entity);
`

const metaSchema = `
CREATE TABLE IF NOT EXISTS meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`

// Migration is a schema change applied when the stored version is lower.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// Migrations upgrade databases created by older versions. The base schema
// already carries every column, so column additions are guarded in
// RunMigrations (sqlite has no ADD COLUMN IF NOT EXISTS).
var Migrations = []Migration{
	{
		Version:     2,
		Description: "sync queue retry tracking",
		SQL: `
ALTER TABLE sync_queue ADD COLUMN attempts INTEGER NOT NULL DEFAULT 0;
ALTER TABLE sync_queue ADD COLUMN last_error TEXT NOT NULL DEFAULT '';
ALTER TABLE sync_queue ADD COLUMN dead INTEGER NOT NULL DEFAULT 0;
`,
	},
}
