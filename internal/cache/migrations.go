package cache

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS notifications (
	id         TEXT PRIMARY KEY,
	category   TEXT NOT NULL,
	title      TEXT NOT NULL DEFAULT '',
	message    TEXT NOT NULL DEFAULT '',
	due_at     DATETIME,
	metadata   TEXT NOT NULL DEFAULT '{}',
	read       INTEGER NOT NULL DEFAULT 0,
	read_at    DATETIME,
	completed  INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notifications_created_at
	ON notifications(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_read
	ON notifications(read);
`,
	},
}
