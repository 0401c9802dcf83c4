package sqlite

var tableNames = []string{
	"users", "elements", "concerns", "memberships", "events", "commitments",
	"requests", "journals", "journal_entries", "form_responses", "notes",
}

// schema is applied on every start. Statements are idempotent.
//
// There are no foreign keys: the engine cascades deletes itself, and the
// journal must outlive the event it describes. Listings order by rowid,
// which SQLite keeps stable across upserts, to give creation order.
const schema = `
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	immediate_notification INTEGER NOT NULL DEFAULT 0,
	admin INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS elements (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	kind TEXT NOT NULL,
	current INTEGER NOT NULL DEFAULT 1,
	owned INTEGER NOT NULL DEFAULT 0,
	is_group INTEGER NOT NULL DEFAULT 0,
	resource_group INTEGER NOT NULL DEFAULT 0,
	group_starts_on TEXT,
	group_ends_on TEXT,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS concerns (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	element_id TEXT NOT NULL,
	visible INTEGER NOT NULL DEFAULT 0,
	equality INTEGER NOT NULL DEFAULT 0,
	owns INTEGER NOT NULL DEFAULT 0,
	auto_add INTEGER NOT NULL DEFAULT 0,
	skip_permissions INTEGER NOT NULL DEFAULT 0,
	seek_permission INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL
);

-- one concern per (user, element)
CREATE UNIQUE INDEX IF NOT EXISTS idx_concerns_user_element
	ON concerns(user_id, element_id);
CREATE INDEX IF NOT EXISTS idx_concerns_element
	ON concerns(element_id);

CREATE TABLE IF NOT EXISTS memberships (
	id TEXT PRIMARY KEY,
	group_id TEXT NOT NULL,
	member_id TEXT NOT NULL,
	inverse INTEGER NOT NULL DEFAULT 0,
	starts_on TEXT NOT NULL,
	ends_on TEXT,
	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_memberships_group ON memberships(group_id);
CREATE INDEX IF NOT EXISTS idx_memberships_member ON memberships(member_id);

CREATE TABLE IF NOT EXISTS events (
	id TEXT PRIMARY KEY,
	body TEXT NOT NULL,
	starts_at TEXT NOT NULL,
	ends_at TEXT NOT NULL,
	all_day INTEGER NOT NULL DEFAULT 0,
	category TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	owner_id TEXT,
	organiser_id TEXT,
	non_existent INTEGER NOT NULL DEFAULT 0,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS commitments (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	element_id TEXT NOT NULL,
	status TEXT NOT NULL,
	covering TEXT,
	reason TEXT NOT NULL DEFAULT '',
	by_user_id TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

-- CRITICAL: at most one direct commitment per (event, element).
-- Coverings are exempt: a room may cover a request on an event that
-- also names it directly.
CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_direct_commitment
	ON commitments(event_id, element_id) WHERE covering IS NULL;
CREATE INDEX IF NOT EXISTS idx_commitments_event ON commitments(event_id);
CREATE INDEX IF NOT EXISTS idx_commitments_element ON commitments(element_id);
CREATE INDEX IF NOT EXISTS idx_commitments_covering
	ON commitments(covering) WHERE covering IS NOT NULL;

CREATE TABLE IF NOT EXISTS requests (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL,
	element_id TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_request
	ON requests(event_id, element_id);
CREATE INDEX IF NOT EXISTS idx_requests_element ON requests(element_id);

CREATE TABLE IF NOT EXISTS journals (
	id TEXT PRIMARY KEY,
	event_id TEXT NOT NULL UNIQUE,
	event_body TEXT NOT NULL,
	event_starts_at TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS journal_entries (
	id TEXT PRIMARY KEY,
	journal_id TEXT NOT NULL,
	event_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	user_id TEXT,
	element_id TEXT,
	at TEXT NOT NULL,
	payload_json TEXT NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_journal_entries_event ON journal_entries(event_id);

-- APPEND-ONLY: entries are never edited or removed
CREATE TRIGGER IF NOT EXISTS journal_entries_no_update
	BEFORE UPDATE ON journal_entries
	BEGIN SELECT RAISE(ABORT, 'journal entries are append-only'); END;
CREATE TRIGGER IF NOT EXISTS journal_entries_no_delete
	BEFORE DELETE ON journal_entries
	BEGIN SELECT RAISE(ABORT, 'journal entries are append-only'); END;

CREATE TABLE IF NOT EXISTS form_responses (
	id TEXT PRIMARY KEY,
	parent_kind TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	user_id TEXT,
	form_name TEXT NOT NULL,
	status TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_form_responses_parent
	ON form_responses(parent_kind, parent_id);

CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	parent_kind TEXT NOT NULL,
	parent_id TEXT NOT NULL,
	owner_id TEXT,
	title TEXT NOT NULL DEFAULT '',
	contents TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_notes_parent ON notes(parent_kind, parent_id);
`
