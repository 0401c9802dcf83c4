/*
Package sqlite provides a SQLite-backed implementation of generic.TxStore.

PURPOSE:
  Durable storage for the commitment engine. Every engine operation runs
  inside WithTx, so the same query code has to work against the database
  handle and against an open transaction. conn wraps either one behind
  sqlx.ExtContext and carries all of the queries.

UNIQUENESS (enforced by the schema, mapped to engine errors):
  idx_unique_direct_commitment -> generic.ErrDuplicateAttachment
  idx_unique_request           -> generic.ErrDuplicateAttachment
  idx_concerns_user_element    -> generic.ErrDuplicateConcern

APPEND-ONLY ENFORCEMENT:
  journal_entries carries triggers that abort any UPDATE or DELETE. The
  store itself never issues either.

CONCURRENCY:
  SQLite allows one writer. Transactions are opened with _txlock=immediate
  so two writers queue on BEGIN instead of failing on upgrade. The pool is
  limited to one connection, which also keeps ":memory:" databases from
  splitting across connections.

USAGE:
  store, err := sqlite.New("./data/schedule.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := generic.NewEngine(store, sink, settings)

MIGRATION:
  Schema is auto-migrated on New(). Migrate can be run on its own from the
  command line.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"

	"github.com/warp/scheduling-engine/generic"
)

// Store implements generic.TxStore using SQLite.
type Store struct {
	conn
	db *sqlx.DB
}

var _ generic.TxStore = (*Store)(nil)

// New opens (and migrates) the database at dbPath.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{conn: conn{q: db}, db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Migrate creates any missing tables, indexes and triggers.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Reset drops and recreates every table. Dropping journal_entries takes
// its triggers with it, so this is the only way the journal is ever
// cleared. Development and demo use only.
func (s *Store) Reset(ctx context.Context) error {
	for _, table := range tableNames {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return s.Migrate(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx executes fn within a database transaction. Reads made through the
// Store handed to fn see the transaction's own writes.
func (s *Store) WithTx(ctx context.Context, fn func(generic.Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&conn{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// conn runs every query against either the database or a transaction.
type conn struct {
	q sqlx.ExtContext
}

var _ generic.Store = (*conn)(nil)

func (c *conn) get(ctx context.Context, dest any, notFound error, query string, args ...any) error {
	err := sqlx.GetContext(ctx, c.q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return notFound
	}
	return err
}

// find is get for optional lookups: no row reports false, no error.
func (c *conn) find(ctx context.Context, dest any, query string, args ...any) (bool, error) {
	err := sqlx.GetContext(ctx, c.q, dest, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (c *conn) named(ctx context.Context, query string, arg any) (sql.Result, error) {
	return sqlx.NamedExecContext(ctx, c.q, query, arg)
}

// mustAffect turns "no rows affected" into notFound.
func mustAffect(res sql.Result, err error, notFound error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func selectRows[R any, T any](ctx context.Context, c *conn, convert func(R) T, query string, args ...any) ([]T, error) {
	var rows []R
	if err := sqlx.SelectContext(ctx, c.q, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = convert(r)
	}
	return out, nil
}

// =============================================================================
// USERS
// =============================================================================

func (c *conn) SaveUser(ctx context.Context, u generic.User) error {
	_, err := c.named(ctx, `
		INSERT INTO users (id, name, email, immediate_notification, admin, created_at)
		VALUES (:id, :name, :email, :immediate_notification, :admin, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			immediate_notification = excluded.immediate_notification,
			admin = excluded.admin
	`, toUserRow(u))
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}
	return nil
}

func (c *conn) GetUser(ctx context.Context, id generic.UserID) (*generic.User, error) {
	var r userRow
	if err := c.get(ctx, &r, generic.ErrUserNotFound, `SELECT * FROM users WHERE id = ?`, id); err != nil {
		return nil, err
	}
	u := r.user()
	return &u, nil
}

func (c *conn) ListUsers(ctx context.Context) ([]generic.User, error) {
	return selectRows(ctx, c, userRow.user, `SELECT * FROM users ORDER BY rowid`)
}

// =============================================================================
// ELEMENTS, CONCERNS, MEMBERSHIPS
// =============================================================================

func (c *conn) SaveElement(ctx context.Context, e generic.Element) error {
	_, err := c.named(ctx, `
		INSERT INTO elements (id, name, kind, current, owned, is_group, resource_group,
			group_starts_on, group_ends_on, created_at)
		VALUES (:id, :name, :kind, :current, :owned, :is_group, :resource_group,
			:group_starts_on, :group_ends_on, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			kind = excluded.kind,
			current = excluded.current,
			owned = excluded.owned,
			is_group = excluded.is_group,
			resource_group = excluded.resource_group,
			group_starts_on = excluded.group_starts_on,
			group_ends_on = excluded.group_ends_on
	`, toElementRow(e))
	if err != nil {
		return fmt.Errorf("failed to save element: %w", err)
	}
	return nil
}

func (c *conn) GetElement(ctx context.Context, id generic.ElementID) (*generic.Element, error) {
	var r elementRow
	if err := c.get(ctx, &r, generic.ErrElementNotFound, `SELECT * FROM elements WHERE id = ?`, id); err != nil {
		return nil, err
	}
	e := r.element()
	return &e, nil
}

func (c *conn) ListElements(ctx context.Context) ([]generic.Element, error) {
	return selectRows(ctx, c, elementRow.element, `SELECT * FROM elements ORDER BY rowid`)
}

func (c *conn) DeleteElement(ctx context.Context, id generic.ElementID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM elements WHERE id = ?`, id)
	return mustAffect(res, err, generic.ErrElementNotFound)
}

func (c *conn) SaveConcern(ctx context.Context, con generic.Concern) error {
	_, err := c.named(ctx, `
		INSERT INTO concerns (id, user_id, element_id, visible, equality, owns, auto_add,
			skip_permissions, seek_permission, created_at)
		VALUES (:id, :user_id, :element_id, :visible, :equality, :owns, :auto_add,
			:skip_permissions, :seek_permission, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			visible = excluded.visible,
			equality = excluded.equality,
			owns = excluded.owns,
			auto_add = excluded.auto_add,
			skip_permissions = excluded.skip_permissions,
			seek_permission = excluded.seek_permission
	`, toConcernRow(con))
	if isUniqueConstraintError(err) {
		return generic.ErrDuplicateConcern
	}
	if err != nil {
		return fmt.Errorf("failed to save concern: %w", err)
	}
	return nil
}

func (c *conn) GetConcern(ctx context.Context, id generic.ConcernID) (*generic.Concern, error) {
	var r concernRow
	if err := c.get(ctx, &r, generic.ErrConcernNotFound, `SELECT * FROM concerns WHERE id = ?`, id); err != nil {
		return nil, err
	}
	con := r.concern()
	return &con, nil
}

func (c *conn) DeleteConcern(ctx context.Context, id generic.ConcernID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM concerns WHERE id = ?`, id)
	return mustAffect(res, err, generic.ErrConcernNotFound)
}

func (c *conn) ConcernsForElement(ctx context.Context, id generic.ElementID) ([]generic.Concern, error) {
	return selectRows(ctx, c, concernRow.concern, `SELECT * FROM concerns WHERE element_id = ? ORDER BY rowid`, id)
}

func (c *conn) ConcernsForUser(ctx context.Context, id generic.UserID) ([]generic.Concern, error) {
	return selectRows(ctx, c, concernRow.concern, `SELECT * FROM concerns WHERE user_id = ? ORDER BY rowid`, id)
}

func (c *conn) ConcernBetween(ctx context.Context, userID generic.UserID, elementID generic.ElementID) (*generic.Concern, error) {
	var r concernRow
	ok, err := c.find(ctx, &r, `SELECT * FROM concerns WHERE user_id = ? AND element_id = ?`, userID, elementID)
	if !ok {
		return nil, err
	}
	con := r.concern()
	return &con, nil
}

func (c *conn) SaveMembership(ctx context.Context, m generic.Membership) error {
	_, err := c.named(ctx, `
		INSERT INTO memberships (id, group_id, member_id, inverse, starts_on, ends_on, created_at)
		VALUES (:id, :group_id, :member_id, :inverse, :starts_on, :ends_on, :created_at)
		ON CONFLICT(id) DO UPDATE SET
			inverse = excluded.inverse,
			starts_on = excluded.starts_on,
			ends_on = excluded.ends_on
	`, toMembershipRow(m))
	if err != nil {
		return fmt.Errorf("failed to save membership: %w", err)
	}
	return nil
}

func (c *conn) DeleteMembership(ctx context.Context, id generic.MembershipID) error {
	_, err := c.q.ExecContext(ctx, `DELETE FROM memberships WHERE id = ?`, id)
	return err
}

func (c *conn) MembershipsOfGroup(ctx context.Context, id generic.ElementID) ([]generic.Membership, error) {
	return selectRows(ctx, c, membershipRow.membership, `SELECT * FROM memberships WHERE group_id = ? ORDER BY rowid`, id)
}

func (c *conn) MembershipsOfMember(ctx context.Context, id generic.ElementID) ([]generic.Membership, error) {
	return selectRows(ctx, c, membershipRow.membership, `SELECT * FROM memberships WHERE member_id = ? ORDER BY rowid`, id)
}

// =============================================================================
// EVENTS
// =============================================================================

func (c *conn) SaveEvent(ctx context.Context, e generic.Event) error {
	_, err := c.named(ctx, `
		INSERT INTO events (id, body, starts_at, ends_at, all_day, category, source,
			owner_id, organiser_id, non_existent, created_at, updated_at)
		VALUES (:id, :body, :starts_at, :ends_at, :all_day, :category, :source,
			:owner_id, :organiser_id, :non_existent, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			body = excluded.body,
			starts_at = excluded.starts_at,
			ends_at = excluded.ends_at,
			all_day = excluded.all_day,
			category = excluded.category,
			source = excluded.source,
			owner_id = excluded.owner_id,
			organiser_id = excluded.organiser_id,
			non_existent = excluded.non_existent,
			updated_at = excluded.updated_at
	`, toEventRow(e))
	if err != nil {
		return fmt.Errorf("failed to save event: %w", err)
	}
	return nil
}

func (c *conn) GetEvent(ctx context.Context, id generic.EventID) (*generic.Event, error) {
	var r eventRow
	if err := c.get(ctx, &r, generic.ErrEventNotFound, `SELECT * FROM events WHERE id = ?`, id); err != nil {
		return nil, err
	}
	e := r.event()
	return &e, nil
}

func (c *conn) ListEvents(ctx context.Context) ([]generic.Event, error) {
	return selectRows(ctx, c, eventRow.event, `SELECT * FROM events ORDER BY rowid`)
}

func (c *conn) DeleteEvent(ctx context.Context, id generic.EventID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM events WHERE id = ?`, id)
	return mustAffect(res, err, generic.ErrEventNotFound)
}

// =============================================================================
// COMMITMENTS & REQUESTS
// =============================================================================

func (c *conn) CreateCommitment(ctx context.Context, cm generic.Commitment) error {
	_, err := c.named(ctx, `
		INSERT INTO commitments (id, event_id, element_id, status, covering, reason,
			by_user_id, created_at, updated_at)
		VALUES (:id, :event_id, :element_id, :status, :covering, :reason,
			:by_user_id, :created_at, :updated_at)
	`, toCommitmentRow(cm))
	if isUniqueConstraintError(err) {
		return generic.ErrDuplicateAttachment
	}
	if err != nil {
		return fmt.Errorf("failed to create commitment: %w", err)
	}
	return nil
}

func (c *conn) GetCommitment(ctx context.Context, id generic.CommitmentID) (*generic.Commitment, error) {
	var r commitmentRow
	if err := c.get(ctx, &r, generic.ErrCommitmentNotFound, `SELECT * FROM commitments WHERE id = ?`, id); err != nil {
		return nil, err
	}
	cm := r.commitment()
	return &cm, nil
}

func (c *conn) UpdateCommitment(ctx context.Context, cm generic.Commitment) error {
	res, err := c.named(ctx, `
		UPDATE commitments SET
			status = :status,
			covering = :covering,
			reason = :reason,
			by_user_id = :by_user_id,
			updated_at = :updated_at
		WHERE id = :id
	`, toCommitmentRow(cm))
	return mustAffect(res, err, generic.ErrCommitmentNotFound)
}

func (c *conn) DeleteCommitment(ctx context.Context, id generic.CommitmentID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM commitments WHERE id = ?`, id)
	return mustAffect(res, err, generic.ErrCommitmentNotFound)
}

func (c *conn) CommitmentsForEvent(ctx context.Context, id generic.EventID) ([]generic.Commitment, error) {
	return selectRows(ctx, c, commitmentRow.commitment, `SELECT * FROM commitments WHERE event_id = ? ORDER BY rowid`, id)
}

func (c *conn) CommitmentsForElement(ctx context.Context, id generic.ElementID) ([]generic.Commitment, error) {
	return selectRows(ctx, c, commitmentRow.commitment, `SELECT * FROM commitments WHERE element_id = ? ORDER BY rowid`, id)
}

func (c *conn) CoveringCommitments(ctx context.Context, id generic.RequestID) ([]generic.Commitment, error) {
	return selectRows(ctx, c, commitmentRow.commitment, `SELECT * FROM commitments WHERE covering = ? ORDER BY rowid`, id)
}

func (c *conn) CountCovering(ctx context.Context, id generic.RequestID) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, c.q, &n, `SELECT COUNT(*) FROM commitments WHERE covering = ?`, id)
	return n, err
}

func (c *conn) CreateRequest(ctx context.Context, r generic.Request) error {
	_, err := c.named(ctx, `
		INSERT INTO requests (id, event_id, element_id, quantity, created_at, updated_at)
		VALUES (:id, :event_id, :element_id, :quantity, :created_at, :updated_at)
	`, toRequestRow(r))
	if isUniqueConstraintError(err) {
		return generic.ErrDuplicateAttachment
	}
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return nil
}

func (c *conn) GetRequest(ctx context.Context, id generic.RequestID) (*generic.Request, error) {
	var r requestRow
	if err := c.get(ctx, &r, generic.ErrRequestNotFound, `SELECT * FROM requests WHERE id = ?`, id); err != nil {
		return nil, err
	}
	req := r.request()
	return &req, nil
}

func (c *conn) UpdateRequest(ctx context.Context, r generic.Request) error {
	res, err := c.named(ctx, `
		UPDATE requests SET quantity = :quantity, updated_at = :updated_at WHERE id = :id
	`, toRequestRow(r))
	return mustAffect(res, err, generic.ErrRequestNotFound)
}

func (c *conn) DeleteRequest(ctx context.Context, id generic.RequestID) error {
	res, err := c.q.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id)
	return mustAffect(res, err, generic.ErrRequestNotFound)
}

func (c *conn) RequestsForEvent(ctx context.Context, id generic.EventID) ([]generic.Request, error) {
	return selectRows(ctx, c, requestRow.request, `SELECT * FROM requests WHERE event_id = ? ORDER BY rowid`, id)
}

func (c *conn) RequestsForElement(ctx context.Context, id generic.ElementID) ([]generic.Request, error) {
	return selectRows(ctx, c, requestRow.request, `SELECT * FROM requests WHERE element_id = ? ORDER BY rowid`, id)
}

func (c *conn) FindRequest(ctx context.Context, eventID generic.EventID, elementID generic.ElementID) (*generic.Request, error) {
	var r requestRow
	ok, err := c.find(ctx, &r, `SELECT * FROM requests WHERE event_id = ? AND element_id = ?`, eventID, elementID)
	if !ok {
		return nil, err
	}
	req := r.request()
	return &req, nil
}

func (c *conn) ListRequests(ctx context.Context) ([]generic.Request, error) {
	return selectRows(ctx, c, requestRow.request, `SELECT * FROM requests ORDER BY rowid`)
}

// =============================================================================
// JOURNAL (append-only)
// =============================================================================

func (c *conn) GetJournal(ctx context.Context, eventID generic.EventID) (*generic.Journal, error) {
	var r journalRow
	ok, err := c.find(ctx, &r, `SELECT * FROM journals WHERE event_id = ?`, eventID)
	if !ok {
		return nil, err
	}
	j := r.journal()
	return &j, nil
}

func (c *conn) CreateJournal(ctx context.Context, j generic.Journal) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO journals (id, event_id, event_body, event_starts_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(event_id) DO NOTHING
	`, j.ID, j.EventID, j.EventBody, formatTime(j.EventStartsAt), formatTime(j.CreatedAt))
	return err
}

func (c *conn) AppendEntry(ctx context.Context, e generic.JournalEntry) error {
	row, err := toEntryRow(e)
	if err != nil {
		return fmt.Errorf("failed to encode journal payload: %w", err)
	}
	_, err = c.named(ctx, `
		INSERT INTO journal_entries (id, journal_id, event_id, kind, user_id, element_id, at, payload_json)
		VALUES (:id, :journal_id, :event_id, :kind, :user_id, :element_id, :at, :payload_json)
	`, row)
	return err
}

func (c *conn) JournalEntries(ctx context.Context, eventID generic.EventID) ([]generic.JournalEntry, error) {
	return selectRows(ctx, c, entryRow.entry, `SELECT * FROM journal_entries WHERE event_id = ? ORDER BY rowid`, eventID)
}

// =============================================================================
// FORMS & NOTES
// =============================================================================

func (c *conn) SaveFormResponse(ctx context.Context, f generic.FormResponse) error {
	_, err := c.named(ctx, `
		INSERT INTO form_responses (id, parent_kind, parent_id, user_id, form_name, status, updated_at)
		VALUES (:id, :parent_kind, :parent_id, :user_id, :form_name, :status, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`, toFormRow(f))
	return err
}

func (c *conn) GetFormResponse(ctx context.Context, id generic.FormResponseID) (*generic.FormResponse, error) {
	var r formRow
	if err := c.get(ctx, &r, generic.ErrFormResponseNotFound, `SELECT * FROM form_responses WHERE id = ?`, id); err != nil {
		return nil, err
	}
	f := r.form()
	return &f, nil
}

func (c *conn) FormResponsesFor(ctx context.Context, parent generic.ParentRef) ([]generic.FormResponse, error) {
	return selectRows(ctx, c, formRow.form,
		`SELECT * FROM form_responses WHERE parent_kind = ? AND parent_id = ? ORDER BY rowid`, parent.Kind, parent.ID)
}

func (c *conn) SaveNote(ctx context.Context, n generic.Note) error {
	_, err := c.named(ctx, `
		INSERT INTO notes (id, parent_kind, parent_id, owner_id, title, contents, created_at, updated_at)
		VALUES (:id, :parent_kind, :parent_id, :owner_id, :title, :contents, :created_at, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			contents = excluded.contents,
			updated_at = excluded.updated_at
	`, toNoteRow(n))
	return err
}

func (c *conn) GetNote(ctx context.Context, id generic.NoteID) (*generic.Note, error) {
	var r noteRow
	if err := c.get(ctx, &r, generic.ErrNoteNotFound, `SELECT * FROM notes WHERE id = ?`, id); err != nil {
		return nil, err
	}
	n := r.note()
	return &n, nil
}

func (c *conn) NotesFor(ctx context.Context, parent generic.ParentRef) ([]generic.Note, error) {
	return selectRows(ctx, c, noteRow.note,
		`SELECT * FROM notes WHERE parent_kind = ? AND parent_id = ? ORDER BY rowid`, parent.Kind, parent.ID)
}

func (c *conn) DeleteAttachments(ctx context.Context, parent generic.ParentRef) error {
	if _, err := c.q.ExecContext(ctx,
		`DELETE FROM form_responses WHERE parent_kind = ? AND parent_id = ?`, parent.Kind, parent.ID); err != nil {
		return err
	}
	_, err := c.q.ExecContext(ctx,
		`DELETE FROM notes WHERE parent_kind = ? AND parent_id = ?`, parent.Kind, parent.ID)
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
