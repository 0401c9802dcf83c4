package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/warp/scheduling-engine/generic"
)

// =============================================================================
// ROW TYPES - Flat column mappings scanned by sqlx
// =============================================================================

const (
	timeLayout = time.RFC3339Nano
	dayLayout  = "2006-01-02"
)

type userRow struct {
	ID                    string `db:"id"`
	Name                  string `db:"name"`
	Email                 string `db:"email"`
	ImmediateNotification bool   `db:"immediate_notification"`
	Admin                 bool   `db:"admin"`
	CreatedAt             string `db:"created_at"`
}

func toUserRow(u generic.User) userRow {
	return userRow{
		ID:                    string(u.ID),
		Name:                  u.Name,
		Email:                 u.Email,
		ImmediateNotification: u.ImmediateNotification,
		Admin:                 u.Admin,
		CreatedAt:             formatTime(u.CreatedAt),
	}
}

func (r userRow) user() generic.User {
	return generic.User{
		ID:                    generic.UserID(r.ID),
		Name:                  r.Name,
		Email:                 r.Email,
		ImmediateNotification: r.ImmediateNotification,
		Admin:                 r.Admin,
		CreatedAt:             parseTime(r.CreatedAt),
	}
}

type elementRow struct {
	ID            string         `db:"id"`
	Name          string         `db:"name"`
	Kind          string         `db:"kind"`
	Current       bool           `db:"current"`
	Owned         bool           `db:"owned"`
	IsGroup       bool           `db:"is_group"`
	ResourceGroup bool           `db:"resource_group"`
	GroupStartsOn sql.NullString `db:"group_starts_on"`
	GroupEndsOn   sql.NullString `db:"group_ends_on"`
	CreatedAt     string         `db:"created_at"`
}

func toElementRow(e generic.Element) elementRow {
	r := elementRow{
		ID:        string(e.ID),
		Name:      e.Name,
		Kind:      string(e.Kind),
		Current:   e.Current,
		Owned:     e.Owned,
		CreatedAt: formatTime(e.CreatedAt),
	}
	if e.Group != nil {
		r.IsGroup = true
		r.ResourceGroup = e.Group.ResourceGroup
		r.GroupStartsOn = nullString(formatDay(e.Group.StartsOn))
		r.GroupEndsOn = nullDay(e.Group.EndsOn)
	}
	return r
}

func (r elementRow) element() generic.Element {
	e := generic.Element{
		ID:        generic.ElementID(r.ID),
		Name:      r.Name,
		Kind:      generic.EntityKind(r.Kind),
		Current:   r.Current,
		Owned:     r.Owned,
		CreatedAt: parseTime(r.CreatedAt),
	}
	if r.IsGroup {
		e.Group = &generic.GroupInfo{
			ResourceGroup: r.ResourceGroup,
			StartsOn:      parseDay(r.GroupStartsOn.String),
			EndsOn:        parseNullDay(r.GroupEndsOn),
		}
	}
	return e
}

type concernRow struct {
	ID              string `db:"id"`
	UserID          string `db:"user_id"`
	ElementID       string `db:"element_id"`
	Visible         bool   `db:"visible"`
	Equality        bool   `db:"equality"`
	Owns            bool   `db:"owns"`
	AutoAdd         bool   `db:"auto_add"`
	SkipPermissions bool   `db:"skip_permissions"`
	SeekPermission  bool   `db:"seek_permission"`
	CreatedAt       string `db:"created_at"`
}

func toConcernRow(c generic.Concern) concernRow {
	return concernRow{
		ID:              string(c.ID),
		UserID:          string(c.UserID),
		ElementID:       string(c.ElementID),
		Visible:         c.Visible,
		Equality:        c.Equality,
		Owns:            c.Owns,
		AutoAdd:         c.AutoAdd,
		SkipPermissions: c.SkipPermissions,
		SeekPermission:  c.SeekPermission,
		CreatedAt:       formatTime(c.CreatedAt),
	}
}

func (r concernRow) concern() generic.Concern {
	return generic.Concern{
		ID:              generic.ConcernID(r.ID),
		UserID:          generic.UserID(r.UserID),
		ElementID:       generic.ElementID(r.ElementID),
		Visible:         r.Visible,
		Equality:        r.Equality,
		Owns:            r.Owns,
		AutoAdd:         r.AutoAdd,
		SkipPermissions: r.SkipPermissions,
		SeekPermission:  r.SeekPermission,
		CreatedAt:       parseTime(r.CreatedAt),
	}
}

type membershipRow struct {
	ID        string         `db:"id"`
	GroupID   string         `db:"group_id"`
	MemberID  string         `db:"member_id"`
	Inverse   bool           `db:"inverse"`
	StartsOn  string         `db:"starts_on"`
	EndsOn    sql.NullString `db:"ends_on"`
	CreatedAt string         `db:"created_at"`
}

func toMembershipRow(m generic.Membership) membershipRow {
	return membershipRow{
		ID:        string(m.ID),
		GroupID:   string(m.GroupID),
		MemberID:  string(m.MemberID),
		Inverse:   m.Inverse,
		StartsOn:  formatDay(m.StartsOn),
		EndsOn:    nullDay(m.EndsOn),
		CreatedAt: formatTime(m.CreatedAt),
	}
}

func (r membershipRow) membership() generic.Membership {
	return generic.Membership{
		ID:        generic.MembershipID(r.ID),
		GroupID:   generic.ElementID(r.GroupID),
		MemberID:  generic.ElementID(r.MemberID),
		Inverse:   r.Inverse,
		StartsOn:  parseDay(r.StartsOn),
		EndsOn:    parseNullDay(r.EndsOn),
		CreatedAt: parseTime(r.CreatedAt),
	}
}

type eventRow struct {
	ID          string         `db:"id"`
	Body        string         `db:"body"`
	StartsAt    string         `db:"starts_at"`
	EndsAt      string         `db:"ends_at"`
	AllDay      bool           `db:"all_day"`
	Category    string         `db:"category"`
	Source      string         `db:"source"`
	OwnerID     sql.NullString `db:"owner_id"`
	OrganiserID sql.NullString `db:"organiser_id"`
	NonExistent bool           `db:"non_existent"`
	CreatedAt   string         `db:"created_at"`
	UpdatedAt   string         `db:"updated_at"`
}

func toEventRow(e generic.Event) eventRow {
	return eventRow{
		ID:          string(e.ID),
		Body:        e.Body,
		StartsAt:    formatTime(e.StartsAt),
		EndsAt:      formatTime(e.EndsAt),
		AllDay:      e.AllDay,
		Category:    e.Category,
		Source:      e.Source,
		OwnerID:     nullID(e.OwnerID),
		OrganiserID: nullID(e.OrganiserID),
		NonExistent: e.NonExistent,
		CreatedAt:   formatTime(e.CreatedAt),
		UpdatedAt:   formatTime(e.UpdatedAt),
	}
}

func (r eventRow) event() generic.Event {
	return generic.Event{
		ID:          generic.EventID(r.ID),
		Body:        r.Body,
		StartsAt:    parseTime(r.StartsAt),
		EndsAt:      parseTime(r.EndsAt),
		AllDay:      r.AllDay,
		Category:    r.Category,
		Source:      r.Source,
		OwnerID:     parseNullID[generic.UserID](r.OwnerID),
		OrganiserID: parseNullID[generic.ElementID](r.OrganiserID),
		NonExistent: r.NonExistent,
		CreatedAt:   parseTime(r.CreatedAt),
		UpdatedAt:   parseTime(r.UpdatedAt),
	}
}

type commitmentRow struct {
	ID        string         `db:"id"`
	EventID   string         `db:"event_id"`
	ElementID string         `db:"element_id"`
	Status    string         `db:"status"`
	Covering  sql.NullString `db:"covering"`
	Reason    string         `db:"reason"`
	ByUserID  sql.NullString `db:"by_user_id"`
	CreatedAt string         `db:"created_at"`
	UpdatedAt string         `db:"updated_at"`
}

func toCommitmentRow(c generic.Commitment) commitmentRow {
	return commitmentRow{
		ID:        string(c.ID),
		EventID:   string(c.EventID),
		ElementID: string(c.ElementID),
		Status:    string(c.Status),
		Covering:  nullID(c.Covering),
		Reason:    c.Reason,
		ByUserID:  nullID(c.ByUserID),
		CreatedAt: formatTime(c.CreatedAt),
		UpdatedAt: formatTime(c.UpdatedAt),
	}
}

func (r commitmentRow) commitment() generic.Commitment {
	return generic.Commitment{
		ID:        generic.CommitmentID(r.ID),
		EventID:   generic.EventID(r.EventID),
		ElementID: generic.ElementID(r.ElementID),
		Status:    generic.ApprovalStatus(r.Status),
		Covering:  parseNullID[generic.RequestID](r.Covering),
		Reason:    r.Reason,
		ByUserID:  parseNullID[generic.UserID](r.ByUserID),
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

type requestRow struct {
	ID        string `db:"id"`
	EventID   string `db:"event_id"`
	ElementID string `db:"element_id"`
	Quantity  int    `db:"quantity"`
	CreatedAt string `db:"created_at"`
	UpdatedAt string `db:"updated_at"`
}

func toRequestRow(r generic.Request) requestRow {
	return requestRow{
		ID:        string(r.ID),
		EventID:   string(r.EventID),
		ElementID: string(r.ElementID),
		Quantity:  r.Quantity,
		CreatedAt: formatTime(r.CreatedAt),
		UpdatedAt: formatTime(r.UpdatedAt),
	}
}

func (r requestRow) request() generic.Request {
	return generic.Request{
		ID:        generic.RequestID(r.ID),
		EventID:   generic.EventID(r.EventID),
		ElementID: generic.ElementID(r.ElementID),
		Quantity:  r.Quantity,
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

type journalRow struct {
	ID            string `db:"id"`
	EventID       string `db:"event_id"`
	EventBody     string `db:"event_body"`
	EventStartsAt string `db:"event_starts_at"`
	CreatedAt     string `db:"created_at"`
}

func (r journalRow) journal() generic.Journal {
	return generic.Journal{
		ID:            generic.JournalID(r.ID),
		EventID:       generic.EventID(r.EventID),
		EventBody:     r.EventBody,
		EventStartsAt: parseTime(r.EventStartsAt),
		CreatedAt:     parseTime(r.CreatedAt),
	}
}

type entryRow struct {
	ID          string         `db:"id"`
	JournalID   string         `db:"journal_id"`
	EventID     string         `db:"event_id"`
	Kind        string         `db:"kind"`
	UserID      sql.NullString `db:"user_id"`
	ElementID   sql.NullString `db:"element_id"`
	At          string         `db:"at"`
	PayloadJSON string         `db:"payload_json"`
}

func toEntryRow(e generic.JournalEntry) (entryRow, error) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return entryRow{}, err
	}
	return entryRow{
		ID:          string(e.ID),
		JournalID:   string(e.JournalID),
		EventID:     string(e.EventID),
		Kind:        string(e.Kind),
		UserID:      nullID(e.UserID),
		ElementID:   nullID(e.ElementID),
		At:          formatTime(e.At),
		PayloadJSON: string(payload),
	}, nil
}

func (r entryRow) entry() generic.JournalEntry {
	e := generic.JournalEntry{
		ID:        generic.JournalEntryID(r.ID),
		JournalID: generic.JournalID(r.JournalID),
		EventID:   generic.EventID(r.EventID),
		Kind:      generic.EntryKind(r.Kind),
		UserID:    parseNullID[generic.UserID](r.UserID),
		ElementID: parseNullID[generic.ElementID](r.ElementID),
		At:        parseTime(r.At),
	}
	if r.PayloadJSON != "" && r.PayloadJSON != "null" {
		_ = json.Unmarshal([]byte(r.PayloadJSON), &e.Payload)
	}
	return e
}

type formRow struct {
	ID         string         `db:"id"`
	ParentKind string         `db:"parent_kind"`
	ParentID   string         `db:"parent_id"`
	UserID     sql.NullString `db:"user_id"`
	FormName   string         `db:"form_name"`
	Status     string         `db:"status"`
	UpdatedAt  string         `db:"updated_at"`
}

func toFormRow(f generic.FormResponse) formRow {
	return formRow{
		ID:         string(f.ID),
		ParentKind: string(f.Parent.Kind),
		ParentID:   f.Parent.ID,
		UserID:     nullID(f.UserID),
		FormName:   f.FormName,
		Status:     string(f.Status),
		UpdatedAt:  formatTime(f.UpdatedAt),
	}
}

func (r formRow) form() generic.FormResponse {
	return generic.FormResponse{
		ID:        generic.FormResponseID(r.ID),
		Parent:    generic.ParentRef{Kind: generic.ParentKind(r.ParentKind), ID: r.ParentID},
		UserID:    parseNullID[generic.UserID](r.UserID),
		FormName:  r.FormName,
		Status:    generic.FormStatus(r.Status),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

type noteRow struct {
	ID         string         `db:"id"`
	ParentKind string         `db:"parent_kind"`
	ParentID   string         `db:"parent_id"`
	OwnerID    sql.NullString `db:"owner_id"`
	Title      string         `db:"title"`
	Contents   string         `db:"contents"`
	CreatedAt  string         `db:"created_at"`
	UpdatedAt  string         `db:"updated_at"`
}

func toNoteRow(n generic.Note) noteRow {
	return noteRow{
		ID:         string(n.ID),
		ParentKind: string(n.Parent.Kind),
		ParentID:   n.Parent.ID,
		OwnerID:    nullID(n.OwnerID),
		Title:      n.Title,
		Contents:   n.Contents,
		CreatedAt:  formatTime(n.CreatedAt),
		UpdatedAt:  formatTime(n.UpdatedAt),
	}
}

func (r noteRow) note() generic.Note {
	return generic.Note{
		ID:        generic.NoteID(r.ID),
		Parent:    generic.ParentRef{Kind: generic.ParentKind(r.ParentKind), ID: r.ParentID},
		OwnerID:   parseNullID[generic.UserID](r.OwnerID),
		Title:     r.Title,
		Contents:  r.Contents,
		CreatedAt: parseTime(r.CreatedAt),
		UpdatedAt: parseTime(r.UpdatedAt),
	}
}

// =============================================================================
// COLUMN HELPERS
// =============================================================================

// formatTime keeps the offset so an event reads back on the same local day.
func formatTime(t time.Time) string {
	return t.Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(timeLayout, s)
	return t
}

func formatDay(tp generic.TimePoint) string {
	return tp.Time.Format(dayLayout)
}

func parseDay(s string) generic.TimePoint {
	tp, _ := generic.ParseDay(s)
	return tp
}

func nullDay(tp *generic.TimePoint) sql.NullString {
	if tp == nil {
		return sql.NullString{}
	}
	return nullString(formatDay(*tp))
}

func parseNullDay(s sql.NullString) *generic.TimePoint {
	if !s.Valid {
		return nil
	}
	tp := parseDay(s.String)
	return &tp
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullID[T ~string](id *T) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*id), Valid: true}
}

func parseNullID[T ~string](s sql.NullString) *T {
	if !s.Valid {
		return nil
	}
	id := T(s.String)
	return &id
}
