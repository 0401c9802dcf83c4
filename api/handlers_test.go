/*
handlers_test.go - HTTP tests for the API handlers

Tests for:
- Scenario loading and event inspection
- Approval decisions (owner vs stranger, refused = no-op)
- Interactive notification sessions
- Request fulfilment and quantities
- Actor and validation errors
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/scheduling-engine/generic"
	"github.com/warp/scheduling-engine/generic/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type recordingSink struct {
	mu   sync.Mutex
	sent []generic.Notification
}

func (s *recordingSink) Notify(_ context.Context, n generic.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) of(kind generic.NotificationKind) []generic.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []generic.Notification
	for _, n := range s.sent {
		if n.Kind == kind {
			out = append(out, n)
		}
	}
	return out
}

type testServer struct {
	router http.Handler
	h      *Handler
	store  *store.TxMemory
	sink   *recordingSink
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := store.NewTxMemory()
	sink := &recordingSink{}
	h := NewHandler(generic.NewEngine(s, sink, generic.DefaultSettings()))
	return &testServer{router: NewRouter(h), h: h, store: s, sink: sink}
}

// do sends a request as the given user ("" = system).
func (ts *testServer) do(t *testing.T, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(ActorHeader, user)
	}
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

// loadSchoolWeek loads the built-in scenario and returns its event ids by key.
func (ts *testServer) loadSchoolWeek(t *testing.T) map[string]string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/scenarios/load", "", LoadScenarioRequest{ScenarioID: "school-week"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeAs[struct {
		Events map[string]string `json:"events"`
	}](t, rec)
	return resp.Events
}

func (ts *testServer) event(t *testing.T, id string) EventDetailDTO {
	t.Helper()
	rec := ts.do(t, http.MethodGet, "/api/events/"+id, "", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeAs[EventDetailDTO](t, rec)
}

func commitmentFor(t *testing.T, detail EventDetailDTO, elementID string) CommitmentDTO {
	t.Helper()
	for _, c := range detail.Commitments {
		if c.ElementID == elementID {
			return c
		}
	}
	t.Fatalf("no commitment for %s on %s", elementID, detail.Event.ID)
	return CommitmentDTO{}
}

// =============================================================================
// SCENARIO & EVENT TESTS
// =============================================================================

func TestGetEvent_AfterScenarioLoad(t *testing.T) {
	// GIVEN: The school week scenario
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)

	// WHEN: Inspecting the assembly
	detail := ts.event(t, events["assembly"])

	// THEN: The hall waits for olive, so the event is incomplete
	assert.Equal(t, "Year 7 Assembly", detail.Event.Body)
	assert.Len(t, detail.Commitments, 3)
	assert.Equal(t, "tentative", commitmentFor(t, detail, "hall").Status)
	assert.Equal(t, "approved", commitmentFor(t, detail, "projector").Status)
	assert.False(t, detail.Complete)

	computing := ts.event(t, events["computing"])
	require.Len(t, computing.Requests, 1)
	assert.Equal(t, 2, computing.Requests[0].Quantity)
	assert.Equal(t, 2, computing.Requests[0].NumOutstanding)
	assert.Equal(t, "0.00", computing.Requests[0].Coverage)
}

func TestApprove_OnlyTheOwnerDecides(t *testing.T) {
	// GIVEN: The assembly's tentative hall booking
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)
	hall := commitmentFor(t, ts.event(t, events["assembly"]), "hall")
	path := "/api/commitments/" + hall.ID + "/approve"

	// WHEN: Tom, who does not own the hall, approves it
	rec := ts.do(t, http.MethodPost, path, "tom", nil)

	// THEN: Nothing happens, and that is not an error
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DecisionDTO{Changed: false, Status: "tentative"}, decodeAs[DecisionDTO](t, rec))

	// WHEN: Olive approves it
	rec = ts.do(t, http.MethodPost, path, "olive", nil)

	// THEN: It is approved, the event is complete and tom hears about it
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, DecisionDTO{Changed: true, Status: "approved"}, decodeAs[DecisionDTO](t, rec))
	assert.True(t, ts.event(t, events["assembly"]).Complete)

	approved := ts.sink.of(generic.NotifyCommitmentApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, generic.UserID("tom"), approved[0].Recipient.ID)
	assert.True(t, approved[0].EventComplete)

	// WHEN: Olive approves it again
	rec = ts.do(t, http.MethodPost, path, "olive", nil)

	// THEN: A second approval is refused quietly
	assert.Equal(t, DecisionDTO{Changed: false, Status: "approved"}, decodeAs[DecisionDTO](t, rec))
}

func TestReject_RecordsReasonInJournal(t *testing.T) {
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)
	hall := commitmentFor(t, ts.event(t, events["assembly"]), "hall")

	rec := ts.do(t, http.MethodPost, "/api/commitments/"+hall.ID+"/reject", "olive", DecisionRequest{Reason: "Exams"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rejected", decodeAs[DecisionDTO](t, rec).Status)
	assert.Equal(t, "Exams", commitmentFor(t, ts.event(t, events["assembly"]), "hall").Reason)

	rec = ts.do(t, http.MethodGet, "/api/events/"+events["assembly"]+"/journal", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	entries := decodeAs[[]JournalEntryDTO](t, rec)
	require.NotEmpty(t, entries)
	last := entries[len(entries)-1]
	assert.Equal(t, string(generic.EntryCommitmentRejected), last.Kind)
	require.NotNil(t, last.UserID)
	assert.Equal(t, "olive", *last.UserID)
}

func TestDestroyEvent(t *testing.T) {
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)

	rec := ts.do(t, http.MethodDelete, "/api/events/"+events["assembly"], "tom", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/events/"+events["assembly"], "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// olive still had a pending hall request to hear about
	assert.Len(t, ts.sink.of(generic.NotifyResourceCancelled), 1)
}

// =============================================================================
// EDITING SESSION TESTS
// =============================================================================

func createEvent(t *testing.T, ts *testServer, user, body string) EventDTO {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/events", user, map[string]any{
		"body":      body,
		"starts_at": "2025-03-12T10:00:00Z",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeAs[EventDTO](t, rec)
}

func TestEditingSession_NotifiesOwnersOnFinish(t *testing.T) {
	// GIVEN: Tom creates an event and attaches the controlled hall
	ts := newTestServer(t)
	ts.loadSchoolWeek(t)
	ev := createEvent(t, ts, "tom", "Parents Evening")
	rec := ts.do(t, http.MethodPost, "/api/events/"+ev.ID+"/attachments", "tom", AttachRequest{ElementIDs: []string{"hall", "projector"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[AttachResultDTO](t, rec)
	assert.Len(t, res.Commitments, 2)
	assert.Empty(t, res.Failures)

	// THEN: Nobody is told anything until tom finishes editing
	assert.Empty(t, ts.sink.of(generic.NotifyResourceRequested))

	// WHEN: Tom finishes
	rec = ts.do(t, http.MethodPost, "/api/events/"+ev.ID+"/notify", "tom", nil)

	// THEN: Olive hears about the hall once; the projector needs no approval
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]int{"sent": 1}, decodeAs[map[string]int](t, rec))
	requested := ts.sink.of(generic.NotifyResourceRequested)
	require.Len(t, requested, 1)
	assert.Equal(t, generic.UserID("olive"), requested[0].Recipient.ID)
	assert.Equal(t, generic.ElementID("hall"), requested[0].Element.ID)

	// A second finish has nothing left to send
	rec = ts.do(t, http.MethodPost, "/api/events/"+ev.ID+"/notify", "tom", nil)
	assert.Equal(t, map[string]int{"sent": 0}, decodeAs[map[string]int](t, rec))
}

func TestEditingSession_AddThenRemoveIsSilent(t *testing.T) {
	ts := newTestServer(t)
	ts.loadSchoolWeek(t)
	ev := createEvent(t, ts, "tom", "Parents Evening")

	rec := ts.do(t, http.MethodPost, "/api/events/"+ev.ID+"/attachments", "tom", AttachRequest{ElementIDs: []string{"hall"}})
	require.Equal(t, http.StatusOK, rec.Code)
	hall := decodeAs[AttachResultDTO](t, rec).Commitments[0]

	rec = ts.do(t, http.MethodDelete, "/api/commitments/"+hall.ID, "tom", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, ts.h.Sessions.Pending(&generic.User{ID: "tom"}, generic.EventID(ev.ID)))

	rec = ts.do(t, http.MethodPost, "/api/events/"+ev.ID+"/notify", "tom", nil)
	assert.Equal(t, map[string]int{"sent": 0}, decodeAs[map[string]int](t, rec))
	assert.Empty(t, ts.sink.of(generic.NotifyResourceRequested))
	assert.Empty(t, ts.sink.of(generic.NotifyResourceCancelled))
}

func TestAttach_DuplicateIsReportedPerElement(t *testing.T) {
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)

	rec := ts.do(t, http.MethodPost, "/api/events/"+events["assembly"]+"/attachments", "tom", AttachRequest{ElementIDs: []string{"hall", "it1"}})

	require.Equal(t, http.StatusOK, rec.Code)
	res := decodeAs[AttachResultDTO](t, rec)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "hall", res.Failures[0].ElementID)
	require.Len(t, res.Commitments, 1)
	assert.Equal(t, "it1", res.Commitments[0].ElementID)
}

// =============================================================================
// FULFILMENT TESTS
// =============================================================================

func TestFulfil_RequestLifecycle(t *testing.T) {
	// GIVEN: The computing exam needs two IT suites
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)
	req := ts.event(t, events["computing"]).Requests[0]
	base := "/api/requests/" + req.ID

	// WHEN: Tom allocates IT1
	rec := ts.do(t, http.MethodPost, base+"/fulfill", "tom", FulfillRequest{ElementID: "it1"})

	// THEN: A covering commitment appears
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	covering := decodeAs[CommitmentDTO](t, rec)
	require.NotNil(t, covering.Covering)
	assert.Equal(t, req.ID, *covering.Covering)

	// Same suite twice conflicts; the hall is not an IT suite
	assert.Equal(t, http.StatusConflict, ts.do(t, http.MethodPost, base+"/fulfill", "tom", FulfillRequest{ElementID: "it1"}).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, base+"/fulfill", "tom", FulfillRequest{ElementID: "hall"}).Code)

	// WHEN: Tom bulk-allocates the other two
	rec = ts.do(t, http.MethodPost, base+"/bulk-fulfill", "tom", BulkFulfillRequest{ElementIDs: []string{"it2", "it3"}})

	// THEN: Only one fits
	require.Equal(t, http.StatusOK, rec.Code)
	bulk := decodeAs[AttachResultDTO](t, rec)
	assert.Len(t, bulk.Commitments, 1)
	require.Len(t, bulk.Failures, 1)
	assert.Equal(t, "it3", bulk.Failures[0].ElementID)
	assert.Equal(t, "1.00", bulk.Requests[0].Coverage)

	// WHEN: The quantity drops to one
	rec = ts.do(t, http.MethodPut, base+"/quantity", "tom", map[string]int{"quantity": 1})

	// THEN: The newest allocation is evicted
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	alloc := decodeAs[RequestDTO](t, rec)
	assert.Equal(t, 1, alloc.Quantity)
	assert.Equal(t, 1, alloc.NumAllocated)
	assert.Equal(t, 0, alloc.NumOutstanding)

	// WHEN: IT1 is given back
	rec = ts.do(t, http.MethodPost, "/api/commitments/"+covering.ID+"/unfulfill", "tom", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN: The request is empty again
	rec = ts.do(t, http.MethodGet, base, "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, decodeAs[RequestDTO](t, rec).NumAllocated)
}

// =============================================================================
// ERROR TESTS
// =============================================================================

func TestActorHeader_UnknownUser(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/events", "ghost", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestValidation(t *testing.T) {
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)
	req := ts.event(t, events["computing"]).Requests[0]

	tests := []struct {
		name   string
		method string
		path   string
		body   any
	}{
		{"event without body", http.MethodPost, "/api/events", map[string]any{"starts_at": "2025-03-12T10:00:00Z"}},
		{"attach nothing", http.MethodPost, "/api/events/" + events["assembly"] + "/attachments", AttachRequest{}},
		{"negative quantity", http.MethodPut, "/api/requests/" + req.ID + "/quantity", map[string]int{"quantity": -1}},
		{"missing quantity", http.MethodPut, "/api/requests/" + req.ID + "/quantity", map[string]int{}},
		{"bad kind", http.MethodPost, "/api/elements", CreateElementRequest{Name: "Boat", Kind: "boat"}},
		{"location as group", http.MethodPost, "/api/memberships", AddMembershipRequest{GroupID: "hall", MemberID: "it1", StartsOn: "2025-01-01"}},
		{"self membership", http.MethodPost, "/api/memberships", AddMembershipRequest{GroupID: "it-suites", MemberID: "it-suites", StartsOn: "2025-01-01"}},
		{"unknown scenario", http.MethodPost, "/api/scenarios/load", LoadScenarioRequest{ScenarioID: "moon-landing"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(t, tt.method, tt.path, "tom", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
		})
	}
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/api/events/nope", "/api/requests/nope", "/api/elements/nope"} {
		rec := ts.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code, path)
	}
}

// =============================================================================
// CLONING, FORMS & NOTES
// =============================================================================

func TestCloneEvent_CopiesResourcesAndBatchesNotices(t *testing.T) {
	// GIVEN: The assembly
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)

	// WHEN: Tom repeats it for the next two weeks
	rec := ts.do(t, http.MethodPost, "/api/events/"+events["assembly"]+"/clones", "tom", map[string]any{
		"clones": []map[string]any{
			{"starts_at": "2025-03-17T09:00:00Z"},
			{"starts_at": "2025-03-24T09:00:00Z"},
		},
	})

	// THEN: Both copies carry the same resources; olive gets one summary
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	clones := decodeAs[[]EventDTO](t, rec)
	require.Len(t, clones, 2)
	for _, c := range clones {
		detail := ts.event(t, c.ID)
		assert.Equal(t, "Year 7 Assembly", detail.Event.Body)
		assert.Len(t, detail.Commitments, 3)
		assert.Equal(t, "tentative", commitmentFor(t, detail, "hall").Status)
	}
	batches := ts.sink.of(generic.NotifyResourceBatch)
	require.Len(t, batches, 1)
	assert.Equal(t, generic.UserID("olive"), batches[0].Recipient.ID)
	assert.Len(t, batches[0].Batch.Added, 2)
}

func TestMatchEvent_AddsWhatIsMissing(t *testing.T) {
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)
	ev := createEvent(t, ts, "tom", "Rehearsal")

	rec := ts.do(t, http.MethodPost, "/api/events/"+ev.ID+"/match", "tom", MatchRequest{ReferenceID: events["computing"]})

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res := decodeAs[AttachResultDTO](t, rec)
	assert.Empty(t, res.Commitments)
	require.Len(t, res.Requests, 1)
	assert.Equal(t, "it-suites", res.Requests[0].ElementID)
	assert.Equal(t, 2, res.Requests[0].Quantity)
}

func TestFormsAndNotes(t *testing.T) {
	ts := newTestServer(t)
	events := ts.loadSchoolWeek(t)
	base := "/api/events/" + events["assembly"]

	rec := ts.do(t, http.MethodPost, base+"/forms", "tom", AttachFormRequest{FormName: "Risk assessment"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	form := decodeAs[FormDTO](t, rec)
	assert.Equal(t, "empty", form.Status)
	assert.Equal(t, "event:"+events["assembly"], form.Parent)

	rec = ts.do(t, http.MethodPut, "/api/forms/"+form.ID, "tom", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "partial", decodeAs[FormDTO](t, rec).Status)

	rec = ts.do(t, http.MethodPost, "/api/forms/"+form.ID+"/complete", "tom", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "complete", decodeAs[FormDTO](t, rec).Status)

	rec = ts.do(t, http.MethodPost, base+"/notes", "tom", NoteRequest{Title: "Seating", Contents: "Year 7 at the front"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	note := decodeAs[NoteDTO](t, rec)
	require.NotNil(t, note.OwnerID)
	assert.Equal(t, "tom", *note.OwnerID)

	rec = ts.do(t, http.MethodPut, "/api/notes/"+note.ID, "tom", NoteRequest{Title: "Seating", Contents: "Year 7 at the back"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Year 7 at the back", decodeAs[NoteDTO](t, rec).Contents)

	rec = ts.do(t, http.MethodGet, base+"/journal", "", nil)
	var kinds []string
	for _, e := range decodeAs[[]JournalEntryDTO](t, rec) {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, string(generic.EntryFormCompleted))
	assert.Contains(t, kinds, string(generic.EntryNoteAdded))
	assert.Contains(t, kinds, string(generic.EntryNoteUpdated))
}
