package asyncjob

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/CharanSaiVaddi/purrctl/internal/job"
)

// fakeAPI answers creates with created (or createErr) and polls with the
// scripted snapshots in order, repeating the last one.
type fakeAPI struct {
	mu        sync.Mutex
	created   []job.Snapshot
	createErr error
	polls     []job.Snapshot
	pollErr   error
	creates   int
	gets      int
	ids       []string
	requests  []job.Request
}

func (f *fakeAPI) CreateJob(ctx context.Context, req job.Request) (job.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.requests = append(f.requests, req)
	if f.createErr != nil {
		return nil, f.createErr
	}
	i := f.creates - 1
	if i >= len(f.created) {
		i = len(f.created) - 1
	}
	return f.created[i], nil
}

func (f *fakeAPI) GetJobByID(ctx context.Context, id string) (job.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	f.ids = append(f.ids, id)
	if f.pollErr != nil {
		return nil, f.pollErr
	}
	i := f.gets - 1
	if i >= len(f.polls) {
		i = len(f.polls) - 1
	}
	return f.polls[i], nil
}

func (f *fakeAPI) counts() (creates, gets int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creates, f.gets
}

type recorder struct {
	mu      sync.Mutex
	results []Result
	errs    []job.Outcome
}

func (r *recorder) complete(res Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, res)
}

func (r *recorder) fail(o job.Outcome, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, o)
}

func (r *recorder) snapshot() ([]Result, []job.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Result(nil), r.results...), append([]job.Outcome(nil), r.errs...)
}

func quietLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestController(t *testing.T, api JobAPI, rec *recorder, deadline time.Duration) *Controller {
	t.Helper()
	c := New(api, rec.complete,
		WithPollInterval(5*time.Millisecond),
		WithDeadline(deadline),
		WithLogger(quietLogger()),
		WithErrorHandler(rec.fail),
	)
	t.Cleanup(c.Close)
	return c
}

func waitIdle(t *testing.T, c *Controller) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.Wait(ctx); err != nil {
		t.Fatalf("controller did not finish: %v", err)
	}
}

var uwiA = []any{map[string]any{"uwi": "A"}}

func TestSubmitPollsUntilCompleted(t *testing.T) {
	api := &fakeAPI{
		created: []job.Snapshot{{"id": "job-1", "message": "Job created successfully"}},
		polls: []job.Snapshot{
			{"id": "job-1", "status": "pending"},
			{"id": "job-1", "status": "completed", "result": "ok"},
		},
	}
	rec := &recorder{}
	c := newTestController(t, api, rec, time.Minute)

	if err := c.Submit(context.Background(), "add_petra_repo", uwiA); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitIdle(t, c)

	// no further polls once the job is terminal
	time.Sleep(30 * time.Millisecond)
	results, errs := rec.snapshot()
	if len(results) != 1 {
		t.Fatalf("expected exactly one completion, got %d", len(results))
	}
	res := results[0]
	if res.Outcome != job.OutcomeCompleted || res.Snapshot["result"] != "ok" || res.JobID != "job-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if _, gets := api.counts(); gets != 2 || res.Polls != 2 {
		t.Fatalf("expected 2 polls, got %d (result says %d)", gets, res.Polls)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if st := c.State(); st.IsPending() || st.Outcome != job.OutcomeCompleted {
		t.Fatalf("unexpected final state: %+v", st)
	}
	req := api.requests[0]
	if req.Status != job.StatusPending || req.Directive != "add_petra_repo" || len(req.Items) != 1 {
		t.Fatalf("unexpected request: %+v", req)
	}
}

func TestSubmitCreateFailure(t *testing.T) {
	boom := errors.New("network down")
	api := &fakeAPI{createErr: boom}
	rec := &recorder{}
	c := newTestController(t, api, rec, time.Minute)

	err := c.Submit(context.Background(), "zip_and_show", uwiA)
	if !errors.Is(err, ErrSubmit) || !errors.Is(err, boom) {
		t.Fatalf("expected wrapped submit error, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if st := c.State(); st.IsPending() {
		t.Fatalf("expected idle after create failure, got %+v", st)
	}
	if _, gets := api.counts(); gets != 0 {
		t.Fatalf("expected no polls, got %d", gets)
	}
	results, errs := rec.snapshot()
	if len(results) != 0 {
		t.Fatalf("completion must not fire on create failure, got %v", results)
	}
	if len(errs) != 1 || errs[0] != job.OutcomeSubmitError {
		t.Fatalf("expected one submit_error report, got %v", errs)
	}
}

func TestSubmitTimesOut(t *testing.T) {
	api := &fakeAPI{
		created: []job.Snapshot{{"id": "job-slow"}},
		polls:   []job.Snapshot{{"id": "job-slow", "status": "pending", "step": 1}},
	}
	rec := &recorder{}
	// ceil(22ms / 5ms) = 5 polls
	c := newTestController(t, api, rec, 22*time.Millisecond)

	if err := c.Submit(context.Background(), "zip_and_show", uwiA); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitIdle(t, c)
	time.Sleep(30 * time.Millisecond)

	results, _ := rec.snapshot()
	if len(results) != 1 {
		t.Fatalf("expected one completion, got %d", len(results))
	}
	res := results[0]
	if res.Outcome != job.OutcomeTimedOut || res.Snapshot.Status() != job.StatusPending {
		t.Fatalf("expected timed out pending snapshot, got %+v", res)
	}
	if _, gets := api.counts(); gets != 5 {
		t.Fatalf("expected polling to stop after 5 polls, got %d", gets)
	}
}

func TestSubmitMissingJobID(t *testing.T) {
	api := &fakeAPI{created: []job.Snapshot{{"message": "Job created successfully"}}}
	rec := &recorder{}
	c := newTestController(t, api, rec, time.Minute)

	err := c.Submit(context.Background(), "add_petra_repo", uwiA)
	if !errors.Is(err, ErrMissingJobID) {
		t.Fatalf("expected missing job id error, got %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	if _, gets := api.counts(); gets != 0 {
		t.Fatalf("expected no polls without a job id, got %d", gets)
	}
}

func TestSubmitTerminalOnCreate(t *testing.T) {
	api := &fakeAPI{created: []job.Snapshot{{"id": "job-fast", "status": "completed"}}}
	rec := &recorder{}
	c := newTestController(t, api, rec, time.Minute)

	if err := c.Submit(context.Background(), "add_petra_repo", uwiA); err != nil {
		t.Fatalf("submit: %v", err)
	}
	// delivered before Submit returns
	results, _ := rec.snapshot()
	if len(results) != 1 || results[0].Polls != 0 {
		t.Fatalf("expected immediate completion, got %+v", results)
	}
	time.Sleep(20 * time.Millisecond)
	if _, gets := api.counts(); gets != 0 {
		t.Fatalf("expected no polls, got %d", gets)
	}
}

func TestPollFailureIsNotACompletion(t *testing.T) {
	api := &fakeAPI{
		created: []job.Snapshot{{"id": "job-1"}},
		pollErr: errors.New("502 bad gateway"),
	}
	rec := &recorder{}
	c := newTestController(t, api, rec, time.Minute)

	if err := c.Submit(context.Background(), "add_petra_repo", uwiA); err != nil {
		t.Fatalf("submit: %v", err)
	}
	waitIdle(t, c)
	time.Sleep(20 * time.Millisecond)

	results, errs := rec.snapshot()
	if len(results) != 0 {
		t.Fatalf("poll failure must not complete, got %v", results)
	}
	if len(errs) != 1 || errs[0] != job.OutcomePollError {
		t.Fatalf("expected one poll_error report, got %v", errs)
	}
	if _, gets := api.counts(); gets != 1 {
		t.Fatalf("expected polling to stop after the failure, got %d polls", gets)
	}
}

func TestSubmitEmptyItems(t *testing.T) {
	api := &fakeAPI{}
	c := newTestController(t, api, &recorder{}, time.Minute)
	if err := c.Submit(context.Background(), "zip_and_show", nil); !errors.Is(err, job.ErrNoItems) {
		t.Fatalf("expected ErrNoItems, got %v", err)
	}
	if creates, _ := api.counts(); creates != 0 {
		t.Fatalf("expected no create call, got %d", creates)
	}
}

func TestCyclesAreIndependent(t *testing.T) {
	api := &fakeAPI{
		created: []job.Snapshot{{"id": "job-1"}, {"id": "job-2"}},
		polls: []job.Snapshot{
			{"status": "pending"},
			{"status": "pending"},
			{"status": "completed"},
			{"status": "failed"},
		},
	}
	rec := &recorder{}
	c := newTestController(t, api, rec, time.Minute)

	if err := c.Submit(context.Background(), "add_petra_repo", uwiA); err != nil {
		t.Fatalf("submit 1: %v", err)
	}
	waitIdle(t, c)
	if err := c.Submit(context.Background(), "add_petra_repo", uwiA); err != nil {
		t.Fatalf("submit 2: %v", err)
	}
	waitIdle(t, c)

	results, _ := rec.snapshot()
	if len(results) != 2 {
		t.Fatalf("expected two completions, got %d", len(results))
	}
	if results[0].JobID != "job-1" || results[0].Polls != 3 || results[0].Outcome != job.OutcomeCompleted {
		t.Fatalf("unexpected first cycle: %+v", results[0])
	}
	if results[1].JobID != "job-2" || results[1].Polls != 1 || results[1].Outcome != job.OutcomeFailed {
		t.Fatalf("unexpected second cycle: %+v", results[1])
	}
	if api.requests[0].IdempotencyKey == api.requests[1].IdempotencyKey {
		t.Fatal("each submission needs its own idempotency key")
	}
	if last := api.ids[len(api.ids)-1]; last != "job-2" {
		t.Fatalf("second cycle polled %q", last)
	}
}

func TestCloseStopsPolling(t *testing.T) {
	api := &fakeAPI{
		created: []job.Snapshot{{"id": "job-1"}},
		polls:   []job.Snapshot{{"status": "pending"}},
	}
	rec := &recorder{}
	c := New(api, rec.complete, WithPollInterval(5*time.Millisecond), WithLogger(quietLogger()))

	if err := c.Submit(context.Background(), "zip_and_show", uwiA); err != nil {
		t.Fatalf("submit: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	c.Close()
	_, before := api.counts()
	time.Sleep(30 * time.Millisecond)
	_, after := api.counts()

	if before != after {
		t.Fatalf("polls continued after close: %d -> %d", before, after)
	}
	if results, _ := rec.snapshot(); len(results) != 0 {
		t.Fatalf("close must not notify, got %v", results)
	}
	if err := c.Submit(context.Background(), "zip_and_show", uwiA); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

// jobsByID answers polls per job id: "old" never finishes, "new" completes on
// its second poll.
type jobsByID struct {
	mu      sync.Mutex
	creates int
	gets    map[string]int
}

func (j *jobsByID) CreateJob(ctx context.Context, req job.Request) (job.Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.creates++
	if j.creates == 1 {
		return job.Snapshot{"id": "old"}, nil
	}
	return job.Snapshot{"id": "new"}, nil
}

func (j *jobsByID) GetJobByID(ctx context.Context, id string) (job.Snapshot, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.gets[id]++
	if id == "new" && j.gets[id] >= 2 {
		return job.Snapshot{"id": id, "status": "completed"}, nil
	}
	return job.Snapshot{"id": id, "status": "pending"}, nil
}

func (j *jobsByID) count(id string) int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.gets[id]
}

func TestResubmitSupersedesCycleInFlight(t *testing.T) {
	api := &jobsByID{gets: map[string]int{}}
	rec := &recorder{}
	c := newTestController(t, api, rec, time.Minute)

	if err := c.Submit(context.Background(), "zip_and_show", uwiA); err != nil {
		t.Fatalf("submit old: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for api.count("old") == 0 {
		if time.Now().After(deadline) {
			t.Fatal("old job was never polled")
		}
		time.Sleep(time.Millisecond)
	}

	if err := c.Submit(context.Background(), "zip_and_show", uwiA); err != nil {
		t.Fatalf("submit new: %v", err)
	}
	atSwitch := api.count("old")
	waitIdle(t, c)
	time.Sleep(30 * time.Millisecond)

	results, errs := rec.snapshot()
	if len(results) != 1 || results[0].JobID != "new" || results[0].Polls != 2 {
		t.Fatalf("expected only the new cycle to complete, got %+v", results)
	}
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	// a tick already past its cancel check may still land
	if after := api.count("old"); after > atSwitch+1 {
		t.Fatalf("old job kept polling after resubmit: %d -> %d", atSwitch, after)
	}
}

func TestCloseRacingSubmitLeavesNothingPending(t *testing.T) {
	for i := 0; i < 50; i++ {
		api := &fakeAPI{
			created: []job.Snapshot{{"id": "job-1"}},
			polls:   []job.Snapshot{{"status": "pending"}},
		}
		c := New(api, nil, WithPollInterval(time.Millisecond), WithLogger(quietLogger()))

		closed := make(chan struct{})
		go func() {
			c.Close()
			close(closed)
		}()
		err := c.Submit(context.Background(), "zip_and_show", uwiA)
		if err != nil && !errors.Is(err, ErrClosed) {
			t.Fatalf("run %d: unexpected submit error: %v", i, err)
		}
		<-closed

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		if err := c.Wait(ctx); err != nil {
			cancel()
			t.Fatalf("run %d: wait after close: %v", i, err)
		}
		cancel()
		if st := c.State(); st.IsPending() {
			t.Fatalf("run %d: cycle still pending after close: %+v", i, st)
		}
	}
}

func TestRequestTTLUsesClockAndLease(t *testing.T) {
	api := &fakeAPI{created: []job.Snapshot{{"id": "job-1", "status": "completed"}}}
	now := time.Unix(1_700_000_000, 0)
	c := New(api, nil,
		WithClock(func() time.Time { return now }),
		WithLease(90*time.Second),
		WithLogger(quietLogger()),
	)
	defer c.Close()

	if err := c.Submit(context.Background(), "add_petra_repo", uwiA); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := api.requests[0].TTL; got != 1_700_000_090 {
		t.Fatalf("expected ttl 1700000090, got %d", got)
	}
}
