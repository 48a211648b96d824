package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"posadmin/backend/internal/domain"
	"posadmin/backend/internal/identity"
	"posadmin/backend/internal/store"
)

// fakeLookup serves canned profiles keyed by doc id and by embedded subject
// id. An optional per-subject gate blocks the direct lookup until released,
// which lets tests hold one resolution in flight while another completes.
type fakeLookup struct {
	mu        sync.Mutex
	byDocID   map[string]domain.Profile
	bySubject map[string][]domain.Profile
	failWith  error
	gates     map[string]chan struct{}
}

func newFakeLookup() *fakeLookup {
	return &fakeLookup{
		byDocID:   make(map[string]domain.Profile),
		bySubject: make(map[string][]domain.Profile),
		gates:     make(map[string]chan struct{}),
	}
}

func (f *fakeLookup) addDirect(profile domain.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byDocID[profile.DocID] = profile
}

func (f *fakeLookup) addLegacy(profile domain.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bySubject[profile.SubjectID] = append(f.bySubject[profile.SubjectID], profile)
}

func (f *fakeLookup) gate(subjectID string) chan struct{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan struct{})
	f.gates[subjectID] = ch
	return ch
}

func (f *fakeLookup) GetProfileByKey(_ context.Context, subjectID string) (*domain.Profile, error) {
	f.mu.Lock()
	gate := f.gates[subjectID]
	failWith := f.failWith
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if failWith != nil {
		return nil, failWith
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	profile, ok := f.byDocID[subjectID]
	if !ok {
		return nil, store.ErrNotFound
	}
	copied := profile
	return &copied, nil
}

func (f *fakeLookup) QueryProfilesBySubject(_ context.Context, subjectID string) ([]domain.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]domain.Profile(nil), f.bySubject[subjectID]...), nil
}

// waitForSession polls until the current session satisfies the predicate.
func waitForSession(t *testing.T, sessions *Store, pred func(domain.Session) bool) domain.Session {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		current := sessions.Current()
		if pred(current) {
			return current
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("session never reached expected state, last: %+v", sessions.Current())
	return domain.Session{}
}

func TestResolveProfileDirectHit(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addDirect(domain.Profile{DocID: "sub-1", SubjectID: "sub-1", Role: domain.RoleAdmin})

	profile, err := ResolveProfile(context.Background(), lookup, "sub-1")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if profile == nil || profile.Role != domain.RoleAdmin {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestResolveProfileFallsBackToQuery(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addLegacy(domain.Profile{DocID: "legacy-1", SubjectID: "sub-2", Role: domain.RoleUser})
	lookup.addLegacy(domain.Profile{DocID: "legacy-2", SubjectID: "sub-2", Role: domain.RoleAdmin})

	profile, err := ResolveProfile(context.Background(), lookup, "sub-2")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// First match wins when the fallback query returns more than one profile.
	if profile == nil || profile.DocID != "legacy-1" || profile.Role != domain.RoleUser {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestResolveProfileNoProfileAnywhere(t *testing.T) {
	profile, err := ResolveProfile(context.Background(), newFakeLookup(), "sub-ghost")
	if err != nil {
		t.Fatalf("missing profile must not be an error: %v", err)
	}
	if profile != nil {
		t.Fatalf("expected nil profile, got %+v", profile)
	}
}

func TestResolveProfileLookupFault(t *testing.T) {
	lookup := newFakeLookup()
	lookup.failWith = errors.New("backend down")

	if _, err := ResolveProfile(context.Background(), lookup, "sub-1"); err == nil {
		t.Fatal("expected lookup fault to surface as error")
	}
}

func TestStoreStartsResolving(t *testing.T) {
	current := NewStore().Current()
	if !current.IsResolving || current.IsAuthenticated {
		t.Fatalf("fresh store should be resolving and unauthenticated, got %+v", current)
	}
}

func TestReconcilerSignInResolvesRole(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addDirect(domain.Profile{DocID: "sub-1", SubjectID: "sub-1", Role: domain.RoleAdmin})

	sessions := NewStore()
	rec := NewReconciler(sessions, lookup, func(err error) { t.Errorf("unexpected fault: %v", err) })

	rec.OnIdentityEvent(context.Background(), identity.SignedIn("sub-1"))

	got := waitForSession(t, sessions, func(s domain.Session) bool { return s.IsAuthenticated })
	if got.SubjectID != "sub-1" || got.Role != domain.RoleAdmin || got.IsResolving {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestReconcilerResolvesLegacyProfile(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addLegacy(domain.Profile{DocID: "legacy-doc", SubjectID: "sub-2", Role: domain.RoleUser})

	sessions := NewStore()
	rec := NewReconciler(sessions, lookup, func(err error) { t.Errorf("unexpected fault: %v", err) })

	rec.OnIdentityEvent(context.Background(), identity.SignedIn("sub-2"))

	got := waitForSession(t, sessions, func(s domain.Session) bool { return s.IsAuthenticated })
	if got.Role != domain.RoleUser {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestReconcilerFailsClosedWithoutProfile(t *testing.T) {
	sessions := NewStore()
	faults := make(chan error, 1)
	rec := NewReconciler(sessions, newFakeLookup(), func(err error) { faults <- err })

	rec.OnIdentityEvent(context.Background(), identity.SignedIn("sub-ghost"))

	got := waitForSession(t, sessions, func(s domain.Session) bool { return !s.IsResolving })
	if got.IsAuthenticated || got.SubjectID != "" || got.Role != "" {
		t.Fatalf("expected empty signed-out session, got %+v", got)
	}

	select {
	case <-faults:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fault report for the missing profile")
	}
}

func TestReconcilerFailsClosedOnUnknownRole(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addDirect(domain.Profile{DocID: "sub-3", SubjectID: "sub-3", Role: "superuser"})

	sessions := NewStore()
	faults := make(chan error, 1)
	rec := NewReconciler(sessions, lookup, func(err error) { faults <- err })

	rec.OnIdentityEvent(context.Background(), identity.SignedIn("sub-3"))

	got := waitForSession(t, sessions, func(s domain.Session) bool { return !s.IsResolving })
	if got.IsAuthenticated {
		t.Fatalf("unknown role must not authenticate, got %+v", got)
	}

	select {
	case <-faults:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fault report for the unknown role")
	}
}

func TestReconcilerFailsClosedOnLookupFault(t *testing.T) {
	lookup := newFakeLookup()
	lookup.failWith = errors.New("backend down")

	sessions := NewStore()
	faults := make(chan error, 1)
	rec := NewReconciler(sessions, lookup, func(err error) { faults <- err })

	rec.OnIdentityEvent(context.Background(), identity.SignedIn("sub-1"))

	got := waitForSession(t, sessions, func(s domain.Session) bool { return !s.IsResolving })
	if got.IsAuthenticated {
		t.Fatalf("lookup fault must not authenticate, got %+v", got)
	}

	select {
	case <-faults:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a fault report for the lookup failure")
	}
}

func TestReconcilerSignOutClearsSession(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addDirect(domain.Profile{DocID: "sub-1", SubjectID: "sub-1", Role: domain.RoleAdmin})

	sessions := NewStore()
	rec := NewReconciler(sessions, lookup, nil)

	ctx := context.Background()
	rec.OnIdentityEvent(ctx, identity.SignedIn("sub-1"))
	waitForSession(t, sessions, func(s domain.Session) bool { return s.IsAuthenticated })

	rec.OnIdentityEvent(ctx, identity.SignedOut())

	got := sessions.Current()
	if got.IsAuthenticated || got.IsResolving || got.SubjectID != "" {
		t.Fatalf("expected cleared session after sign-out, got %+v", got)
	}
}

// A resolution that finishes after its subject was superseded by a later
// sign-in must be discarded: the slow first lookup loses to the fast second.
func TestReconcilerDiscardsStaleResolution(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addDirect(domain.Profile{DocID: "sub-slow", SubjectID: "sub-slow", Role: domain.RoleAdmin})
	lookup.addDirect(domain.Profile{DocID: "sub-fast", SubjectID: "sub-fast", Role: domain.RoleUser})
	release := lookup.gate("sub-slow")

	sessions := NewStore()
	rec := NewReconciler(sessions, lookup, func(err error) { t.Errorf("unexpected fault: %v", err) })

	ctx := context.Background()
	rec.OnIdentityEvent(ctx, identity.SignedIn("sub-slow"))
	rec.OnIdentityEvent(ctx, identity.SignedIn("sub-fast"))

	got := waitForSession(t, sessions, func(s domain.Session) bool { return s.IsAuthenticated })
	if got.SubjectID != "sub-fast" {
		t.Fatalf("expected fast subject to win, got %+v", got)
	}

	// Now let the stale lookup finish; the session must not move.
	close(release)
	time.Sleep(20 * time.Millisecond)

	got = sessions.Current()
	if got.SubjectID != "sub-fast" || got.Role != domain.RoleUser {
		t.Fatalf("stale resolution overwrote the session: %+v", got)
	}
}

func TestReconcilerRepeatedSignInIsIdempotent(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addDirect(domain.Profile{DocID: "sub-1", SubjectID: "sub-1", Role: domain.RoleAdmin})

	sessions := NewStore()
	rec := NewReconciler(sessions, lookup, func(err error) { t.Errorf("unexpected fault: %v", err) })

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		rec.OnIdentityEvent(ctx, identity.SignedIn("sub-1"))
	}

	got := waitForSession(t, sessions, func(s domain.Session) bool { return s.IsAuthenticated && !s.IsResolving })
	if got.SubjectID != "sub-1" || got.Role != domain.RoleAdmin {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestReconcilerRunSubscribesToBroker(t *testing.T) {
	lookup := newFakeLookup()
	lookup.addDirect(domain.Profile{DocID: "sub-1", SubjectID: "sub-1", Role: domain.RoleAdmin})

	sessions := NewStore()
	rec := NewReconciler(sessions, lookup, nil)

	broker := identity.NewBroker()
	ctx := context.Background()
	unsubscribe, err := rec.Run(ctx, broker)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	defer unsubscribe()

	if err := broker.Publish(ctx, identity.SignedIn("sub-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	got := waitForSession(t, sessions, func(s domain.Session) bool { return s.IsAuthenticated })
	if got.SubjectID != "sub-1" {
		t.Fatalf("unexpected session: %+v", got)
	}
}

func TestSetIfPendingRejectsSupersededSubject(t *testing.T) {
	sessions := NewStore()
	sessions.setPending("sub-b")

	wrote := sessions.setIfPending("sub-a", domain.Session{SubjectID: "sub-a", Role: domain.RoleAdmin, IsAuthenticated: true})
	if wrote {
		t.Fatal("write for superseded subject must be rejected")
	}
	if got := sessions.Current(); got.IsAuthenticated {
		t.Fatalf("session must be untouched, got %+v", got)
	}

	if !sessions.setIfPending("sub-b", domain.Session{SubjectID: "sub-b", Role: domain.RoleUser, IsAuthenticated: true}) {
		t.Fatal("write for pending subject must succeed")
	}
	if got := sessions.Current(); got.SubjectID != "sub-b" {
		t.Fatalf("unexpected session: %+v", got)
	}
}
