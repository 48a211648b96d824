package session

import (
	"context"
	"errors"
	"fmt"
	"log"

	"posadmin/backend/internal/domain"
	"posadmin/backend/internal/identity"
	"posadmin/backend/internal/store"
)

// ProfileLookup is the slice of the repository the reconciler needs: a direct
// lookup keyed by subject id, and a query over the embedded subject-id field
// for profiles stored under an older addressing scheme.
type ProfileLookup interface {
	GetProfileByKey(ctx context.Context, subjectID string) (*domain.Profile, error)
	QueryProfilesBySubject(ctx context.Context, subjectID string) ([]domain.Profile, error)
}

// ResolveProfile runs the two-phase lookup. It returns (nil, nil) when no
// profile exists anywhere for the subject; errors are lookup faults, not
// "not found". When the fallback query matches more than one profile the
// first match wins.
func ResolveProfile(ctx context.Context, profiles ProfileLookup, subjectID string) (*domain.Profile, error) {
	profile, err := profiles.GetProfileByKey(ctx, subjectID)
	if err == nil {
		return profile, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("profile lookup for %s: %w", subjectID, err)
	}

	matches, err := profiles.QueryProfilesBySubject(ctx, subjectID)
	if err != nil {
		return nil, fmt.Errorf("profile query for %s: %w", subjectID, err)
	}
	if len(matches) == 0 {
		return nil, nil
	}
	return &matches[0], nil
}

// Reconciler converts identity events into session transitions. A sign-in
// triggers asynchronous role resolution; a resolution that completes after
// its subject was superseded by a later event is discarded. Any resolution
// failure fails closed: an authenticated flag without a provable role must
// never reach the access gate.
type Reconciler struct {
	store    *Store
	profiles ProfileLookup
	onFault  func(error)
}

func NewReconciler(sessions *Store, profiles ProfileLookup, onFault func(error)) *Reconciler {
	if onFault == nil {
		onFault = func(err error) {
			log.Printf("[session] WARN: %v", err)
		}
	}
	return &Reconciler{store: sessions, profiles: profiles, onFault: onFault}
}

// Run subscribes the reconciler to an identity event source and returns the
// unsubscribe handle.
func (r *Reconciler) Run(ctx context.Context, events identity.Source) (func(), error) {
	return events.Subscribe(ctx, func(event identity.Event) {
		r.OnIdentityEvent(ctx, event)
	})
}

func (r *Reconciler) OnIdentityEvent(ctx context.Context, event identity.Event) {
	switch event.Type {
	case identity.EventSignedOut:
		r.store.setPending("")
		r.store.set(domain.Session{})
	case identity.EventSignedIn:
		if event.SubjectID == "" {
			r.onFault(errors.New("signed-in event without subject id"))
			return
		}
		r.store.setPending(event.SubjectID)

		// Flip to resolving before any lookup so the gate answers Wait,
		// never a stale Deny.
		current := r.store.Current()
		current.IsResolving = true
		r.store.set(current)

		go r.resolve(ctx, event.SubjectID)
	default:
		r.onFault(fmt.Errorf("unknown identity event type %q", event.Type))
	}
}

func (r *Reconciler) resolve(ctx context.Context, subjectID string) {
	profile, err := ResolveProfile(ctx, r.profiles, subjectID)

	// setIfPending drops results whose subject was superseded by a later
	// event while the lookup was in flight. Stale results are discarded
	// silently, not treated as errors.
	var next domain.Session
	var fault error
	switch {
	case err != nil:
		fault = err
	case profile == nil:
		fault = fmt.Errorf("no profile found for subject %s", subjectID)
	case !domain.KnownRole(profile.Role):
		fault = fmt.Errorf("profile for subject %s carries unknown role %q", subjectID, profile.Role)
	default:
		next = domain.Session{
			SubjectID:       subjectID,
			Role:            profile.Role,
			IsAuthenticated: true,
		}
	}

	if !r.store.setIfPending(subjectID, next) {
		return
	}
	if fault != nil {
		r.onFault(fault)
	}
}
