package aggregator

import (
	"errors"
	"fmt"
	"sort"

	"github.com/taurusgroup/frost-bridge/pkg/musig"
	"github.com/taurusgroup/frost-bridge/pkg/party"
	"go.uber.org/multierr"
)

// ErrInsufficientParticipants matches every *InsufficientParticipantsError.
var ErrInsufficientParticipants = errors.New("insufficient participants")

// combine returns the failures as one error, ordered by participant.
func combine(failures map[party.ID]error) error {
	ids := sortedIDs(failures)
	errs := make([]error, 0, len(ids))
	for _, id := range ids {
		errs = append(errs, fmt.Errorf("participant %d: %w", id, failures[id]))
	}
	return multierr.Combine(errs...)
}

func sortedIDs(failures map[party.ID]error) party.IDSlice {
	ids := make(party.IDSlice, 0, len(failures))
	for id := range failures {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// CeremonyError is returned when a key generation ceremony aborts.
//
// It unwraps to the error of every failed participant, so that errors.Is and
// protocol.KindOf see through it.
type CeremonyError struct {
	MusigID    musig.ID
	DkgShareID string
	// Stage is the last state reached before the abort.
	Stage    State
	Failures map[party.ID]error
}

func (e *CeremonyError) Error() string {
	return fmt.Sprintf("aggregator: dkg %s for %s aborted after %s: participants %s failed: %v",
		e.DkgShareID, e.MusigID, e.Stage, sortedIDs(e.Failures), combine(e.Failures))
}

func (e *CeremonyError) Unwrap() []error {
	return multierr.Errors(combine(e.Failures))
}

// Culprits returns the participants that failed, in ascending order.
func (e *CeremonyError) Culprits() party.IDSlice {
	return sortedIDs(e.Failures)
}

// InsufficientParticipantsError is returned when a signing ceremony cannot
// gather Required valid shares.
type InsufficientParticipantsError struct {
	Required int
	Got      int
	Failures map[party.ID]error
}

func (e *InsufficientParticipantsError) Error() string {
	msg := fmt.Sprintf("aggregator: %s: got %d of %d", ErrInsufficientParticipants, e.Got, e.Required)
	if len(e.Failures) > 0 {
		msg += fmt.Sprintf(": %v", combine(e.Failures))
	}
	return msg
}

func (e *InsufficientParticipantsError) Is(target error) bool {
	return target == ErrInsufficientParticipants
}

func (e *InsufficientParticipantsError) Unwrap() []error {
	return multierr.Errors(combine(e.Failures))
}

// Culprits returns the participants that failed, in ascending order.
func (e *InsufficientParticipantsError) Culprits() party.IDSlice {
	return sortedIDs(e.Failures)
}
