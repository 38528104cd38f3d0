package orchestrator

import (
	"fmt"
	"time"

	"github.com/alvinjay/fpsensor/internal/command"
	"github.com/alvinjay/fpsensor/internal/ferrors"
	"github.com/alvinjay/fpsensor/internal/statushandler"
)

const (
	enrollCaptureAttempts  = 3
	enrollAbsenceWindow    = 10 * time.Second
	enrollFingerWait       = 30 * time.Second
	enrollStepTimeout      = 2 * time.Second
	enrollSearchTimeout    = 2 * time.Second
	enrollStoreTimeout     = 2 * time.Second
	enrollIndexTimeout     = 2 * time.Second
	searchFullDatabaseSize = 200
)

// Enroll runs the 8-step enrollment procedure against location, a
// combined page/bit address (page = location>>8, bit = location&0xFF).
func (o *Orchestrator) Enroll(location uint16) error {
	page := byte(location >> 8)
	bit := int(location & 0xFF)

	o.logger.Info("orchestrator: enroll starting", "location", location)

	// (1)+(2): check the target slot isn't already occupied. Not retried.
	idxCtx := statushandler.Context{CheckingLocation: true, LocationBit: bit}
	if _, err := o.dispatch(command.ReadIndexTable, command.ReadIndexTableParams(page), idxCtx, enrollIndexTimeout, 1); err != nil {
		if ferrors.Is(err, ferrors.CodeOccupied) {
			return ferrors.WithLocation("orchestrator.Enroll", ferrors.CodeOccupied, int(location), "location already occupied")
		}
		return err
	}

	var lastErr error
	for attempt := 0; attempt < enrollCaptureAttempts; attempt++ {
		if attempt > 0 {
			o.metrics.RecordRetry()
			o.logger.Debug("orchestrator: enroll retrying capture sequence", "attempt", attempt+1)
		}
		if err := o.enrollCaptureSequence(location); err != nil {
			lastErr = err
			if ferrors.Is(err, ferrors.CodeDuplicate) {
				// A duplicate verdict is deterministic; retrying the
				// capture sequence would just rediscover it.
				break
			}
			continue
		}
		o.logger.Info("orchestrator: enroll succeeded", "location", location)
		return nil
	}
	return lastErr
}

func (o *Orchestrator) enrollCaptureSequence(location uint16) error {
	// (3) First capture into buffer 1.
	o.setMode(ModeEnrollFirst)
	if err := o.waitForFinger(enrollFingerWait); err != nil {
		return err
	}
	if _, err := o.dispatch(command.GenChar, command.GenCharBuffer(1), statushandler.Context{}, enrollStepTimeout, 1); err != nil {
		return ferrors.Wrap("orchestrator.Enroll", err)
	}

	// (4) Require the finger to be lifted before the second capture.
	if err := o.waitForFingerAbsence(enrollAbsenceWindow); err != nil {
		return err
	}

	// (5) Second capture into buffer 2.
	o.setMode(ModeEnrollSecond)
	if err := o.waitForFinger(enrollFingerWait); err != nil {
		return err
	}
	if _, err := o.dispatch(command.GenChar, command.GenCharBuffer(2), statushandler.Context{}, enrollStepTimeout, 1); err != nil {
		return ferrors.Wrap("orchestrator.Enroll", err)
	}

	// (6) Merge the two captures into a model.
	if _, err := o.dispatch(command.RegModel, nil, statushandler.Context{}, enrollStepTimeout, 1); err != nil {
		return ferrors.Wrap("orchestrator.Enroll", err)
	}

	// (7) Duplicate check: search buffer 1 against the whole database.
	// A zero score is a good outcome here even though the handler marks
	// it FAIL — that bit just means "the reply arrived"; it is the
	// Match payload, not the outcome, that decides duplicate-or-not.
	searchParams := command.SearchParams(1, 0, searchFullDatabaseSize)
	ev, err := o.dispatch(command.Search, searchParams, statushandler.Context{EnrollmentInProgress: true}, enrollSearchTimeout, 1)
	if err != nil && !ferrors.Is(err, ferrors.CodeNotFound) {
		return ferrors.Wrap("orchestrator.Enroll", err)
	}
	if ev.Match != nil && ev.Match.Score > 0 {
		return ferrors.WithLocation("orchestrator.Enroll", ferrors.CodeDuplicate, int(location),
			fmt.Sprintf("duplicate of template at page %d (score %d)", ev.Match.PageID, ev.Match.Score))
	}

	// (8) Persist buffer 1 at the target location.
	storeParams := command.LoadStoreParams(1, location)
	if _, err := o.dispatch(command.StoreChar, storeParams, statushandler.Context{}, enrollStoreTimeout, 1); err != nil {
		return ferrors.Wrap("orchestrator.Enroll", err)
	}
	return nil
}
