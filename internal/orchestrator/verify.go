package orchestrator

import (
	"time"

	"github.com/alvinjay/fpsensor/internal/command"
	"github.com/alvinjay/fpsensor/internal/events"
	"github.com/alvinjay/fpsensor/internal/ferrors"
	"github.com/alvinjay/fpsensor/internal/statushandler"
)

const (
	verifyAttempts     = 3
	verifySearchWindow = 3 * time.Second
)

// VerifyResult reports a successful match.
type VerifyResult struct {
	PageID uint16
	Score  uint16
}

// Verify waits for a finger and searches the whole database for a
// match, retrying up to 3 times. A zero-score reply is silently
// dropped by the status handler, so a search attempt with no genuine
// candidate simply times out rather than surfacing an error reply.
func (o *Orchestrator) Verify() (VerifyResult, error) {
	o.setMode(ModeVerify)

	var lastErr error
	for attempt := 0; attempt < verifyAttempts; attempt++ {
		if attempt > 0 {
			o.metrics.RecordRetry()
		}
		if err := o.waitForFinger(verifySearchWindow); err != nil {
			lastErr = err
			continue
		}

		params := command.SearchParams(1, 0, searchFullDatabaseSize)
		ev, err := o.dispatch(command.Search, params, statushandler.Context{}, verifySearchWindow, 1)
		if err != nil {
			lastErr = err
			continue
		}
		if ev.Type == events.SearchSuccess && ev.Match != nil {
			o.logger.Info("orchestrator: verify matched", "page", ev.Match.PageID, "score", ev.Match.Score)
			return VerifyResult{PageID: ev.Match.PageID, Score: ev.Match.Score}, nil
		}
		lastErr = ferrors.New("orchestrator.Verify", ferrors.CodeNotFound, "no match")
	}
	return VerifyResult{}, lastErr
}
