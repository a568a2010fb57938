package relay

import "github.com/complyport/screening-relay/internal/model"

// PollResult is the poll response payload: every retained event newer than
// the cursor plus the latest assigned sequence for the next poll.
type PollResult struct {
	Events      []model.Event `json:"events"`
	LastEventID int64         `json:"lastEventId"`
}

// PollService answers "give me events after sequence N". Stateless, safe for
// concurrent callers. A cursor older than the oldest retained event still
// yields everything retained; the evicted window is silently lost.
type PollService struct {
	log *EventLog
}

func NewPollService(log *EventLog) *PollService {
	return &PollService{log: log}
}

func (s *PollService) Poll(cursor int64) PollResult {
	return PollResult{
		Events:      s.log.Since(cursor),
		LastEventID: s.log.Latest(),
	}
}
