package symstore

import "time"

// DefaultRetention is how long published symbols are kept.
const DefaultRetention = 30 * 24 * time.Hour

// Expired returns the ids of add transactions tagged tag that are older than
// now-maxAge and have no later delete transaction.
//
// records must be in log order. A delete only cancels adds seen before it; an
// add that follows a delete of the same id puts the id back. Each id appears
// at most once, in first-insertion order.
func Expired(records []Record, tag string, maxAge time.Duration, now time.Time) []string {
	threshold := now.Add(-maxAge)

	live := make(map[string]bool)
	var order []string

	for _, rec := range records {
		switch rec.Kind {
		case KindAdd:
			if rec.Tag != tag || !rec.Timestamp.Before(threshold) {
				continue
			}
			if !live[rec.ID] {
				live[rec.ID] = true
				order = append(order, rec.ID)
			}
		case KindDelete:
			delete(live, rec.DeletedID)
		}
	}

	expired := make([]string, 0, len(live))
	emitted := make(map[string]bool, len(live))
	for _, id := range order {
		if live[id] && !emitted[id] {
			emitted[id] = true
			expired = append(expired, id)
		}
	}
	return expired
}

// ExpiredFromServer reads the history of server and computes the expired
// set. Line errors are returned for the caller to log.
func ExpiredFromServer(server, tag string, maxAge time.Duration, now time.Time) ([]string, []*LineError, error) {
	records, lineErrs, err := ReadHistory(server)
	if err != nil {
		return nil, lineErrs, err
	}
	return Expired(records, tag, maxAge, now), lineErrs, nil
}
