package core

// Summary totals a session's records.
type Summary struct {
	Total      int     `json:"total"`
	Successful int     `json:"successful"`
	Passed     int     `json:"passed"`
	Failed     int     `json:"failed"`
	Unverified int     `json:"unverified"`
	PassRate   float64 `json:"pass_rate"` // passed / reviewed, 0 when nothing is reviewed
}

// Summarize counts records. Unverified counts successful executions still awaiting review.
func Summarize(records []TestRecord) Summary {
	var s Summary
	for _, r := range records {
		s.Total++
		if r.Outcome.Success {
			s.Successful++
		}
		switch r.Verdict {
		case VerdictPass:
			s.Passed++
		case VerdictFail:
			s.Failed++
		default:
			if r.Outcome.Success {
				s.Unverified++
			}
		}
	}
	if reviewed := s.Passed + s.Failed; reviewed > 0 {
		s.PassRate = float64(s.Passed) / float64(reviewed)
	}
	return s
}
