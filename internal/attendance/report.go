package attendance

import "uniattend/internal/model"

// StudentSummary is one student's attendance in a course.
type StudentSummary struct {
	StudentID string  `json:"student_id"`
	Attended  int     `json:"attended"`
	Total     int     `json:"total"`
	Rate      float64 `json:"rate"`
}

// Effective keeps the latest record per (course, student, day), in the order
// each slot was first seen. recs must be in insertion order.
func Effective(recs []model.AttendanceRecord) []model.AttendanceRecord {
	pos := make(map[string]int, len(recs))
	out := make([]model.AttendanceRecord, 0, len(recs))
	for _, r := range recs {
		k := r.Key()
		if i, ok := pos[k]; ok {
			out[i] = r
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}

// Summarize folds records into per-student summaries, ordered by first appearance.
func Summarize(recs []model.AttendanceRecord) []StudentSummary {
	idx := map[string]int{}
	var out []StudentSummary
	for _, r := range Effective(recs) {
		i, ok := idx[r.StudentID]
		if !ok {
			i = len(out)
			idx[r.StudentID] = i
			out = append(out, StudentSummary{StudentID: r.StudentID})
		}
		out[i].Total++
		if r.Present {
			out[i].Attended++
		}
	}
	for i := range out {
		out[i].Rate = float64(out[i].Attended) / float64(out[i].Total)
	}
	return out
}
