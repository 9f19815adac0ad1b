package engine

import "github.com/provalia/cbt-backend/internal/model"

// recomputeSection rebuilds the status counters for one section by scanning
// its questions. Sections hold tens of questions, so a full rescan per
// status change is cheaper than keeping incremental counters honest, and it
// cannot drift from the question map.
func (e *Engine) recomputeSection(sectionID string) {
	summary := e.summaries[sectionID]
	if summary == nil {
		summary = &model.SectionSummary{SectionID: sectionID}
		e.summaries[sectionID] = summary
	}
	*summary = model.SectionSummary{SectionID: sectionID}

	var ids []int64
	for i := range e.sections {
		if e.sections[i].ID == sectionID {
			ids = e.sections[i].QuestionIDs
			break
		}
	}

	for _, id := range ids {
		switch e.questions[id].Status {
		case model.QuestionStatusAnswered:
			summary.Answered++
		case model.QuestionStatusNotAnswered:
			summary.NotAnswered++
		case model.QuestionStatusMarked:
			summary.Marked++
		case model.QuestionStatusMarkedAnswered:
			summary.MarkedAnswered++
		default:
			summary.NotVisited++
		}
	}
}
