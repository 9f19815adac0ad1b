package model

// Section groups questions under a named subject within an exam.
type Section struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	OrderNum    int     `json:"order_num"`
	QuestionIDs []int64 `json:"question_ids"`
}

// SectionSummary is the derived per-status question count for one section.
// The engine recomputes it whenever a question in the section changes
// status; the counts always sum to the section's question total.
type SectionSummary struct {
	SectionID      string `json:"section_id"`
	Answered       int    `json:"answered"`
	NotAnswered    int    `json:"not_answered"`
	NotVisited     int    `json:"not_visited"`
	Marked         int    `json:"marked"`
	MarkedAnswered int    `json:"marked_answered"`
}

// Total returns the sum of all status counts.
func (s SectionSummary) Total() int {
	return s.Answered + s.NotAnswered + s.NotVisited + s.Marked + s.MarkedAnswered
}

// AddSectionRequest is the authoring payload for a section.
type AddSectionRequest struct {
	ID       string `json:"id" binding:"required,min=1,max=64"`
	Title    string `json:"title" binding:"required,min=1,max=255"`
	OrderNum int    `json:"order_num" binding:"min=0"`
}
