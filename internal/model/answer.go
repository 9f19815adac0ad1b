package model

// AnswerKind discriminates the Answer union.
type AnswerKind string

const (
	AnswerKindNone    AnswerKind = "NONE"
	AnswerKindOptions AnswerKind = "OPTIONS"
	AnswerKindNumeric AnswerKind = "NUMERIC"
	AnswerKindMatch   AnswerKind = "MATCH"
)

// Answer is a tagged union over the response types a question can take.
// Exactly the payload field matching Kind is meaningful; the others stay
// zero-valued so the JSON form remains compact.
type Answer struct {
	Kind    AnswerKind        `json:"kind"`
	Options []string          `json:"options,omitempty"`
	Value   *float64          `json:"value,omitempty"`
	Pairs   map[string]string `json:"pairs,omitempty"`
}

// NoAnswer returns the empty member of the union.
func NoAnswer() Answer {
	return Answer{Kind: AnswerKindNone}
}

// OptionsAnswer builds a selected-option-set answer (single or multi choice).
func OptionsAnswer(options ...string) Answer {
	return Answer{Kind: AnswerKindOptions, Options: options}
}

// NumericAnswer builds a numeric-value answer.
func NumericAnswer(v float64) Answer {
	return Answer{Kind: AnswerKindNumeric, Value: &v}
}

// MatchAnswer builds a match-mapping answer (left id -> right id).
func MatchAnswer(pairs map[string]string) Answer {
	return Answer{Kind: AnswerKindMatch, Pairs: pairs}
}

// IsNone reports whether the answer is the empty member.
func (a Answer) IsNone() bool {
	return a.Kind == "" || a.Kind == AnswerKindNone
}

// Equal compares two answers structurally.
func (a Answer) Equal(b Answer) bool {
	if a.IsNone() || b.IsNone() {
		return a.IsNone() == b.IsNone()
	}
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case AnswerKindOptions:
		if len(a.Options) != len(b.Options) {
			return false
		}
		for i := range a.Options {
			if a.Options[i] != b.Options[i] {
				return false
			}
		}
		return true
	case AnswerKindNumeric:
		if a.Value == nil || b.Value == nil {
			return a.Value == b.Value
		}
		return *a.Value == *b.Value
	case AnswerKindMatch:
		if len(a.Pairs) != len(b.Pairs) {
			return false
		}
		for k, v := range a.Pairs {
			if b.Pairs[k] != v {
				return false
			}
		}
		return true
	}
	return false
}
