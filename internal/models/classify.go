// Package models: answer classification and visit roll-up rules.
package models

// ClassifyAnswer derives the positive_response flag for an answer to this
// question.
//
// Open-ended questions (no categories) are never classified. For
// last_negative questions any answer other than the last category is
// positive. Otherwise only the first category is positive. Answers that are
// not positive stay unclassified rather than negative.
func (q *SurveyQuestion) ClassifyAnswer(response string) *bool {
	cats := q.CategoryList()
	if len(cats) == 0 {
		return nil
	}
	positive := true
	if q.LastNegative {
		if response != cats[len(cats)-1] {
			return &positive
		}
		return nil
	}
	if response == cats[0] {
		return &positive
	}
	return nil
}

// ApplyResponseRollups mutates the visit's survey roll-ups for an answer to q.
// Any answer marks the survey started; an answer to the last required
// question marks it completed; satisfaction questions drive the satisfied
// flag, which once false stays false.
func (v *Visit) ApplyResponseRollups(q *SurveyQuestion, positive *bool) {
	v.SurveyStarted = true
	if q.LastRequired {
		v.SurveyCompleted = true
	}
	if !q.ForSatisfaction {
		return
	}
	isPositive := positive != nil && *positive
	switch {
	case v.Satisfied == nil:
		v.Satisfied = &isPositive
	case *v.Satisfied && !isPositive:
		f := false
		v.Satisfied = &f
	}
}
