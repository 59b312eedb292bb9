package models

import "testing"

func boolPtr(b bool) *bool { return &b }

func TestCategoryList(t *testing.T) {
	q := SurveyQuestion{Categories: "Yes\nNo\n\n  Maybe  \n"}
	cats := q.CategoryList()
	if len(cats) != 3 {
		t.Fatalf("expected 3 categories, got %d: %v", len(cats), cats)
	}
	if cats[0] != "Yes" || cats[1] != "No" || cats[2] != "Maybe" {
		t.Errorf("categories not normalized: %v", cats)
	}
}

func TestClassifyAnswerOpenEnded(t *testing.T) {
	q := SurveyQuestion{Type: QuestionTypeOpenEnded}
	if got := q.ClassifyAnswer("anything at all"); got != nil {
		t.Errorf("open-ended answers must stay unclassified, got %v", *got)
	}
}

func TestClassifyAnswerFirstPositive(t *testing.T) {
	q := SurveyQuestion{Categories: "Yes\nNo"}
	if got := q.ClassifyAnswer("Yes"); got == nil || !*got {
		t.Errorf("first category should classify positive, got %v", got)
	}
	if got := q.ClassifyAnswer("No"); got != nil {
		t.Errorf("non-first category should stay unclassified, got %v", *got)
	}
}

func TestClassifyAnswerLastNegative(t *testing.T) {
	q := SurveyQuestion{Categories: "Nurse\nDoctor\nNobody", LastNegative: true}
	if got := q.ClassifyAnswer("Doctor"); got == nil || !*got {
		t.Errorf("non-last category should classify positive, got %v", got)
	}
	if got := q.ClassifyAnswer("Nobody"); got != nil {
		t.Errorf("last category should stay unclassified, got %v", *got)
	}
}

func TestApplyResponseRollupsStartsAndCompletes(t *testing.T) {
	v := Visit{}
	v.ApplyResponseRollups(&SurveyQuestion{Categories: "Yes\nNo"}, boolPtr(true))
	if !v.SurveyStarted {
		t.Error("any answer must mark the survey started")
	}
	if v.SurveyCompleted {
		t.Error("survey must not complete before the last required question")
	}
	v.ApplyResponseRollups(&SurveyQuestion{LastRequired: true}, nil)
	if !v.SurveyCompleted {
		t.Error("last required answer must mark the survey completed")
	}
}

func TestApplyResponseRollupsSatisfied(t *testing.T) {
	q := &SurveyQuestion{Categories: "Yes\nNo", ForSatisfaction: true}

	v := Visit{}
	v.ApplyResponseRollups(q, boolPtr(true))
	if v.Satisfied == nil || !*v.Satisfied {
		t.Fatalf("first positive answer should set satisfied true, got %v", v.Satisfied)
	}

	// A later not-positive answer flips it to false.
	v.ApplyResponseRollups(q, nil)
	if v.Satisfied == nil || *v.Satisfied {
		t.Fatalf("not-positive answer should flip satisfied to false, got %v", v.Satisfied)
	}

	// Once false, always false.
	v.ApplyResponseRollups(q, boolPtr(true))
	if v.Satisfied == nil || *v.Satisfied {
		t.Error("satisfied must stay false once false")
	}
}

func TestRegistrationErrorSurface(t *testing.T) {
	e := &RegistrationError{Kind: KindInvalid, Serial: "4000", Fields: []Field{FieldMobile, FieldClinic}}
	want := "Error for serial 4000. There was a mistake in entering MOBILE, CLINIC. Please check and enter the whole registration code again."
	if got := e.Surface(); got != want {
		t.Errorf("surface mismatch:\n got  %q\n want %q", got, want)
	}
}

func TestSuccessMessage(t *testing.T) {
	want := "Entry received for patient with serial number 4000. Thank you."
	if got := SuccessMessage("4000"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
