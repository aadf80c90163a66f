package contradiction

import "testing"

func newTestDetector() *Detector {
	return NewDetector(nil, nil)
}

func TestDetectIdenticalContent(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("josh likes coffee", "josh likes coffee")
	if r.Contradicts {
		t.Errorf("identical content must not contradict: %+v", r)
	}
	if r.Type != TypeNone || r.Confidence != 0 {
		t.Errorf("got type=%s confidence=%v, want none/0", r.Type, r.Confidence)
	}
}

func TestDetectEmptyInput(t *testing.T) {
	d := newTestDetector()
	for _, pair := range [][2]string{{"", ""}, {"", "josh is here"}, {"josh is here", ""}} {
		if r := d.Detect(pair[0], pair[1]); r.Contradicts {
			t.Errorf("Detect(%q, %q) must be negative, got %+v", pair[0], pair[1], r)
		}
	}
}

func TestNegation(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("josh likes coffee", "josh doesn't like coffee")
	if !r.Contradicts {
		t.Fatal("expected contradiction")
	}
	if r.Type != TypeNegation {
		t.Errorf("got type %s, want %s", r.Type, TypeNegation)
	}
	if r.Confidence <= 0 {
		t.Errorf("confidence must be positive, got %v", r.Confidence)
	}
}

func TestNegationCopula(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("the office is open today", "the office is not open today")
	if !r.Contradicts || r.Type != TypeNegation {
		t.Errorf("got %+v, want negation contradiction", r)
	}
}

func TestNegationRequiresSharedContext(t *testing.T) {
	d := newTestDetector()
	// Opposite polarity but unrelated subjects with no shared predicate context.
	r := d.Detect("mary likes tennis", "trains don't run sundays")
	if r.Contradicts {
		t.Errorf("unrelated sentences must not contradict: %+v", r)
	}
}

func TestNegationBothNegated(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("josh doesn't like coffee", "josh doesn't like coffee anymore")
	if r.Contradicts && r.Type == TypeNegation {
		t.Errorf("two negated statements agree, got %+v", r)
	}
}

func TestAntonymSharedContext(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("josh is available tomorrow", "josh is busy tomorrow")
	if !r.Contradicts {
		t.Fatal("expected contradiction")
	}
	if r.Type != TypeAntonym {
		t.Errorf("got type %s, want %s", r.Type, TypeAntonym)
	}
}

func TestAntonymDifferentSubjects(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("the weather is good", "the food was bad")
	if r.Contradicts {
		t.Errorf("different subjects must not contradict: %+v", r)
	}
}

func TestTemporalConflict(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("the meeting is on 2024-01-15", "the meeting is on 2024-01-20")
	if !r.Contradicts {
		t.Fatal("expected contradiction")
	}
	if r.Type != TypeTemporal {
		t.Errorf("got type %s, want %s", r.Type, TypeTemporal)
	}
}

func TestTemporalSameDate(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("the meeting is on 2024-01-15", "the review meeting is on 2024-01-15")
	if r.Contradicts {
		t.Errorf("same date must not contradict: %+v", r)
	}
}

func TestTemporalNoDates(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("the meeting moved rooms", "the meeting is downstairs")
	if r.Contradicts {
		t.Errorf("no dates present, got %+v", r)
	}
}

func TestNumericConflict(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("josh is 30 years old", "josh is 35 years old")
	if !r.Contradicts {
		t.Fatal("expected contradiction")
	}
	if r.Type != TypeNumeric {
		t.Errorf("got type %s, want %s", r.Type, TypeNumeric)
	}
}

func TestNumericMatchingValues(t *testing.T) {
	d := newTestDetector()
	r := d.Detect("the team has 5 people", "the team has 5 members")
	if r.Contradicts {
		t.Errorf("matching counts must not contradict: %+v", r)
	}
}

func TestCheckerOrder(t *testing.T) {
	d := newTestDetector()
	// Negation and numeric signals both present; negation runs first and
	// determines the type.
	r := d.Detect("josh likes the 30 day plan", "josh doesn't like the 45 day plan")
	if !r.Contradicts {
		t.Fatal("expected contradiction")
	}
	if r.Type != TypeNegation {
		t.Errorf("got type %s, want %s (first firing layer wins)", r.Type, TypeNegation)
	}
}

func TestCorroborationRaisesConfidence(t *testing.T) {
	d := newTestDetector()
	single := d.Detect("josh likes coffee", "josh doesn't like coffee")
	multi := d.Detect("josh likes the 30 day plan", "josh doesn't like the 45 day plan")
	if multi.Confidence <= single.Confidence {
		t.Errorf("corroborated verdict %v should exceed single-layer %v",
			multi.Confidence, single.Confidence)
	}
	if multi.Confidence > maxConfidence {
		t.Errorf("confidence %v exceeds cap %v", multi.Confidence, maxConfidence)
	}
}

func TestCheckersIndependently(t *testing.T) {
	d := newTestDetector()

	if r := d.checkNegation("josh likes tea", "josh doesn't like tea"); !r.Contradicts {
		t.Error("negation checker failed on its own")
	}
	if r := d.checkAntonyms("josh is happy today", "josh is sad today"); !r.Contradicts {
		t.Error("antonym checker failed on its own")
	}
	if r := d.checkTemporal("party on 2025-03-01", "party on 2025-03-08"); !r.Contradicts {
		t.Error("temporal checker failed on its own")
	}
	if r := d.checkNumeric("rent is $1,500.00 now", "rent is $1,800.00 now"); !r.Contradicts {
		t.Error("numeric checker failed on its own")
	}
}
