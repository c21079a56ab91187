package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestGrade(t *testing.T) {
	yes := true
	seven := int64(7)
	lo, hi := 1.5, 2.5
	opts := []Option{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	cases := []struct {
		name      string
		q         Question
		answer    string
		canonical string
		correct   bool
	}{
		{"bool true", Question{Kind: KindBoolean, Key: AnswerKey{Bool: &yes}}, `true`, "true", true},
		{"bool from string", Question{Kind: KindBoolean, Key: AnswerKey{Bool: &yes}}, `"no"`, "false", false},
		{"integer", Question{Kind: KindInteger, Key: AnswerKey{Integer: &seven}}, `7`, "7", true},
		{"integer from string", Question{Kind: KindInteger, Key: AnswerKey{Integer: &seven}}, `" 7 "`, "7", true},
		{"integer wrong", Question{Kind: KindInteger, Key: AnswerKey{Integer: &seven}}, `8`, "8", false},
		{"text trimmed", Question{Kind: KindText, Key: AnswerKey{Text: "Go"}}, `"  Go "`, "Go", true},
		{"text case sensitive", Question{Kind: KindText, Key: AnswerKey{Text: "Go"}}, `"go"`, "go", false},
		{"decimal exact", Question{Kind: KindDecimal, Key: AnswerKey{Decimal: "0.3"}}, `"0.30"`, "0.3", true},
		{"decimal number", Question{Kind: KindDecimal, Key: AnswerKey{Decimal: "0.3"}}, `0.3`, "0.3", true},
		{"decimal wrong", Question{Kind: KindDecimal, Key: AnswerKey{Decimal: "0.3"}}, `0.31`, "0.31", false},
		{"choice", Question{Kind: KindChoice, Options: opts, Key: AnswerKey{Choice: "b"}}, `"b"`, "b", true},
		{"choice wrong", Question{Kind: KindChoice, Options: opts, Key: AnswerKey{Choice: "b"}}, `"c"`, "c", false},
		{"range inside", Question{Kind: KindRange, Key: AnswerKey{Min: &lo, Max: &hi}}, `2`, "2", true},
		{"range inclusive", Question{Kind: KindRange, Key: AnswerKey{Min: &lo, Max: &hi}}, `"2.5"`, "2.5", true},
		{"range outside", Question{Kind: KindRange, Key: AnswerKey{Min: &lo, Max: &hi}}, `3`, "3", false},
		{"ordering", Question{Kind: KindOrdering, Options: opts, Key: AnswerKey{Order: []string{"c", "a", "b"}}}, `["c","a","b"]`, "c,a,b", true},
		{"ordering wrong", Question{Kind: KindOrdering, Options: opts, Key: AnswerKey{Order: []string{"c", "a", "b"}}}, `["a","b","c"]`, "a,b,c", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.q.ID = "q"
			canonical, correct, err := Grade(tc.q, json.RawMessage(tc.answer))
			if err != nil {
				t.Fatalf("grade: %v", err)
			}
			if canonical != tc.canonical || correct != tc.correct {
				t.Fatalf("got (%q, %v), want (%q, %v)", canonical, correct, tc.canonical, tc.correct)
			}
		})
	}
}

func TestGradeRejectsMalformedAnswers(t *testing.T) {
	opts := []Option{{ID: "a"}, {ID: "b"}}
	cases := []struct {
		name   string
		q      Question
		answer string
	}{
		{"missing", Question{Kind: KindInteger}, ``},
		{"null", Question{Kind: KindInteger}, `null`},
		{"bool garbage", Question{Kind: KindBoolean}, `"maybe"`},
		{"integer fraction", Question{Kind: KindInteger}, `1.5`},
		{"text empty", Question{Kind: KindText}, `"   "`},
		{"text number", Question{Kind: KindText}, `5`},
		{"decimal garbage", Question{Kind: KindDecimal}, `"1.2.3"`},
		{"choice unknown", Question{Kind: KindChoice, Options: opts}, `"z"`},
		{"range text", Question{Kind: KindRange}, `"abc"`},
		{"ordering partial", Question{Kind: KindOrdering, Options: opts}, `["a"]`},
		{"ordering repeated", Question{Kind: KindOrdering, Options: opts}, `["a","a"]`},
		{"unknown kind", Question{Kind: "essay"}, `"x"`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.q.ID = "q"
			_, _, err := Grade(tc.q, json.RawMessage(tc.answer))
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
			if ErrorCode(err) != CodeValidation {
				t.Fatalf("expected validation code, got %s", ErrorCode(err))
			}
		})
	}
}
