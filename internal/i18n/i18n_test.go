package i18n

import (
	"context"
	"strings"
	"testing"
)

func TestTDefaultEnglish(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := context.Background()
	if got := T(ctx, "FeedbackCorrect"); got != "Correct." {
		t.Errorf("T(FeedbackCorrect) = %q", got)
	}
}

func TestTUnknownIDFallsBackToID(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if got := T(context.Background(), "NoSuchMessage"); got != "NoSuchMessage" {
		t.Errorf("T(NoSuchMessage) = %q, want message ID back", got)
	}
}

func TestTdTemplateData(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	got := Td(context.Background(), "FeedbackTests", map[string]any{"Passed": 3, "Total": 5})
	if got != "Passed 3 of 5 test cases." {
		t.Errorf("Td(FeedbackTests) = %q", got)
	}
}

func TestRussianLocalizer(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	loc := NewLocalizer("ru")
	ctx := WithLocalizer(context.Background(), loc)
	if got := T(ctx, "FeedbackCorrect"); got != "Верно." {
		t.Errorf("T(FeedbackCorrect) in ru = %q", got)
	}
	got := Td(ctx, "FeedbackIncorrectExpected", map[string]any{"Expected": "42"})
	if !strings.Contains(got, "42") || !strings.Contains(got, "Неверно") {
		t.Errorf("Td(FeedbackIncorrectExpected) in ru = %q", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	ctx := WithLocalizer(context.Background(), NewLocalizer("fr"))
	if got := T(ctx, "FeedbackCorrect"); got != "Correct." {
		t.Errorf("T in unsupported language = %q, want English fallback", got)
	}
}

func TestInitRejectsBadLanguage(t *testing.T) {
	if err := Init("not a language tag!"); err == nil {
		t.Error("Init should reject an unparseable language tag")
	}
}
