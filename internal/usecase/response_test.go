package usecase

import (
	"errors"
	"testing"

	"github.com/example/skin-check/internal/admission"
)

func TestDisplayGeneratorBounds(t *testing.T) {
	g := NewDisplayGenerator(DefaultDisplayRange())

	g.intN = func(n int) int { return 0 }
	if got := g.Next(); got != (DisplayOnly{Red: 60, Green: 20}) {
		t.Fatalf("expected lower bounds, got %+v", got)
	}

	g.intN = func(n int) int { return n - 1 }
	if got := g.Next(); got != (DisplayOnly{Red: 90, Green: 30}) {
		t.Fatalf("expected upper bounds, got %+v", got)
	}
}

func TestDisplayGeneratorSwapsInvertedRange(t *testing.T) {
	g := NewDisplayGenerator(DisplayRange{RedMin: 10, RedMax: 5, GreenMin: 3, GreenMax: 3})
	for i := 0; i < 100; i++ {
		d := g.Next()
		if d.Red < 5 || d.Red > 10 || d.Green != 3 {
			t.Fatalf("value out of range: %+v", d)
		}
	}
}

func TestRejectionErrorUnwrapsToSentinel(t *testing.T) {
	err := error(&RejectionError{RequestID: "r", Verdict: admission.Verdict{SkinRatio: 0.1, EdgeRatio: 0.2}})
	if !errors.Is(err, ErrNotSkinImage) {
		t.Fatal("expected ErrNotSkinImage")
	}
	if err.Error() == ErrNotSkinImage.Error() {
		t.Fatal("expected ratios in the message")
	}
}
