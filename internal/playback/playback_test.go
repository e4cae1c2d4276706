package playback

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/desertthunder/tasting/internal/aggregate"
	"github.com/desertthunder/tasting/internal/models"
	"github.com/desertthunder/tasting/internal/shared"
)

// buildSequence creates wines with the given slide counts and a welcome slide on the first wine.
func buildSequence(counts ...int) *aggregate.Sequence {
	in := aggregate.Input{PackageID: "pkg"}
	for wi, count := range counts {
		w := models.NewWine("pkg", wi+1, fmt.Sprintf("Wine %d", wi+1), "", "")
		w.SetID(fmt.Sprintf("w%d", wi+1))
		in.Wines = append(in.Wines, w)

		for i := range count {
			s := models.NewSlide(w.ID(), models.SectionDeepDive, float64(1000*(i+1)), "", models.InterludePayload{Title: "x"})
			s.SetID(fmt.Sprintf("%s-s%d", w.ID(), i))
			in.Slides = append(in.Slides, s)
		}
	}

	if len(counts) > 0 {
		welcome := models.NewSlide("w1", models.SectionIntro, 1, "Welcome", models.InterludePayload{Title: "Welcome"})
		welcome.SetID("welcome")
		welcome.SetPackageIntro(true)
		in.Slides = append(in.Slides, welcome)
	}
	return aggregate.Build(in)
}

func staticSource(seq *aggregate.Sequence) Source {
	return SourceFunc(func(ctx context.Context) (*aggregate.Sequence, error) { return seq, nil })
}

func TestPlan(t *testing.T) {
	t.Run("three wine tasting visits every step in order", func(t *testing.T) {
		seq := buildSequence(5, 4, 6)
		if seq.Len() != 16 {
			t.Fatalf("expected 16 slides, got %d", seq.Len())
		}

		var want []StepKind
		want = append(want, StepPackageIntro, StepWineIntro)
		want = append(want, slices.Repeat([]StepKind{StepSlide}, 5)...)
		want = append(want, StepWineTransition, StepWineIntro)
		want = append(want, slices.Repeat([]StepKind{StepSlide}, 4)...)
		want = append(want, StepWineTransition, StepWineIntro)
		want = append(want, slices.Repeat([]StepKind{StepSlide}, 6)...)
		want = append(want, StepComplete)

		plan := NewPlan(seq)
		if got := plan.Kinds(); !slices.Equal(got, want) {
			t.Fatalf("kinds = %v\nwant    %v", got, want)
		}

		if plan.Steps[1].Wine.ID() != "w1" {
			t.Errorf("expected first wine intro for w1, got %s", plan.Steps[1].Wine.ID())
		}
		transition := plan.Steps[7]
		if transition.FromWine.ID() != "w1" || transition.Wine.ID() != "w2" {
			t.Errorf("unexpected transition %s -> %s", transition.FromWine.ID(), transition.Wine.ID())
		}
	})

	t.Run("first wine intro is not skipped when welcome shares its wine", func(t *testing.T) {
		plan := NewPlan(buildSequence(2))
		want := []StepKind{StepPackageIntro, StepWineIntro, StepSlide, StepSlide, StepComplete}
		if got := plan.Kinds(); !slices.Equal(got, want) {
			t.Errorf("kinds = %v, want %v", got, want)
		}
	})

	t.Run("synthetic package intro without welcome slide", func(t *testing.T) {
		w := models.NewWine("pkg", 1, "Solo", "", "")
		w.SetID("w1")
		s := models.NewSlide("w1", models.SectionIntro, 1, "", models.InterludePayload{Title: "x"})
		s.SetID("s1")

		plan := NewPlan(aggregate.Build(aggregate.Input{Wines: []*models.Wine{w}, Slides: []*models.Slide{s}}))
		if plan.Steps[0].Kind != StepPackageIntro || plan.Steps[0].SlideIndex != -1 {
			t.Errorf("expected synthetic package intro, got %+v", plan.Steps[0])
		}
	})

	t.Run("slide steps know their place in the wine", func(t *testing.T) {
		plan := NewPlan(buildSequence(3))
		last := plan.Steps[4]
		if last.Kind != StepSlide || last.Position != 3 || last.Total != 3 {
			t.Errorf("unexpected step %+v", last)
		}
	})
}

func TestStateAt(t *testing.T) {
	plan := NewPlan(buildSequence(5, 4, 6))

	t.Run("length is Complete", func(t *testing.T) {
		step, err := plan.StateAt(16)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if step.Kind != StepComplete {
			t.Errorf("expected Complete, got %s", step.Kind)
		}
	})

	t.Run("welcome slide is the package intro", func(t *testing.T) {
		step, err := plan.StateAt(0)
		if err != nil || step.Kind != StepPackageIntro {
			t.Errorf("StateAt(0) = %v, %v", step.Kind, err)
		}
	})

	t.Run("first slide of second wine", func(t *testing.T) {
		step, err := plan.StateAt(6)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if step.Kind != StepSlide || step.Wine.ID() != "w2" || step.Position != 1 {
			t.Errorf("unexpected step %+v", step)
		}
	})

	for _, i := range []int{-1, 17} {
		t.Run(fmt.Sprintf("out of range %d", i), func(t *testing.T) {
			if _, err := plan.StateAt(i); !errors.Is(err, shared.ErrSlideOutOfRange) {
				t.Errorf("expected ErrSlideOutOfRange, got %v", err)
			}
		})
	}
}

func TestNavigator(t *testing.T) {
	ctx := context.Background()

	t.Run("walks to Complete and stays", func(t *testing.T) {
		var pointers []models.ProgressPointer
		nav, err := NewNavigator(ctx, staticSource(buildSequence(2, 1)), WithProgressHook(func(ptr models.ProgressPointer) {
			pointers = append(pointers, ptr)
		}))
		if err != nil {
			t.Fatalf("failed to create navigator: %v", err)
		}

		var kinds []StepKind
		for range 10 {
			step, err := nav.Next(ctx)
			if err != nil {
				t.Fatalf("Next() failed: %v", err)
			}
			kinds = append(kinds, step.Kind)
		}

		want := []StepKind{StepWineIntro, StepSlide, StepSlide, StepWineTransition, StepWineIntro, StepSlide, StepComplete}
		if !slices.Equal(kinds[:len(want)], want) {
			t.Errorf("kinds = %v, want prefix %v", kinds, want)
		}
		for _, k := range kinds[len(want):] {
			if k != StepComplete {
				t.Errorf("expected to stay on Complete, got %s", k)
			}
		}
		if len(pointers) != 10 {
			t.Errorf("expected progress persisted after every transition, got %d", len(pointers))
		}
	})

	t.Run("Prev stops at the first step", func(t *testing.T) {
		nav, err := NewNavigator(ctx, staticSource(buildSequence(1)))
		if err != nil {
			t.Fatalf("failed to create navigator: %v", err)
		}

		step, err := nav.Prev(ctx)
		if err != nil || step.Index != 0 {
			t.Errorf("Prev() = %d, %v", step.Index, err)
		}
	})

	t.Run("Resume finds the slide after a reorder", func(t *testing.T) {
		nav, err := NewNavigator(ctx, staticSource(buildSequence(3, 3)))
		if err != nil {
			t.Fatalf("failed to create navigator: %v", err)
		}

		ptr := models.ProgressPointer{StepIndex: 99, Kind: string(StepSlide), SlideID: "w2-s1", WineID: "w2"}
		step, err := nav.Resume(ctx, ptr)
		if err != nil {
			t.Fatalf("Resume() failed: %v", err)
		}
		if step.Slide == nil || step.Slide.ID() != "w2-s1" {
			t.Errorf("expected to resume on w2-s1, got %+v", step)
		}
		if got := nav.Pointer(); got.SlideID != "w2-s1" || got.StepIndex != step.Index {
			t.Errorf("unexpected pointer %+v", got)
		}
	})

	t.Run("Resume with unknown pointer clamps", func(t *testing.T) {
		nav, err := NewNavigator(ctx, staticSource(buildSequence(1)))
		if err != nil {
			t.Fatalf("failed to create navigator: %v", err)
		}

		step, err := nav.Resume(ctx, models.ProgressPointer{StepIndex: 50, Kind: string(StepSlide), SlideID: "gone"})
		if err != nil {
			t.Fatalf("Resume() failed: %v", err)
		}
		if step.Kind != StepComplete {
			t.Errorf("expected clamp to Complete, got %s", step.Kind)
		}
	})

	t.Run("out of range refetches then recovers", func(t *testing.T) {
		fetches := 0
		source := SourceFunc(func(ctx context.Context) (*aggregate.Sequence, error) {
			fetches++
			if fetches == 1 {
				return buildSequence(1), nil
			}
			return buildSequence(4), nil
		})

		nav, err := NewNavigator(ctx, source)
		if err != nil {
			t.Fatalf("failed to create navigator: %v", err)
		}

		step, err := nav.GotoSlide(ctx, 3)
		if err != nil {
			t.Fatalf("GotoSlide() failed: %v", err)
		}
		if fetches != 2 {
			t.Errorf("expected one refetch, got %d fetches", fetches)
		}
		if step.Kind != StepSlide || step.SlideIndex != 3 {
			t.Errorf("unexpected step %+v", step)
		}
	})

	t.Run("recurring out of range is content unavailable", func(t *testing.T) {
		nav, err := NewNavigator(ctx, staticSource(buildSequence(1)))
		if err != nil {
			t.Fatalf("failed to create navigator: %v", err)
		}

		if _, err := nav.GotoSlide(ctx, 9); !errors.Is(err, shared.ErrContentUnavailable) {
			t.Errorf("expected ErrContentUnavailable, got %v", err)
		}
		if _, err := nav.Goto(ctx, 40); !errors.Is(err, shared.ErrContentUnavailable) {
			t.Errorf("expected ErrContentUnavailable, got %v", err)
		}

		step, err := nav.Current(ctx)
		if err != nil || step.Index != 0 {
			t.Errorf("expected cursor unchanged after failure, got %d, %v", step.Index, err)
		}
	})

	t.Run("GotoSlide at length completes", func(t *testing.T) {
		nav, err := NewNavigator(ctx, staticSource(buildSequence(2)))
		if err != nil {
			t.Fatalf("failed to create navigator: %v", err)
		}

		step, err := nav.GotoSlide(ctx, 3)
		if err != nil || step.Kind != StepComplete {
			t.Errorf("GotoSlide(len) = %v, %v", step.Kind, err)
		}
	})

	t.Run("Refresh keeps the logical step", func(t *testing.T) {
		current := buildSequence(2, 2)
		source := SourceFunc(func(ctx context.Context) (*aggregate.Sequence, error) { return current, nil })

		nav, err := NewNavigator(ctx, source)
		if err != nil {
			t.Fatalf("failed to create navigator: %v", err)
		}
		step, err := nav.Resume(ctx, models.ProgressPointer{Kind: string(StepWineIntro), WineID: "w2"})
		if err != nil {
			t.Fatalf("Resume() failed: %v", err)
		}
		before := step.Index

		current = buildSequence(4, 2)
		step, err = nav.Refresh(ctx)
		if err != nil {
			t.Fatalf("Refresh() failed: %v", err)
		}
		if step.Kind != StepWineIntro || step.Wine.ID() != "w2" || step.Index == before {
			t.Errorf("expected to stay on w2 intro at a new index, got %+v", step)
		}
	})

	t.Run("source failure", func(t *testing.T) {
		_, err := NewNavigator(ctx, SourceFunc(func(ctx context.Context) (*aggregate.Sequence, error) {
			return nil, shared.ErrServiceUnavailable
		}))
		if !errors.Is(err, shared.ErrServiceUnavailable) {
			t.Errorf("expected ErrServiceUnavailable, got %v", err)
		}
	})
}
