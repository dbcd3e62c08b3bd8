package engine

import (
	"strings"
	"testing"
	"time"
)

func TestBuildPlan_UsesSectorsAndGoals(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	plan := BuildPlan(PlanInput{
		Sectors: []string{"health", "energy"},
		Goals:   []string{"reduce wait times", "health"}, // duplicate of a sector
		Region:  "Atlantis",
		Horizon: "6 months",
	}, now)

	want := []string{"health", "energy", "reduce wait times"}
	if len(plan.FocusAreas) != len(want) {
		t.Fatalf("expected %d focus areas, got %v", len(want), plan.FocusAreas)
	}
	for i := range want {
		if plan.FocusAreas[i] != want[i] {
			t.Errorf("focus area %d: expected %s, got %s", i, want[i], plan.FocusAreas[i])
		}
	}

	if len(plan.Initiatives) != 3 {
		t.Errorf("expected 3 initiatives, got %d", len(plan.Initiatives))
	}
	if plan.Initiatives[0].Title != "Health Testbed & Deployment Sprint" {
		t.Errorf("unexpected title %q", plan.Initiatives[0].Title)
	}
	if plan.Actors["university"].Name != "Atlantis research university consortium" {
		t.Errorf("unexpected university actor %q", plan.Actors["university"].Name)
	}
	if plan.Meta.Horizon != "6 months" {
		t.Errorf("unexpected horizon %q", plan.Meta.Horizon)
	}
}

func TestBuildPlan_DefaultsWhenEmpty(t *testing.T) {
	plan := BuildPlan(PlanInput{}, time.Now())

	if len(plan.FocusAreas) != 3 {
		t.Fatalf("expected default focus areas, got %v", plan.FocusAreas)
	}
	if plan.FocusAreas[0] != "applied AI for public services" {
		t.Errorf("unexpected default focus area %q", plan.FocusAreas[0])
	}
	if plan.Meta.Horizon != "12 months" {
		t.Errorf("expected default horizon, got %q", plan.Meta.Horizon)
	}
	if plan.Actors["industry"].Name != "industry partners" {
		t.Errorf("unexpected default actor name %q", plan.Actors["industry"].Name)
	}
}

func TestBuildPlan_ConstraintsFoldedIntoApproach(t *testing.T) {
	plan := BuildPlan(PlanInput{Constraints: []string{"GDPR", "on-prem only"}}, time.Now())
	if !strings.Contains(plan.Initiatives[0].Approach, "Constraints to honor: GDPR; on-prem only.") {
		t.Errorf("constraints missing from approach:\n%s", plan.Initiatives[0].Approach)
	}
}

func TestBuildPlan_PromptDerivesFocusAreas(t *testing.T) {
	plan := BuildPlan(PlanInput{Prompt: "smart agriculture, water management"}, time.Now())
	if len(plan.FocusAreas) != 2 || plan.FocusAreas[0] != "smart agriculture" {
		t.Errorf("unexpected focus areas from prompt: %v", plan.FocusAreas)
	}
}

func TestBuildPlan_MarkdownRendered(t *testing.T) {
	plan := BuildPlan(PlanInput{Sectors: []string{"fintech"}, Region: "Atlantis"}, time.Now())

	for _, want := range []string{
		"## Triple Helix Innovation Plan",
		"- **Region**: Atlantis",
		"### Initiative 1: Fintech Testbed & Deployment Sprint",
		"**90-day milestones**:",
	} {
		if !strings.Contains(plan.Markdown, want) {
			t.Errorf("markdown missing %q:\n%s", want, plan.Markdown)
		}
	}
}
