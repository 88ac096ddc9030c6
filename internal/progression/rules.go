package progression

import (
	"github.com/vkotov/talentflow/internal/catalog"
)

// PassesRequired is the interview-eligibility bar: of the five gated tests,
// at least this many must be recorded as passed.
const PassesRequired = 3

// Result is a test-outcome event.
type Result struct {
	Test   string
	Passed bool
}

// Outcome is the pure result of applying a test event to a user's progress.
type Outcome struct {
	// Unlocked lists stages that became available because of this event.
	Unlocked []catalog.StageID
	// Eligible reports whether the interview-eligibility predicate holds
	// with this result included.
	Eligible bool
}

// Apply computes the unlock delta for a recorded test result. Candidates
// always move forward: the next stage unlocks regardless of pass/fail, and
// failure only degrades the eventual eligibility check.
func Apply(unlocked map[string]bool, results map[string]bool, r Result) Outcome {
	out := Outcome{}

	if stage, ok := catalog.ByTest(r.Test); ok {
		if next, ok := catalog.Next(stage.ID); ok && !unlocked[string(next.ID)] {
			out.Unlocked = append(out.Unlocked, next.ID)
		}
	}

	merged := make(map[string]bool, len(results)+1)
	for k, v := range results {
		merged[k] = v
	}
	if _, exists := merged[r.Test]; !exists {
		merged[r.Test] = r.Passed
	}
	out.Eligible = Eligible(merged)
	return out
}

// Eligible reports whether at least PassesRequired of the gated tests are
// recorded as passed.
func Eligible(results map[string]bool) bool {
	passed := 0
	for _, test := range catalog.GatedTests() {
		if results[test] {
			passed++
		}
	}
	return passed >= PassesRequired
}

// ScheduleAccessible reports whether the terminal stage is actually
// enterable: the user must have reached interview_prep and be eligible.
// The stage stays visible but blocked otherwise.
func ScheduleAccessible(unlocked map[string]bool, results map[string]bool) bool {
	return unlocked[string(catalog.StageInterviewPrep)] && Eligible(results)
}

// LatestGated returns the highest-indexed unlocked stage that carries a
// gating test. Used by the admin skip command.
func LatestGated(unlocked map[string]bool) (catalog.Stage, bool) {
	var found catalog.Stage
	ok := false
	for _, s := range catalog.Ordered() {
		if s.GateTest != "" && unlocked[string(s.ID)] {
			found = s
			ok = true
		}
	}
	return found, ok
}
