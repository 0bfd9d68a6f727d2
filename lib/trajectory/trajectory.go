// Package trajectory scores a slider drag against behavioral heuristics to
// decide whether it was produced by a human. Scoring is pure: the same input
// always yields the same result.
package trajectory

import "fmt"

// Point is a raw pointer position sampled while dragging. T is milliseconds
// since the drag started.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
	T int `json:"t"`
}

// Sample is a per-tick continuity sample of the slider block itself.
type Sample struct {
	StartX   int `json:"startX"`
	CurrentX int `json:"currentX"`
}

// Input is everything the scorer looks at for one verification attempt.
type Input struct {
	SlideDistance int
	TargetOffset  int
	DurationMs    int
	Path          []Point
	Samples       []Sample
}

// Result is the verdict for one attempt. Reasons are diagnostics for the
// logs, they must never be shown to end users because they describe the
// detection heuristics.
type Result struct {
	Verified   bool
	Score      float64
	AccuracyPx int
	Reasons    []string
}

const (
	// Position tolerances in pixels. Within hardPositionTolerance the drop
	// is clean, between that and softPositionTolerance it still counts when
	// the other checks pass.
	hardPositionTolerance = 15
	softPositionTolerance = 25

	// Human drags land in this window. Faster is scripted input, slower is
	// tolerated but penalized in the behavioral score.
	minDurationMs = 300
	maxDurationMs = 15000

	// Continuity: both the raw path and the tick samples need this many
	// points, and consecutive tick samples must not teleport.
	minPoints  = 5
	maxJumpPx  = 50
	jumpBudget = 1

	// Behavioral score weights and the bar an attempt has to clear.
	timingWeight     = 0.3
	smoothnessWeight = 0.4
	accuracyWeight   = 0.3
	passingScore     = 0.6
)

// Score runs the full decision pipeline. Every failed sub-check contributes
// a reason, Verified requires all of them to hold at once.
func Score(in Input) Result {
	result := Result{
		AccuracyPx: abs(in.SlideDistance - in.TargetOffset),
	}

	positionOK := result.AccuracyPx <= softPositionTolerance
	if !positionOK {
		result.Reasons = append(result.Reasons, fmt.Sprintf("position: off by %dpx", result.AccuracyPx))
	}

	timingOK := in.DurationMs >= minDurationMs && in.DurationMs <= maxDurationMs
	if !timingOK {
		switch {
		case in.DurationMs < minDurationMs:
			result.Reasons = append(result.Reasons, fmt.Sprintf("timing: %dms is too fast for a human drag", in.DurationMs))
		default:
			result.Reasons = append(result.Reasons, fmt.Sprintf("timing: %dms exceeds the attempt window", in.DurationMs))
		}
	}

	continuityOK, contReason := continuity(in)
	if !continuityOK {
		result.Reasons = append(result.Reasons, contReason)
	}

	result.Score = timingComponent(in.DurationMs) + smoothnessComponent(in.Samples) + accuracyComponent(result.AccuracyPx)
	scoreOK := result.Score > passingScore
	if !scoreOK {
		result.Reasons = append(result.Reasons, fmt.Sprintf("behavior: score %.2f below threshold", result.Score))
	}

	result.Verified = positionOK && timingOK && continuityOK && scoreOK

	return result
}

// continuity rejects replayed or synthesized paths: enough points in both
// streams and no teleporting between consecutive tick samples, with a single
// oversized jump tolerated for pointer-capture hiccups.
func continuity(in Input) (bool, string) {
	if len(in.Path) < minPoints || len(in.Samples) < minPoints {
		return false, fmt.Sprintf("continuity: %d path / %d track points, need %d", len(in.Path), len(in.Samples), minPoints)
	}

	jumps := 0
	for i := 1; i < len(in.Samples); i++ {
		if abs(in.Samples[i].CurrentX-in.Samples[i-1].CurrentX) > maxJumpPx {
			jumps++
		}
	}

	if jumps > jumpBudget {
		return false, fmt.Sprintf("continuity: %d oversized jumps", jumps)
	}

	return true, ""
}

// timingComponent gives full credit to the comfortable human window, partial
// credit to the edges, and a token amount otherwise.
func timingComponent(durationMs int) float64 {
	switch {
	case durationMs >= 500 && durationMs <= 8000:
		return timingWeight
	case durationMs >= minDurationMs && durationMs <= 12000:
		return timingWeight / 2
	default:
		return 0.05
	}
}

// smoothnessComponent looks at the second difference (acceleration) of the
// slider position across consecutive sample triples. Human drags accelerate
// gently; scripts snap.
func smoothnessComponent(samples []Sample) float64 {
	if len(samples) < 3 {
		return 0
	}

	var credit float64
	segments := len(samples) - 2

	for i := 0; i < segments; i++ {
		v1 := samples[i+1].CurrentX - samples[i].CurrentX
		v2 := samples[i+2].CurrentX - samples[i+1].CurrentX

		switch accel := abs(v2 - v1); {
		case accel <= 20:
			credit += 1.0
		case accel <= 40:
			credit += 0.5
		}
	}

	return smoothnessWeight * (credit / float64(segments))
}

// accuracyComponent tiers the landing accuracy.
func accuracyComponent(accuracyPx int) float64 {
	switch {
	case accuracyPx <= 10:
		return 0.3
	case accuracyPx <= 20:
		return 0.2
	case accuracyPx <= 30:
		return 0.1
	default:
		return 0
	}
}

// HardPass reports whether the landing position alone was within the strict
// tolerance, used for metrics labelling.
func HardPass(accuracyPx int) bool {
	return accuracyPx <= hardPositionTolerance
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
