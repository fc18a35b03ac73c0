package learner

import (
	"github.com/ChuLiYu/conflict-engine/pkg/types"
)

// Reinforcement defaults
const (
	DefaultLearningRate = 0.5
	DefaultFloor        = 0.05
	DefaultThreshold    = 0.01
	rewardBaseline      = 0.5
)

// Reinforcement moves weight toward the scoring dimensions that were strong
// in well-rated solutions and away from those strong in poorly rated ones.
//
// The target is always derived from Prior and the full history, never from
// the current vector, which keeps the policy idempotent:
//
//	reward_i = effectiveness_i - 0.5
//	g_k      = mean_i( reward_i * (c_ik - mean_k(c_i)) )
//	target   = Prior + s * LearningRate * g
//
// g sums to zero, so target keeps Prior's sum. s in [0,1] shrinks the step
// until no coefficient falls below Floor.
type Reinforcement struct {
	Prior        types.Weights
	LearningRate float64
	Floor        float64
	Threshold    float64
}

// NewReinforcement returns the policy with default parameters
func NewReinforcement() *Reinforcement {
	return &Reinforcement{
		Prior:        types.DefaultWeights(),
		LearningRate: DefaultLearningRate,
		Floor:        DefaultFloor,
		Threshold:    DefaultThreshold,
	}
}

// Adjust implements Adjuster.
//
// Feedback without scoring components carries no signal. When nothing in
// the history does, current is returned with no trigger.
func (r *Reinforcement) Adjust(history []types.Feedback, current types.Weights) (types.Weights, bool) {
	gradient, ok := r.signal(history)
	if !ok {
		return current, false
	}

	prior := r.Prior.Vector()
	scale := 1.0
	for k := range prior {
		step := r.LearningRate * gradient[k]
		if step >= 0 {
			continue
		}
		room := prior[k] - r.Floor
		if room <= 0 {
			scale = 0
			break
		}
		if s := room / -step; s < scale {
			scale = s
		}
	}

	var target [4]float64
	for k := range prior {
		target[k] = prior[k] + scale*r.LearningRate*gradient[k]
	}
	next := types.WeightsFromVector(target)

	if L1(current, next) < r.Threshold {
		return current, false
	}
	return next, true
}

// signal averages the reward-weighted, centred component vectors
func (r *Reinforcement) signal(history []types.Feedback) ([4]float64, bool) {
	var g [4]float64
	samples := 0

	for _, fb := range history {
		if fb.Components == nil {
			continue
		}
		reward := fb.EffectivenessScore - rewardBaseline
		c := fb.Components.Vector()
		mean := (c[0] + c[1] + c[2] + c[3]) / 4
		for k := range c {
			g[k] += reward * (c[k] - mean)
		}
		samples++
	}

	if samples == 0 {
		return g, false
	}
	for k := range g {
		g[k] /= float64(samples)
	}
	return g, true
}
