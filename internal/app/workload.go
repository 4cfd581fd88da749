package app

import (
	"math"
	"math/rand"
	"time"
)

// stageSpec describes one synthetic frame stage: a base cost modulated by a
// slow sine so the profile drifts over time, plus a little jitter.
type stageSpec struct {
	name  string
	base  time.Duration
	swing float64 // fraction of base the sine adds or removes
	rate  float64 // phase advance per second
}

var stages = []stageSpec{
	{name: "host.input", base: 150 * time.Microsecond, swing: 0.3, rate: 0.7},
	{name: "host.update", base: 2 * time.Millisecond, swing: 0.5, rate: 1.2},
	{name: "host.render", base: 5 * time.Millisecond, swing: 0.6, rate: 2.1},
	{name: "host.audio", base: 1 * time.Millisecond, swing: 0.4, rate: 1.7},
}

func stageNames() []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.name
	}
	return names
}

// workload fakes the per-stage cost of a real frame by sleeping.
type workload struct {
	rng    *rand.Rand
	phases []float64
}

func newWorkload() *workload {
	return &workload{
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		phases: make([]float64, len(stages)),
	}
}

func (w *workload) advance(delta float64) {
	for i, s := range stages {
		w.phases[i] += delta * s.rate
	}
}

// duration computes the next cost of stage i without running it.
func (w *workload) duration(i int) time.Duration {
	s := stages[i]
	mod := 1.0 + s.swing*math.Sin(w.phases[i])
	jitter := 1.0 + (w.rng.Float64()-0.5)*0.2
	d := time.Duration(float64(s.base) * mod * jitter)
	if d < 0 {
		d = 0
	}
	return d
}

func (w *workload) run(i int) {
	time.Sleep(w.duration(i))
}
