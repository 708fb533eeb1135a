package growth

import "math/rand/v2"

// Stream returns the random stream for one agent at one step. Streams
// depend only on the agent's lineage seed and the step index, so
// stochastic outcomes are identical for any worker count or iteration
// order.
func Stream(seed uint64, step int64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(step)))
}

// RootSeed derives the lineage seed of a founder agent from the run
// seed and the agent's ID.
func RootSeed(runSeed, id uint64) uint64 {
	return mix64(runSeed ^ mix64(id))
}

// ChildSeed derives a fresh lineage seed for the nth child of a
// parent. Parent streams are untouched, so siblings and parents stay
// decorrelated.
func ChildSeed(parentSeed uint64, nth int) uint64 {
	return mix64(parentSeed + 0x9e3779b97f4a7c15*uint64(nth+1))
}

// mix64 is the SplitMix64 finalizer, used to spread structured lineage
// inputs across the full 64-bit space.
func mix64(z uint64) uint64 {
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
