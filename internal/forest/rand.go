package forest

import "math/rand/v2"

// DeriveSeed mixes base with parts into an independent seed. Equal inputs
// always give equal seeds.
func DeriveSeed(base int64, parts ...int64) int64 {
	x := uint64(base)
	for _, p := range parts {
		x = splitmix(x ^ splitmix(uint64(p)+0x9e3779b97f4a7c15))
	}
	return int64(splitmix(x))
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewPCG(uint64(seed), splitmix(uint64(seed))))
}
