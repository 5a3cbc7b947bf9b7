package cpu

import (
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultSieveSize is the prime sieve bound used per measurement.
const DefaultSieveSize = 100000

// sieve counts primes up to n with the Sieve of Eratosthenes.
func sieve(n int) int {
	if n < 2 {
		return 0
	}
	composite := make([]bool, n+1)
	for p := 2; p*p <= n; p++ {
		if composite[p] {
			continue
		}
		for i := p * p; i <= n; i += p {
			composite[i] = true
		}
	}
	count := 0
	for i := 2; i <= n; i++ {
		if !composite[i] {
			count++
		}
	}
	return count
}

// measureCompute runs one sieve and returns its throughput in integers
// sieved per millisecond. Higher is faster.
func measureCompute(clk clock.Clock, n int) float64 {
	start := clk.Now()
	sieve(n)
	elapsed := clk.Since(start)
	if elapsed <= 0 {
		elapsed = time.Microsecond
	}
	return float64(n) / (float64(elapsed) / float64(time.Millisecond))
}

// usageFromScore estimates load as the throughput drop against baseline.
func usageFromScore(score, baseline float64) float64 {
	if baseline <= 0 {
		return 0
	}
	u := (1 - score/baseline) * 100
	if u < 0 {
		return 0
	}
	if u > 100 {
		return 100
	}
	return u
}
