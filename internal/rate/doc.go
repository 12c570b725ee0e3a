// Package rate implements a Redis-backed fixed-window request limiter, used
// when several API nodes must share one request budget per client.
//
// # Window semantics
//
// Fixed-window counters: INCR + EXPIRE on the first hit of a window. Keys are
// {prefix}:rl:{key}.
package rate
