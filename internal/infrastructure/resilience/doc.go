/*
Package resilience provides a circuit breaker for calls to optional external
services.

# Usage

	breaker := resilience.New("classifier", resilience.Settings{
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	verdict, err := resilience.Do(breaker, func() (string, error) {
		return client.Call(ctx)
	})

# States

	Closed --[failures]-> Open --[timeout]-> Half-Open --[successes]-> Closed
	                                           |
	                                    [failure]
	                                           |
	                                           v
	                                         Open

While open, calls fail immediately with ErrCircuitOpen.
*/
package resilience
