/*
Package resilience provides the circuit breakers guarding outbound network calls
made by the worker.

A Set keeps one Breaker per remote host so that one failing endpoint does not
block requests to others.

	breakers := resilience.NewSet("http", resilience.Settings{
		Cooldown: 30 * time.Second,
		Trip: func(c resilience.Counts) bool {
			return c.ConsecutiveFailures >= 10
		},
	})

	resp, err := resilience.Run(ctx, breakers.For(host), func(ctx context.Context) (*resty.Response, error) {
		return req.SetContext(ctx).Execute(method, url)
	})

# States

	Closed --[Trip]-> Open --[Cooldown]-> Half-Open --[HalfOpenCalls successes]-> Closed
	                                          |
	                                      [failure]
	                                          v
	                                        Open
*/
package resilience
