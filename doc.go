// Package spendgate provides budget enforcement and circuit breaking for
// AI agent spend, backed by Redis or an in-process store.
//
// Every admission check runs the same pipeline: kill-switch, rate limit,
// cost estimate, per-request cap, then an atomic reservation against the
// org's daily and monthly budget. A denied request never mutates the
// ledger, and an unreachable ledger denies (fail closed).
//
// # Embedded client
//
//	client, _ := spendgate.New(ctx,
//	    spendgate.WithRedis("localhost:6379", ""),
//	    spendgate.WithOrgBudget("acme", spendgate.Budget{
//	        DailyLimitEUR:   10,
//	        MonthlyLimitEUR: 50,
//	    }),
//	)
//	defer client.Close()
//
//	d, err := client.Enforce(ctx, spendgate.Request{
//	    OrgID:    "acme",
//	    AgentKey: "agent-billing",
//	    Provider: "azure",
//	    Tokens:   1200,
//	})
//	if err == nil && !d.Allowed {
//	    // deny: d.Code, d.Pct, d.RetryAfter
//	}
//
// The HTTP server in cmd/spendgate wraps the same pipeline and adds the
// proxying /v1/invoke endpoint with per-provider circuit breakers.
package spendgate
