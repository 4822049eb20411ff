// Package toolexecutor is the single entry point for running remote tools.
//
// Invariants:
// - No remote execution happens without an observed completed grant.
// - Eligibility is checked before authorization or any remote side effect.
// - The registry is replaced wholesale on every discovery pass.
//
// Usage:
//
//	gw := toolexecutor.NewGateway(client, authorizer, cache, filter, nil, toolexecutor.Options{Prefix: "arcade_"})
//	res := gw.Run(ctx, "Gmail.SendEmail", map[string]any{"to": "bob@example.com"}, toolexecutor.RunOptions{})
//	if res.AuthorizationRequired {
//		fmt.Println("visit", res.AuthorizationURL)
//	}
package toolexecutor
