// Package inferencesvc guards the inference dependency behind a circuit
// breaker and health-driven strategy selection over ranked backends
// (primary, secondary, safe-mode). Strategy switches are logged and
// mirrored to connected streaming clients as agent events.
//
// Example:
//
//	backends := []inferencesvc.Backend{
//		inferencesvc.NewStaticBackend("primary"),
//		inferencesvc.NewStaticBackend("safe-mode"),
//	}
//	svc, _ := inferencesvc.New(rt, backends, streamingSvc)
//	_ = svc.Start(ctx)
//	out, err := svc.Generate(ctx, "summarize the last violation")
package inferencesvc
