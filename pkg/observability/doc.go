// Package observability provides OpenTelemetry tracing and metrics for the
// DAO engine.
//
// Initialize the provider at startup; when disabled every call is a no-op:
//
//	p, err := observability.New(ctx, &observability.Config{Enabled: false})
//	defer p.Shutdown(ctx)
//
// Wrap an operation:
//
//	ctx, done := p.TrackOperation(ctx, "dao.finalize_proposal", observability.ProposalAttrs(id)...)
//	decision, err := engine.Finalize(ctx, id)
//	done(err)
//
// Record domain outcomes:
//
//	p.RecordProposalFinalized(ctx, "passed")
//	p.RecordMissionResolved(ctx, "success")
//	p.RecordRewardsPaid(ctx, 3500)
package observability
