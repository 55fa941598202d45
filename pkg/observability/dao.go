package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DAO semantic convention attributes.
var (
	AttrProposalID = attribute.Key("dao.proposal.id")
	AttrMissionID  = attribute.Key("dao.mission.id")
	AttrMemberID   = attribute.Key("dao.member.id")
	AttrOutcome    = attribute.Key("dao.outcome")
	AttrDays       = attribute.Key("dao.mission.days")
)

func (p *Provider) initDomainMetrics() error {
	var err error

	p.proposalsFinalized, err = p.meter.Int64Counter("dao.proposals.finalized",
		metric.WithDescription("Proposals finalized, by outcome"),
		metric.WithUnit("{proposal}"),
	)
	if err != nil {
		return err
	}

	p.missionsResolved, err = p.meter.Int64Counter("dao.missions.resolved",
		metric.WithDescription("Missions resolved, by outcome"),
		metric.WithUnit("{mission}"),
	)
	if err != nil {
		return err
	}

	p.rewardsPaid, err = p.meter.Float64Counter("dao.rewards.paid",
		metric.WithDescription("Rewards paid out of the treasury"),
		metric.WithUnit("{token}"),
	)
	return err
}

// ProposalAttrs creates attributes for proposal operations.
func ProposalAttrs(proposalID string) []attribute.KeyValue {
	return []attribute.KeyValue{AttrProposalID.String(proposalID)}
}

// VoteAttrs creates attributes for vote casting.
func VoteAttrs(proposalID, memberID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrProposalID.String(proposalID),
		AttrMemberID.String(memberID),
	}
}

// MissionAttrs creates attributes for mission operations.
func MissionAttrs(missionID string, days int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{AttrMissionID.String(missionID)}
	if days > 0 {
		attrs = append(attrs, AttrDays.Int(days))
	}
	return attrs
}

// RecordProposalFinalized counts a finalized proposal.
func (p *Provider) RecordProposalFinalized(ctx context.Context, outcome string) {
	if p.proposalsFinalized != nil {
		p.proposalsFinalized.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
	}
}

// RecordMissionResolved counts a resolved mission.
func (p *Provider) RecordMissionResolved(ctx context.Context, outcome string) {
	if p.missionsResolved != nil {
		p.missionsResolved.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
	}
}

// RecordRewardsPaid adds to the rewards paid total.
func (p *Provider) RecordRewardsPaid(ctx context.Context, amount float64) {
	if p.rewardsPaid != nil && amount > 0 {
		p.rewardsPaid.Add(ctx, amount)
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}
