package observability

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()
	require.Equal(t, "daosim", config.ServiceName)
	require.Equal(t, "0.1.0", config.ServiceVersion)
	require.Equal(t, "development", config.Environment)
	require.Equal(t, "localhost:4317", config.OTLPEndpoint)
	require.Equal(t, 1.0, config.SampleRate)
	require.True(t, config.Enabled)
	require.True(t, config.Insecure)
}

func TestNew_Disabled(t *testing.T) {
	p, err := New(context.Background(), &Config{Enabled: false})
	require.NoError(t, err)
	require.NotNil(t, p.Tracer())
	require.NotNil(t, p.Meter())

	ctx, done := p.TrackOperation(context.Background(), "dao.finalize_proposal", ProposalAttrs("prop_1")...)
	require.NotNil(t, ctx)
	done(errors.New("quorum not met"))
	require.NoError(t, p.Shutdown(context.Background()))
}

func newTestProvider(t *testing.T) (*Provider, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	p := &Provider{config: &Config{}, logger: slog.Default()}
	require.NoError(t, p.useMeter(mp.Meter("test")))
	return p, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Aggregation {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	out := make(map[string]metricdata.Aggregation)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m.Data
		}
	}
	return out
}

func TestDomainCounters(t *testing.T) {
	p, reader := newTestProvider(t)
	ctx := context.Background()

	p.RecordProposalFinalized(ctx, "passed")
	p.RecordProposalFinalized(ctx, "passed")
	p.RecordProposalFinalized(ctx, "quorum_not_met")
	p.RecordMissionResolved(ctx, "success")
	p.RecordRewardsPaid(ctx, 3500)
	p.RecordRewardsPaid(ctx, 0)

	data := collect(t, reader)

	proposals, ok := data["dao.proposals.finalized"].(metricdata.Sum[int64])
	require.True(t, ok)
	byOutcome := map[string]int64{}
	for _, dp := range proposals.DataPoints {
		v, _ := dp.Attributes.Value(AttrOutcome)
		byOutcome[v.AsString()] = dp.Value
	}
	require.Equal(t, map[string]int64{"passed": 2, "quorum_not_met": 1}, byOutcome)

	paid, ok := data["dao.rewards.paid"].(metricdata.Sum[float64])
	require.True(t, ok)
	require.Len(t, paid.DataPoints, 1)
	require.Equal(t, 3500.0, paid.DataPoints[0].Value)
}

func TestTrackOperation_Success(t *testing.T) {
	p, reader := newTestProvider(t)
	_, done := p.TrackOperation(context.Background(), "dao.run_mission", MissionAttrs("mission_1", 30)...)

	data := collect(t, reader)
	active, ok := data["dao.operations.active"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Equal(t, int64(1), active.DataPoints[0].Value)

	done(nil)

	data = collect(t, reader)
	total, ok := data["dao.operations.total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, total.DataPoints, 1)
	require.Equal(t, int64(1), total.DataPoints[0].Value)

	active = data["dao.operations.active"].(metricdata.Sum[int64])
	require.Equal(t, int64(0), active.DataPoints[0].Value)

	latency, ok := data["dao.operation.duration"].(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Equal(t, uint64(1), latency.DataPoints[0].Count)
	_, failed := data["dao.errors.total"]
	require.False(t, failed)
}

func TestTrackOperation_ErrorKeepsCallerAttrs(t *testing.T) {
	p, _ := newTestProvider(t)
	attrs := make([]attribute.KeyValue, 1, 4)
	attrs[0] = AttrProposalID.String("prop_1")

	_, done := p.TrackOperation(context.Background(), "dao.execute_proposal", attrs...)
	done(errors.New("boom"))

	require.Len(t, attrs, 1)
	require.Equal(t, AttrProposalID.String("prop_1"), attrs[0])
	require.False(t, attrs[:2][1].Valid())
}

func TestTrackOperationRecordsErrors(t *testing.T) {
	p, reader := newTestProvider(t)
	_, done := p.TrackOperation(context.Background(), "dao.cast_vote", VoteAttrs("prop_1", "member_1")...)
	done(errors.New("boom"))

	data := collect(t, reader)
	errs, ok := data["dao.errors.total"].(metricdata.Sum[int64])
	require.True(t, ok)
	require.Len(t, errs.DataPoints, 1)
	require.Equal(t, int64(1), errs.DataPoints[0].Value)
}

func TestAttrs(t *testing.T) {
	attrs := MissionAttrs("mission_1", 30)
	require.Len(t, attrs, 2)
	require.Equal(t, "dao.mission.id", string(attrs[0].Key))
	require.Equal(t, int64(30), attrs[1].Value.AsInt64())
	require.Len(t, MissionAttrs("mission_1", 0), 1)

	attrs = VoteAttrs("prop_1", "member_1")
	require.Equal(t, "member_1", attrs[1].Value.AsString())
	require.Equal(t, "prop_1", ProposalAttrs("prop_1")[0].Value.AsString())
}

func TestAddSpanEvent(t *testing.T) {
	AddSpanEvent(context.Background(), "test.event", attribute.String("key", "value"))
}
