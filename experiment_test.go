package pktdcf

import (
	"path/filepath"
	"testing"

	"github.com/iti/pktdcf/sim"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func withTestLogger(t *testing.T) {
	SetLogger(zaptest.NewLogger(t, zaptest.Level(zap.InfoLevel)))
	t.Cleanup(func() { SetLogger(nil) })
}

// pairCfg describes two stations in range of each other, a sending 100
// packets a second to b
func pairCfg() *ExpCfg {
	cfg := CreateExpCfg("pair")
	cfg.AddStation(CreateStationDesc("a", "edge"))
	cfg.AddStation(CreateStationDesc("b", "core"))
	cfg.AddFlow(FlowDesc{Name: "f1", Groups: []string{"bulk"}, Src: "a", Dst: "b", Queue: "dca",
		Rate: 100, Size: 500, Model: "const", Start: 0.001})
	return cfg
}

func buildAndRun(t *testing.T, cfg *ExpCfg, opts BuildOpts, duration sim.Time) *Experiment {
	exp, err := BuildExperiment(cfg, opts)
	require.NoError(t, err)
	exp.Run(duration)
	return exp
}

func station(t *testing.T, exp *Experiment, name string) *Station {
	st, present := exp.Station(name)
	require.True(t, present, name)
	return st
}

func TestExperimentDelivers(t *testing.T) {
	withTestLogger(t)
	exp := buildAndRun(t, pairCfg(), BuildOpts{}, sim.Second)

	sum := exp.Summary()
	require.Len(t, sum.Flows, 1)
	fs := sum.Flows[0]
	assert.Equal(t, uint32(100), fs.Sent)
	assert.Equal(t, 100, fs.Delivered)
	assert.Equal(t, uint64(50000), fs.Bytes)
	assert.InDelta(t, 400000.0, fs.Throughput, 1e-6)
	assert.Greater(t, fs.MeanDelay, 0.0)
	assert.Less(t, fs.MaxDelay, 0.002)
	assert.LessOrEqual(t, fs.MedDelay, fs.P95Delay)

	a, b := station(t, exp, "a"), station(t, exp, "b")
	assert.Equal(t, 100, a.Counts.TxOk)
	assert.Equal(t, 100, a.Counts.RxOk) // ACKs
	assert.Equal(t, 100, b.Counts.RxOk)
	assert.Equal(t, 100, b.Counts.Delivered)
	assert.Zero(t, a.Counts.RxError+b.Counts.RxError)
	assert.Zero(t, a.Counts.TxFailed)

	m := exp.Metrics()
	assert.Equal(t, 100.0, testutil.ToFloat64(m.Delivered.WithLabelValues("f1")))
	assert.Equal(t, 50000.0, testutil.ToFloat64(m.DeliveredBytes.WithLabelValues("f1")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.TxOk.WithLabelValues("a")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Delay))
}

func TestExperimentRtsCts(t *testing.T) {
	withTestLogger(t)
	cfg := pairCfg()
	require.NoError(t, cfg.AddParameter("Station", "*", "rtsthreshold", "100"))
	exp := buildAndRun(t, cfg, BuildOpts{}, sim.Second)

	a, b := station(t, exp, "a"), station(t, exp, "b")
	assert.Equal(t, uint32(100), a.Policy.RtsThreshold)
	assert.Equal(t, 100, b.Counts.Delivered)
	assert.Equal(t, 200, b.Counts.RxOk) // RTS and data
	assert.Equal(t, 200, a.Counts.RxOk) // CTS and ACK
	assert.Equal(t, 100, a.Counts.TxOk)
}

func TestExperimentFragments(t *testing.T) {
	withTestLogger(t)
	cfg := pairCfg()
	require.NoError(t, cfg.AddParameter("Station", "name%%a", "fragthreshold", "200"))
	exp := buildAndRun(t, cfg, BuildOpts{}, sim.Second)

	a, b := station(t, exp, "a"), station(t, exp, "b")
	assert.Equal(t, uint32(200), a.Policy.FragThreshold)
	assert.Equal(t, uint32(65535), b.Policy.FragThreshold)

	// each packet goes as fragments of 200, 200 and 100 bytes, reassembled at b
	assert.Equal(t, 300, b.Counts.RxOk)
	assert.Equal(t, 100, b.Counts.Delivered)
	assert.Equal(t, 100, a.Counts.TxOk)
	fs := exp.Summary().Flows[0]
	assert.Equal(t, 100, fs.Delivered)
	assert.Equal(t, uint64(50000), fs.Bytes)
}

func TestExperimentRelays(t *testing.T) {
	withTestLogger(t)
	cfg := CreateExpCfg("line")
	for _, name := range []string{"a", "b", "c"} {
		cfg.AddStation(CreateStationDesc(name))
	}
	cfg.AddLink("a", "b")
	cfg.AddLink("b", "c")
	cfg.AddFlow(FlowDesc{Name: "across", Src: "a", Dst: "c", Queue: "dca",
		Rate: 10, Size: 200, Model: "const", Start: 0.01})
	exp := buildAndRun(t, cfg, BuildOpts{}, sim.Second)

	a, b, c := station(t, exp, "a"), station(t, exp, "b"), station(t, exp, "c")
	assert.Equal(t, []int{a.ID, b.ID, c.ID}, exp.Routes().Route(a.ID, c.ID))
	assert.Equal(t, 10, b.Counts.Relayed)
	assert.Zero(t, b.Counts.Delivered)
	assert.Equal(t, 10, c.Counts.Delivered)
	assert.Equal(t, 10, exp.Summary().Flows[0].Delivered)
	assert.Equal(t, 10.0, testutil.ToFloat64(exp.Metrics().Relayed.WithLabelValues("b")))
}

func TestExperimentQueueDrops(t *testing.T) {
	withTestLogger(t)
	cfg := pairCfg()
	cfg.Flows[0].Rate = 100000
	require.NoError(t, cfg.AddParameter("Queue", "dca", "maxlen", "1"))
	exp := buildAndRun(t, cfg, BuildOpts{}, 10*sim.Millisecond)

	a := station(t, exp, "a")
	fs := exp.Summary().Flows[0]
	assert.Positive(t, a.Counts.QueueDrops)
	assert.Positive(t, fs.Delivered)
	assert.LessOrEqual(t, fs.Delivered+a.Counts.QueueDrops, int(fs.Sent))
	assert.Equal(t, float64(a.Counts.QueueDrops), testutil.ToFloat64(exp.Metrics().QueueDrops.WithLabelValues("a")))
}

func TestExperimentOnEvtm(t *testing.T) {
	withTestLogger(t)
	exp := buildAndRun(t, pairCfg(), BuildOpts{UseEvtm: true}, 100*sim.Millisecond)
	_, isEvtm := exp.Scheduler().(*sim.EvtmScheduler)
	assert.True(t, isEvtm)

	fs := exp.Summary().Flows[0]
	assert.Equal(t, uint32(10), fs.Sent)
	assert.Equal(t, 10, fs.Delivered)
}

func TestExperimentRejectsBadDescription(t *testing.T) {
	cfg := pairCfg()
	cfg.Flows[0].Dst = "nowhere"
	_, err := BuildExperiment(cfg, BuildOpts{})
	assert.ErrorContains(t, err, "unknown station nowhere")

	cfg = pairCfg()
	cfg.AddExpParameter(CreateExpParameter("Station", "*", "rtsthreshold", "many"))
	_, err = BuildExperiment(cfg, BuildOpts{})
	assert.Error(t, err)
}

func TestExperimentTrace(t *testing.T) {
	withTestLogger(t)
	exp := buildAndRun(t, pairCfg(), BuildOpts{Trace: true}, 5*sim.Millisecond)
	a := station(t, exp, "a")

	tm := exp.Trace()
	require.True(t, tm.Active())
	assert.Equal(t, NameType{Name: "a", Type: "station"}, tm.NameByID[a.ID])
	assert.NotEmpty(t, tm.Traces[a.ID])

	filename := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, exp.WriteTrace(filename))
	require.NoError(t, CheckReadableFiles([]string{filename}))

	sumFile := filepath.Join(t.TempDir(), "summary.json")
	require.NoError(t, exp.Summary().WriteToFile(sumFile))
	assert.Error(t, exp.Summary().WriteToFile(filepath.Join(t.TempDir(), "summary.txt")))
}
