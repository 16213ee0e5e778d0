package pktdcf

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarizeFlow(t *testing.T) {
	rec := &flowRecord{delays: []float64{0.003, 0.001, 0.002}, bytes: 300}
	fs := summarizeFlow("f", 4, rec, 2)
	assert.Equal(t, uint32(4), fs.Sent)
	assert.Equal(t, 3, fs.Delivered)
	assert.InDelta(t, 1200.0, fs.Throughput, 1e-9)
	assert.InDelta(t, 0.002, fs.MeanDelay, 1e-12)
	assert.InDelta(t, 0.001, fs.StdDelay, 1e-12)
	assert.Equal(t, 0.002, fs.MedDelay)
	assert.Equal(t, 0.003, fs.P95Delay)
	assert.Equal(t, 0.003, fs.MaxDelay)

	// the record itself is left in arrival order
	assert.Equal(t, []float64{0.003, 0.001, 0.002}, rec.delays)
}

func TestSummarizeFlowEdgeCases(t *testing.T) {
	fs := summarizeFlow("f", 2, &flowRecord{}, 1)
	assert.Zero(t, fs.Delivered)
	assert.Zero(t, fs.MeanDelay)
	assert.Zero(t, fs.Throughput)

	fs = summarizeFlow("f", 1, &flowRecord{delays: []float64{0.004}, bytes: 10}, 0)
	assert.Equal(t, 0.004, fs.MeanDelay)
	assert.Zero(t, fs.StdDelay)
	assert.Zero(t, fs.Throughput)
}

func TestSummaryString(t *testing.T) {
	sum := &Summary{ExpName: "x", Elapsed: 1,
		Flows:    []FlowSummary{{Name: "f1", Sent: 3, Delivered: 2}},
		Stations: []StationSummary{{Name: "a", Counts: StationCounts{TxOk: 2}}}}
	s := sum.String()
	assert.Contains(t, s, "experiment x, 1.000000 s")
	assert.Contains(t, s, "flow f1: sent 3 delivered 2")
	assert.Contains(t, s, "station a: txok 2 txfailed 0")
}
