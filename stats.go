package pktdcf

// stats.go reduces what an experiment observed to summaries of each flow and
// each station.

import (
	"fmt"
	"math"
	"strings"

	"golang.org/x/exp/slices"
	"gonum.org/v1/gonum/stat"
)

// flowRecord accumulates the deliveries of one flow
type flowRecord struct {
	delays []float64 // seconds
	bytes  uint64
}

// FlowSummary describes what one flow sent and what arrived.  Delays are in
// seconds, throughput in bits per second over the run
type FlowSummary struct {
	Name       string  `json:"name" yaml:"name"`
	Sent       uint32  `json:"sent" yaml:"sent"`
	Delivered  int     `json:"delivered" yaml:"delivered"`
	Bytes      uint64  `json:"bytes" yaml:"bytes"`
	Throughput float64 `json:"throughput" yaml:"throughput"`
	MeanDelay  float64 `json:"meandelay" yaml:"meandelay"`
	StdDelay   float64 `json:"stddelay" yaml:"stddelay"`
	MedDelay   float64 `json:"meddelay" yaml:"meddelay"`
	P95Delay   float64 `json:"p95delay" yaml:"p95delay"`
	MaxDelay   float64 `json:"maxdelay" yaml:"maxdelay"`
}

// StationSummary holds the counts of one station, and the channel access
// state of its queues at the end of the run
type StationSummary struct {
	Name   string            `json:"name" yaml:"name"`
	Counts StationCounts     `json:"counts" yaml:"counts"`
	Cw     map[string]uint32 `json:"cw" yaml:"cw"`
	Queued map[string]int    `json:"queued" yaml:"queued"`
}

// Summary is the outcome of a run
type Summary struct {
	ExpName  string           `json:"expname" yaml:"expname"`
	RunID    string           `json:"runid" yaml:"runid"`
	Elapsed  float64          `json:"elapsed" yaml:"elapsed"`
	Flows    []FlowSummary    `json:"flows" yaml:"flows"`
	Stations []StationSummary `json:"stations" yaml:"stations"`
}

// summarizeFlow computes the statistics of a flow's deliveries over elapsed seconds
func summarizeFlow(name string, sent uint32, rec *flowRecord, elapsed float64) FlowSummary {
	fs := FlowSummary{Name: name, Sent: sent, Delivered: len(rec.delays), Bytes: rec.bytes}
	if elapsed > 0 {
		fs.Throughput = float64(rec.bytes) * 8 / elapsed
	}
	if len(rec.delays) == 0 {
		return fs
	}

	sorted := slices.Clone(rec.delays)
	slices.Sort(sorted)
	fs.MeanDelay, fs.StdDelay = stat.MeanStdDev(sorted, nil)
	if math.IsNaN(fs.StdDelay) {
		fs.StdDelay = 0
	}
	fs.MedDelay = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	fs.P95Delay = stat.Quantile(0.95, stat.Empirical, sorted, nil)
	fs.MaxDelay = sorted[len(sorted)-1]
	return fs
}

// WriteToFile stores the summary to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (sum *Summary) WriteToFile(filename string) error {
	return writeDesc(filename, sum)
}

func (sum *Summary) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "experiment %s, %.6f s\n", sum.ExpName, sum.Elapsed)
	for _, fs := range sum.Flows {
		fmt.Fprintf(&sb, "flow %s: sent %d delivered %d throughput %.0f b/s delay mean %.6f p95 %.6f s\n",
			fs.Name, fs.Sent, fs.Delivered, fs.Throughput, fs.MeanDelay, fs.P95Delay)
	}
	for _, ss := range sum.Stations {
		c := ss.Counts
		fmt.Fprintf(&sb, "station %s: txok %d txfailed %d drops %d rxok %d rxerror %d relayed %d\n",
			ss.Name, c.TxOk, c.TxFailed, c.QueueDrops, c.RxOk, c.RxError, c.Relayed)
	}
	return sb.String()
}
