package pktdcf

// experiment.go builds an experiment from its description and runs it.
// BuildExperiment applies the description's parameters, validates it, and
// assembles the run-time structures: the route table over the links, the
// medium, a Station per described station and a Flow per described flow.
// Events are run either on a self-contained EventList or on an evtm event
// manager shared with other models.

import (
	"fmt"

	"github.com/iti/evt/evtm"
	"github.com/iti/pktdcf/sim"
	"go.uber.org/zap"
)

// BuildOpts select how an experiment is assembled
type BuildOpts struct {
	// EvtMgr, if not nil, is the evtm event manager that runs the experiment
	EvtMgr *evtm.EventManager

	// UseEvtm creates an evtm event manager when EvtMgr is nil
	UseEvtm bool

	// Trace gathers a record of every frame event
	Trace bool

	// RouteCacheSize bounds the number of shortest path trees kept
	RouteCacheSize int
}

// Experiment is a built experiment, ready to run
type Experiment struct {
	Cfg *ExpCfg

	sched  sim.Scheduler
	runner func(limit sim.Time)

	medium   *Medium
	routes   *RouteTable
	stations map[int]*Station
	byName   map[string]*Station
	order    []*Station

	flows    []*Flow
	flowRecs []*flowRecord
	started  bool
	elapsed  sim.Time

	metrics *Metrics
	trace   *TraceManager
}

// BuildExperiment assembles the experiment cfg describes.  The description
// is modified by applying its parameters
func BuildExperiment(cfg *ExpCfg, opts BuildOpts) (*Experiment, error) {
	if err := cfg.ApplyParameters(); err != nil {
		return nil, fmt.Errorf("experiment %s: %w", cfg.Name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("experiment %s: %w", cfg.Name, err)
	}

	exp := new(Experiment)
	exp.Cfg = cfg
	exp.stations = make(map[int]*Station)
	exp.byName = make(map[string]*Station)
	exp.metrics = CreateMetrics()
	exp.trace = CreateTraceManager(cfg.Name, opts.Trace)

	switch {
	case opts.EvtMgr != nil || opts.UseEvtm:
		es := sim.CreateEvtmScheduler(opts.EvtMgr)
		exp.sched = es
		exp.runner = es.Run
	default:
		el := sim.CreateEventList()
		exp.sched = el
		exp.runner = el.RunUntil
	}

	// station ids follow the order of description, from 1
	ids := make(map[string]int)
	for idx, sd := range cfg.Stations {
		ids[sd.Name] = idx + 1
	}
	edges := make(map[int][]int)
	for _, sd := range cfg.Stations {
		edges[ids[sd.Name]] = []int{}
	}
	if len(cfg.Links) == 0 {
		// every station hears every other
		for _, a := range cfg.Stations {
			for _, b := range cfg.Stations {
				if a.Name != b.Name {
					edges[ids[a.Name]] = append(edges[ids[a.Name]], ids[b.Name])
				}
			}
		}
	}
	for _, link := range cfg.Links {
		edges[ids[link.A]] = append(edges[ids[link.A]], ids[link.B])
	}
	routes, err := CreateRouteTable(edges, opts.RouteCacheSize)
	if err != nil {
		return nil, fmt.Errorf("experiment %s: %w", cfg.Name, err)
	}
	exp.routes = routes

	exp.medium = CreateMedium(exp.sched, sim.Microseconds(cfg.PreambleUs), cfg.RateMbps, cfg.ErrorRate,
		fmt.Sprintf("%s/medium", cfg.Name), routes.Neighbors)

	for idx := range cfg.Stations {
		sd := &cfg.Stations[idx]
		st := CreateStation(ids[sd.Name], sd, exp)
		exp.stations[st.ID] = st
		exp.byName[st.Name] = st
		exp.order = append(exp.order, st)
		exp.trace.AddName(st.ID, st.Name, "station")
	}

	for idx := range cfg.Flows {
		fd := &cfg.Flows[idx]
		flow := CreateFlow(idx, fd, exp.byName[fd.Src], exp.byName[fd.Dst], exp.sched)
		exp.flows = append(exp.flows, flow)
		exp.flowRecs = append(exp.flowRecs, new(flowRecord))
	}

	logger.Info("experiment built",
		zap.String("expname", cfg.Name),
		zap.Int("stations", len(exp.order)),
		zap.Int("flows", len(exp.flows)),
		zap.Bool("evtm", opts.EvtMgr != nil || opts.UseEvtm))
	return exp, nil
}

// Scheduler returns the scheduler events of the experiment run on
func (exp *Experiment) Scheduler() sim.Scheduler {
	return exp.sched
}

// Metrics returns the experiment's counters
func (exp *Experiment) Metrics() *Metrics {
	return exp.metrics
}

// Trace returns the experiment's trace manager
func (exp *Experiment) Trace() *TraceManager {
	return exp.trace
}

// Routes returns the experiment's route table
func (exp *Experiment) Routes() *RouteTable {
	return exp.routes
}

// Station returns the named station
func (exp *Experiment) Station(name string) (*Station, bool) {
	st, present := exp.byName[name]
	return st, present
}

// Flow returns the named flow
func (exp *Experiment) Flow(name string) (*Flow, bool) {
	for _, flow := range exp.flows {
		if flow.Name == name {
			return flow, true
		}
	}
	return nil, false
}

// Run starts the flows, if this is the first run, and executes events for duration
func (exp *Experiment) Run(duration sim.Time) {
	if !exp.started {
		exp.started = true
		for _, flow := range exp.flows {
			flow.StartFlow()
		}
	}
	limit := exp.elapsed + duration
	exp.runner(limit)
	exp.elapsed = limit
	logger.Info("experiment ran", zap.String("expname", exp.Cfg.Name), zap.Stringer("until", limit))
}

// flowDelivered records the arrival at its destination of a packet of the flow tag names
func (exp *Experiment) flowDelivered(tag *FlowTag, size uint32) {
	if int(tag.FlowID) >= len(exp.flows) {
		logger.Warn("delivered packet of unknown flow", zap.Uint32("flow", tag.FlowID))
		return
	}
	flow := exp.flows[tag.FlowID]
	rec := exp.flowRecs[tag.FlowID]
	delay := (exp.sched.Now() - tag.SentAt).Seconds()
	rec.delays = append(rec.delays, delay)
	rec.bytes += uint64(size)

	exp.metrics.Delivered.WithLabelValues(flow.Name).Inc()
	exp.metrics.DeliveredBytes.WithLabelValues(flow.Name).Add(float64(size))
	exp.metrics.Delay.WithLabelValues(flow.Name).Observe(delay)
}

// Summary reduces what the experiment observed so far
func (exp *Experiment) Summary() *Summary {
	sum := new(Summary)
	sum.ExpName = exp.Cfg.Name
	sum.RunID = exp.trace.RunID
	sum.Elapsed = exp.elapsed.Seconds()
	for idx, flow := range exp.flows {
		sum.Flows = append(sum.Flows, summarizeFlow(flow.Name, flow.Sent, exp.flowRecs[idx], sum.Elapsed))
	}
	for _, st := range exp.order {
		ss := StationSummary{Name: st.Name, Counts: st.Counts,
			Cw: make(map[string]uint32), Queued: make(map[string]int)}
		for _, qname := range st.queues {
			txop := st.txops[qname]
			ss.Cw[qname] = txop.State().Cw()
			ss.Queued[qname] = txop.Queue().Len()
		}
		sum.Stations = append(sum.Stations, ss)
	}
	return sum
}

// WriteTrace stores the trace gathered, if tracing was selected
func (exp *Experiment) WriteTrace(filename string) error {
	return exp.trace.WriteToFile(filename)
}
