package pktdcf

import (
	"strconv"

	"github.com/google/uuid"
	"github.com/iti/pktdcf/dcf"
	"github.com/iti/pktdcf/packet"
	"github.com/iti/pktdcf/sim"
	"gopkg.in/yaml.v3"
)

// TraceInst is one trace record, serialized
type TraceInst struct {
	TraceTime string `json:"tracetime" yaml:"tracetime"`
	TraceType string `json:"tracetype" yaml:"tracetype"`
	TraceStr  string `json:"tracestr" yaml:"tracestr"`
}

// NameType is an entry in a dictionary created for a trace
// that maps object id numbers to a (name,type) pair
type NameType struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// TraceManager gathers information about a simulation model and an execution of that model
type TraceManager struct {
	// experiment uses trace
	InUse bool `json:"inuse" yaml:"inuse"`

	// name of experiment
	ExpName string `json:"expname" yaml:"expname"`

	// RunID distinguishes executions of the same experiment
	RunID string `json:"runid" yaml:"runid"`

	// text name associated with each objID
	NameByID map[int]NameType `json:"namebyid" yaml:"namebyid"`

	// trace records for this experiment, by the id of the station making them
	Traces map[int][]TraceInst `json:"traces" yaml:"traces"`
}

// CreateTraceManager is a constructor.  It saves the name of the experiment
// and a flag indicating whether the trace manager is active.  By testing this
// flag we can inhibit the activity of gathering a trace when we don't want it,
// while embedding calls to its methods everywhere we need them when it is
func CreateTraceManager(expName string, active bool) *TraceManager {
	tm := new(TraceManager)
	tm.InUse = active
	tm.ExpName = expName
	tm.RunID = uuid.New().String()
	tm.NameByID = make(map[int]NameType)
	tm.Traces = make(map[int][]TraceInst)
	return tm
}

// Active tells the caller whether the Trace Manager is actively being used
func (tm *TraceManager) Active() bool {
	return tm != nil && tm.InUse
}

// AddTrace stores a record made by object objID
func (tm *TraceManager) AddTrace(objID int, trace TraceInst) {
	if !tm.Active() {
		return
	}
	tm.Traces[objID] = append(tm.Traces[objID], trace)
}

// AddName is used to add an element to the id -> (name,type) dictionary for the trace file
func (tm *TraceManager) AddName(id int, name string, objDesc string) {
	if !tm.Active() {
		return
	}
	if _, present := tm.NameByID[id]; present {
		panic("duplicated id in AddName")
	}
	tm.NameByID[id] = NameType{Name: name, Type: objDesc}
}

// WriteToFile stores the trace to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (tm *TraceManager) WriteToFile(filename string) error {
	if !tm.Active() {
		return nil
	}
	return writeDesc(filename, tm)
}

// MacTrace records the passage of a frame through a station's MAC, or a
// channel access event there
type MacTrace struct {
	Time      float64 `yaml:"time"`     // time in float64
	Ticks     int64   `yaml:"ticks"`    // ticks variable of time
	Priority  int64   `yaml:"priority"` // priority field of time-stamp
	StationID int     `yaml:"stationid"`
	Op        string  `yaml:"op"` // "tx", "rx", "rxerror", "drop", "deliver", "relay"
	PacketUID uint64  `yaml:"packetuid"`
	Size      uint32  `yaml:"size"`
	Frame     string  `yaml:"frame,omitempty"`
}

func (mtr *MacTrace) Serialize() string {
	bytes, merr := yaml.Marshal(*mtr)
	if merr != nil {
		panic(merr)
	}
	return string(bytes)
}

// AddMacTrace creates a record of a frame event at station stationID and stores it.
// p and hdr may be nil
func AddMacTrace(tm *TraceManager, t sim.Time, stationID int, op string, p *packet.Packet, hdr *dcf.MacHeader) {
	if !tm.Active() {
		return
	}
	vrt := t.VrTime()
	mtr := new(MacTrace)
	mtr.Time = vrt.Seconds()
	mtr.Ticks = vrt.Ticks()
	mtr.Priority = vrt.Pri()
	mtr.StationID = stationID
	mtr.Op = op
	if p != nil {
		mtr.PacketUID = p.UID()
		mtr.Size = p.Size()
	}
	if hdr != nil {
		mtr.Frame = hdr.Type.String()
	}

	traceTime := strconv.FormatFloat(vrt.Seconds(), 'f', -1, 64)
	tm.AddTrace(stationID, TraceInst{TraceTime: traceTime, TraceType: "mac", TraceStr: mtr.Serialize()})
}
