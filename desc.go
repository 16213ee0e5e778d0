package pktdcf

// desc.go holds the description of an experiment: the timing of the shared
// medium, the stations on it with their queues, the links along which frames
// may be relayed, and the flows of traffic.  Descriptions are written to and
// read from files as YAML or JSON, selected by the file extension on write and
// by a flag on read.  An ExpCfg also carries ExpParameters, assignments that
// override the described values of every object their attribute selects.

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/multierr"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// QueueDesc describes one transmit queue of a station, and the txop contending for it
type QueueDesc struct {
	Name   string `json:"name" yaml:"name"`
	QoS    bool   `json:"qos" yaml:"qos"`
	Aifsn  uint32 `json:"aifsn" yaml:"aifsn"`
	CwMin  uint32 `json:"cwmin" yaml:"cwmin"`
	CwMax  uint32 `json:"cwmax" yaml:"cwmax"`
	MaxLen int    `json:"maxlen" yaml:"maxlen"`
}

// StationDesc describes a station on the medium
type StationDesc struct {
	Name   string      `json:"name" yaml:"name"`
	Groups []string    `json:"groups" yaml:"groups"`
	Queues []QueueDesc `json:"queues" yaml:"queues"`

	// frames larger than RtsThreshold bytes are protected by RTS/CTS,
	// those larger than FragThreshold bytes are fragmented
	RtsThreshold  uint32 `json:"rtsthreshold" yaml:"rtsthreshold"`
	FragThreshold uint32 `json:"fragthreshold" yaml:"fragthreshold"`

	// retry limits for RTS and data frames
	MaxSsrc uint32 `json:"maxssrc" yaml:"maxssrc"`
	MaxSlrc uint32 `json:"maxslrc" yaml:"maxslrc"`
}

// LinkDesc says that stations A and B may relay frames to one another
type LinkDesc struct {
	A string `json:"a" yaml:"a"`
	B string `json:"b" yaml:"b"`
}

// FlowDesc describes a stream of packets from Src to Dst, entering Src's named queue
type FlowDesc struct {
	Name   string   `json:"name" yaml:"name"`
	Groups []string `json:"groups" yaml:"groups"`
	Src    string   `json:"src" yaml:"src"`
	Dst    string   `json:"dst" yaml:"dst"`
	Queue  string   `json:"queue" yaml:"queue"`

	// Rate is in packets per second, Size in bytes
	Rate float64 `json:"rate" yaml:"rate"`
	Size uint32  `json:"size" yaml:"size"`

	// Model is "exp" for Poisson arrivals or "const" for evenly spaced ones
	Model string `json:"model" yaml:"model"`

	// Start is when the first packet arrives, in seconds
	Start float64 `json:"start" yaml:"start"`
}

// An ExpParameter assigns Value to parameter Param of every object of kind
// ParamObj ("Station", "Queue" or "Flow") selected by Attribute.  An attribute is
// "*" for every object, "name%%xyz" for the object named xyz, or a
// comma-separated list of "group%%xyz" selectors (for queues, "qos" or "dca")
// all of which must match
type ExpParameter struct {
	ParamObj  string `json:"paramObj" yaml:"paramObj"`
	Attribute string `json:"attribute" yaml:"attribute"`
	Param     string `json:"param" yaml:"param"`
	Value     string `json:"value" yaml:"value"`
}

// CreateExpParameter is a constructor
func CreateExpParameter(paramObj, attribute, param, value string) *ExpParameter {
	return &ExpParameter{ParamObj: paramObj, Attribute: attribute, Param: param, Value: value}
}

// ExpCfg describes an experiment
type ExpCfg struct {
	Name string `json:"expname" yaml:"expname"`

	// timing of the medium, in microseconds
	SlotUs       int64 `json:"slotus" yaml:"slotus"`
	SifsUs       int64 `json:"sifsus" yaml:"sifsus"`
	EifsNoDifsUs int64 `json:"eifsnodifsus" yaml:"eifsnodifsus"`
	AckTimeoutUs int64 `json:"acktimeoutus" yaml:"acktimeoutus"`
	CtsTimeoutUs int64 `json:"ctstimeoutus" yaml:"ctstimeoutus"`
	PreambleUs   int64 `json:"preambleus" yaml:"preambleus"`

	// RateMbps is the rate at which frame bytes go on the air
	RateMbps float64 `json:"ratembps" yaml:"ratembps"`

	// ErrorRate is the chance that an otherwise clean reception is corrupt
	ErrorRate float64 `json:"errorrate" yaml:"errorrate"`

	Stations   []StationDesc  `json:"stations" yaml:"stations"`
	Links      []LinkDesc     `json:"links" yaml:"links"`
	Flows      []FlowDesc     `json:"flows" yaml:"flows"`
	Parameters []ExpParameter `json:"parameters" yaml:"parameters"`
}

// CreateExpCfg is a constructor.  Timing defaults are those of 802.11a at 6 Mbps
func CreateExpCfg(name string) *ExpCfg {
	excg := new(ExpCfg)
	excg.Name = name
	excg.SlotUs = 9
	excg.SifsUs = 16
	excg.EifsNoDifsUs = 16 + 44
	excg.AckTimeoutUs = 16 + 9 + 44
	excg.CtsTimeoutUs = 16 + 9 + 44
	excg.PreambleUs = 20
	excg.RateMbps = 6
	excg.Stations = make([]StationDesc, 0)
	excg.Links = make([]LinkDesc, 0)
	excg.Flows = make([]FlowDesc, 0)
	excg.Parameters = make([]ExpParameter, 0)
	return excg
}

// CreateStationDesc is a constructor for a station with one DCA queue named
// "dca", standard retry limits, and neither RTS nor fragmentation
func CreateStationDesc(name string, groups ...string) StationDesc {
	return StationDesc{
		Name:          name,
		Groups:        groups,
		Queues:        []QueueDesc{{Name: "dca", Aifsn: 2, CwMin: 15, CwMax: 1023}},
		RtsThreshold:  65535,
		FragThreshold: 65535,
		MaxSsrc:       7,
		MaxSlrc:       7,
	}
}

// AddStation appends a station description
func (excg *ExpCfg) AddStation(sd StationDesc) {
	excg.Stations = append(excg.Stations, sd)
}

// AddLink records that the two named stations may relay to each other
func (excg *ExpCfg) AddLink(a, b string) {
	excg.Links = append(excg.Links, LinkDesc{A: a, B: b})
}

// AddFlow appends a flow description
func (excg *ExpCfg) AddFlow(fd FlowDesc) {
	excg.Flows = append(excg.Flows, fd)
}

// AddExpParameter appends a parameter without validating it
func (excg *ExpCfg) AddExpParameter(exparam *ExpParameter) {
	excg.Parameters = append(excg.Parameters, *exparam)
}

// AddParameter validates the four values of an ExpParameter and appends it
func (excg *ExpCfg) AddParameter(paramObj, attribute, param, value string) error {
	if err := ValidateParameter(paramObj, attribute, param); err != nil {
		return err
	}
	excg.Parameters = append(excg.Parameters, *CreateExpParameter(paramObj, attribute, param, value))
	return nil
}

// station returns the description of the named station
func (excg *ExpCfg) station(name string) (*StationDesc, bool) {
	for idx := range excg.Stations {
		if excg.Stations[idx].Name == name {
			return &excg.Stations[idx], true
		}
	}
	return nil, false
}

// queue returns the description of the named queue of sd
func (sd *StationDesc) queue(name string) (*QueueDesc, bool) {
	for idx := range sd.Queues {
		if sd.Queues[idx].Name == name {
			return &sd.Queues[idx], true
		}
	}
	return nil, false
}

// Validate reports every inconsistency in the description
func (excg *ExpCfg) Validate() error {
	var err error
	if excg.SlotUs <= 0 {
		err = multierr.Append(err, fmt.Errorf("slot of %d us is not positive", excg.SlotUs))
	}
	if excg.SifsUs <= 0 {
		err = multierr.Append(err, fmt.Errorf("SIFS of %d us is not positive", excg.SifsUs))
	}
	if excg.EifsNoDifsUs < 0 || excg.AckTimeoutUs <= 0 || excg.CtsTimeoutUs <= 0 || excg.PreambleUs < 0 {
		err = multierr.Append(err, errors.New("EIFS, timeouts and preamble may not be negative, timeouts not zero"))
	}
	if !(excg.RateMbps > 0) {
		err = multierr.Append(err, fmt.Errorf("rate of %g Mbps is not positive", excg.RateMbps))
	}
	if excg.ErrorRate < 0 || excg.ErrorRate >= 1 {
		err = multierr.Append(err, fmt.Errorf("error rate %g is outside [0, 1)", excg.ErrorRate))
	}

	names := make([]string, 0, len(excg.Stations))
	for _, sd := range excg.Stations {
		if sd.Name == "" {
			err = multierr.Append(err, errors.New("station without a name"))
			continue
		}
		if slices.Contains(names, sd.Name) {
			err = multierr.Append(err, fmt.Errorf("station %s is described twice", sd.Name))
		}
		names = append(names, sd.Name)
		err = multierr.Append(err, sd.validate())
	}

	for _, link := range excg.Links {
		for _, end := range []string{link.A, link.B} {
			if !slices.Contains(names, end) {
				err = multierr.Append(err, fmt.Errorf("link %s-%s names unknown station %s", link.A, link.B, end))
			}
		}
		if link.A == link.B {
			err = multierr.Append(err, fmt.Errorf("link from %s to itself", link.A))
		}
	}

	for _, fd := range excg.Flows {
		err = multierr.Append(err, excg.validateFlow(&fd))
	}
	for _, param := range excg.Parameters {
		err = multierr.Append(err, ValidateParameter(param.ParamObj, param.Attribute, param.Param))
	}
	return err
}

func (sd *StationDesc) validate() error {
	var err error
	if len(sd.Queues) == 0 {
		err = multierr.Append(err, fmt.Errorf("station %s has no queues", sd.Name))
	}
	seen := []string{}
	for _, qd := range sd.Queues {
		if slices.Contains(seen, qd.Name) {
			err = multierr.Append(err, fmt.Errorf("station %s has two queues named %s", sd.Name, qd.Name))
		}
		seen = append(seen, qd.Name)
		if qd.CwMin > qd.CwMax {
			err = multierr.Append(err, fmt.Errorf("queue %s of station %s has CWmin %d above CWmax %d",
				qd.Name, sd.Name, qd.CwMin, qd.CwMax))
		}
		if qd.MaxLen < 0 {
			err = multierr.Append(err, fmt.Errorf("queue %s of station %s has negative length limit", qd.Name, sd.Name))
		}
	}
	if sd.MaxSsrc == 0 || sd.MaxSlrc == 0 {
		err = multierr.Append(err, fmt.Errorf("station %s allows no attempts", sd.Name))
	}
	if sd.FragThreshold == 0 {
		err = multierr.Append(err, fmt.Errorf("station %s has a zero fragmentation threshold", sd.Name))
	}
	return err
}

func (excg *ExpCfg) validateFlow(fd *FlowDesc) error {
	var err error
	src, srcOK := excg.station(fd.Src)
	if !srcOK {
		err = multierr.Append(err, fmt.Errorf("flow %s starts at unknown station %s", fd.Name, fd.Src))
	} else if _, present := src.queue(fd.Queue); !present {
		err = multierr.Append(err, fmt.Errorf("flow %s enters unknown queue %s of station %s", fd.Name, fd.Queue, fd.Src))
	}
	if _, present := excg.station(fd.Dst); !present {
		err = multierr.Append(err, fmt.Errorf("flow %s ends at unknown station %s", fd.Name, fd.Dst))
	}
	if fd.Src == fd.Dst {
		err = multierr.Append(err, fmt.Errorf("flow %s starts and ends at %s", fd.Name, fd.Src))
	}
	if !(fd.Rate > 0) || fd.Size == 0 {
		err = multierr.Append(err, fmt.Errorf("flow %s needs a positive rate and size", fd.Name))
	}
	if fd.Start < 0 {
		err = multierr.Append(err, fmt.Errorf("flow %s starts before time zero", fd.Name))
	}
	if !slices.Contains(flowModels, fd.Model) {
		err = multierr.Append(err, fmt.Errorf("flow %s has unknown arrival model %q", fd.Name, fd.Model))
	}
	return err
}

// ExpParamObjs, ExpAttributes and ExpParams list the kinds of object an
// ExpParameter may configure, the plain attributes that select objects of each
// kind, and the parameters each kind has
var (
	ExpParamObjs  = []string{"Station", "Queue", "Flow"}
	ExpAttributes = map[string][]string{
		"Station": {"group", "*"},
		"Queue":   {"group", "qos", "dca", "*"},
		"Flow":    {"group", "*"},
	}
	ExpParams = map[string][]string{
		"Station": {"rtsthreshold", "fragthreshold", "maxssrc", "maxslrc"},
		"Queue":   {"aifsn", "cwmin", "cwmax", "maxlen"},
		"Flow":    {"rate", "size", "model", "start"},
	}
)

// ValidateParameter returns an error if paramObj, attribute and param do not make sense together
func ValidateParameter(paramObj, attribute, param string) error {
	if !slices.Contains(ExpParamObjs, paramObj) {
		return fmt.Errorf("parameter paramObj %s is not recognized", paramObj)
	}
	if !slices.Contains(ExpParams[paramObj], param) {
		return fmt.Errorf("parameter %s is not recognized for paramObj %s", param, paramObj)
	}

	attrbList := strings.Split(attribute, ",")
	for _, attrb := range attrbList {
		// a name or a wildcard must stand alone
		if strings.HasPrefix(attrb, "name%%") || attrb == "*" {
			if len(attrbList) != 1 {
				return fmt.Errorf("parameter attribute %s of paramObj %s is combined with others", attrb, paramObj)
			}
			return nil
		}
		base, _, _ := strings.Cut(attrb, "%%")
		if !slices.Contains(ExpAttributes[paramObj], base) {
			return fmt.Errorf("parameter attribute %s is not recognized for paramObj %s", attrb, paramObj)
		}
	}
	return nil
}

// attributeRank orders parameters from the broadest selection to the narrowest
func attributeRank(attribute string) int {
	switch {
	case attribute == "*":
		return 0
	case strings.HasPrefix(attribute, "name%%"):
		return 2
	}
	return 1
}

// reorderExpParams puts wildcard parameters first and named ones last, so
// that when several apply to an object the most specific is applied last and wins
func reorderExpParams(pL []ExpParameter) []ExpParameter {
	ordered := slices.Clone(pL)
	slices.SortStableFunc(ordered, func(a, b ExpParameter) int {
		return attributeRank(a.Attribute) - attributeRank(b.Attribute)
	})
	return ordered
}

// matches reports whether attribute selects an object with the given name,
// groups and (for queues) kind
func matches(attribute, name string, groups []string, kind string) bool {
	if attribute == "*" {
		return true
	}
	if target, isName := strings.CutPrefix(attribute, "name%%"); isName {
		return target == name
	}
	for _, attrb := range strings.Split(attribute, ",") {
		base, value, _ := strings.Cut(attrb, "%%")
		switch base {
		case "group":
			if !slices.Contains(groups, value) {
				return false
			}
		default:
			if base != kind {
				return false
			}
		}
	}
	return true
}

// ApplyParameters assigns the values of the parameters to the objects they
// select, broadest selections first
func (excg *ExpCfg) ApplyParameters() error {
	var err error
	for _, param := range reorderExpParams(excg.Parameters) {
		err = multierr.Append(err, excg.applyParameter(&param))
	}
	return err
}

func (excg *ExpCfg) applyParameter(param *ExpParameter) error {
	var err error
	switch param.ParamObj {
	case "Station":
		for idx := range excg.Stations {
			sd := &excg.Stations[idx]
			if matches(param.Attribute, sd.Name, sd.Groups, "") {
				err = multierr.Append(err, setUint(param, map[string]*uint32{
					"rtsthreshold":  &sd.RtsThreshold,
					"fragthreshold": &sd.FragThreshold,
					"maxssrc":       &sd.MaxSsrc,
					"maxslrc":       &sd.MaxSlrc,
				}))
			}
		}
	case "Queue":
		for sidx := range excg.Stations {
			sd := &excg.Stations[sidx]
			for qidx := range sd.Queues {
				qd := &sd.Queues[qidx]
				kind := "dca"
				if qd.QoS {
					kind = "qos"
				}
				if !matches(param.Attribute, qd.Name, sd.Groups, kind) {
					continue
				}
				if param.Param == "maxlen" {
					v, perr := strconv.Atoi(param.Value)
					if perr != nil {
						err = multierr.Append(err, fmt.Errorf("maxlen value %q: %w", param.Value, perr))
						continue
					}
					qd.MaxLen = v
					continue
				}
				err = multierr.Append(err, setUint(param, map[string]*uint32{
					"aifsn": &qd.Aifsn,
					"cwmin": &qd.CwMin,
					"cwmax": &qd.CwMax,
				}))
			}
		}
	case "Flow":
		for idx := range excg.Flows {
			fd := &excg.Flows[idx]
			if matches(param.Attribute, fd.Name, fd.Groups, "") {
				err = multierr.Append(err, fd.setParam(param))
			}
		}
	default:
		err = fmt.Errorf("parameter paramObj %s is not recognized", param.ParamObj)
	}
	return err
}

// setUint parses the parameter's value into the field its name selects
func setUint(param *ExpParameter, fields map[string]*uint32) error {
	field, present := fields[param.Param]
	if !present {
		return fmt.Errorf("parameter %s is not recognized for paramObj %s", param.Param, param.ParamObj)
	}
	v, err := strconv.ParseUint(param.Value, 10, 32)
	if err != nil {
		return fmt.Errorf("%s value %q: %w", param.Param, param.Value, err)
	}
	*field = uint32(v)
	return nil
}

func (fd *FlowDesc) setParam(param *ExpParameter) error {
	switch param.Param {
	case "rate", "start":
		v, err := strconv.ParseFloat(param.Value, 64)
		if err != nil {
			return fmt.Errorf("%s value %q: %w", param.Param, param.Value, err)
		}
		if param.Param == "rate" {
			fd.Rate = v
		} else {
			fd.Start = v
		}
	case "size":
		v, err := strconv.ParseUint(param.Value, 10, 32)
		if err != nil {
			return fmt.Errorf("size value %q: %w", param.Value, err)
		}
		fd.Size = uint32(v)
	case "model":
		fd.Model = param.Value
	default:
		return fmt.Errorf("parameter %s is not recognized for paramObj Flow", param.Param)
	}
	return nil
}

// WriteToFile stores the ExpCfg to the file whose name is given.
// Serialization to json or to yaml is selected based on the extension of this name.
func (excg *ExpCfg) WriteToFile(filename string) error {
	return writeDesc(filename, excg)
}

// writeDesc serializes v to filename as YAML or JSON, per the extension
func writeDesc(filename string, v any) error {
	var bytes []byte
	var err error
	switch path.Ext(filename) {
	case ".yaml", ".YAML", ".yml":
		bytes, err = yaml.Marshal(v)
	case ".json", ".JSON":
		bytes, err = json.MarshalIndent(v, "", "\t")
	default:
		return fmt.Errorf("%s: extension selects neither yaml nor json", filename)
	}
	if err != nil {
		return fmt.Errorf("serializing %s: %w", filename, err)
	}
	if err = os.WriteFile(filename, bytes, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", filename, err)
	}
	return nil
}

// ReadExpCfg deserializes a byte slice holding a representation of an ExpCfg.
// If dict is empty, the file whose name is given is read to acquire the bytes
func ReadExpCfg(filename string, useYAML bool, dict []byte) (*ExpCfg, error) {
	var err error
	if len(dict) == 0 {
		dict, err = os.ReadFile(filename)
		if err != nil {
			return nil, err
		}
	}

	example := ExpCfg{}
	if useYAML {
		err = yaml.Unmarshal(dict, &example)
	} else {
		err = json.Unmarshal(dict, &example)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding experiment %s: %w", filename, err)
	}
	return &example, nil
}

// CheckReadableFiles probes the file system to ensure every named file exists
func CheckReadableFiles(names []string) error {
	var err error
	for _, name := range names {
		if len(name) == 0 {
			continue
		}
		if _, serr := os.Stat(name); serr != nil {
			err = multierr.Append(err, serr)
		}
	}
	return err
}

// CheckOutputFiles probes the file system to ensure the directory of every named file exists
func CheckOutputFiles(names []string) error {
	var err error
	for _, name := range names {
		if len(name) == 0 {
			continue
		}
		directory, _ := filepath.Split(name)
		if directory == "" {
			continue
		}
		if _, serr := os.Stat(directory); serr != nil {
			err = multierr.Append(err, serr)
		}
	}
	return err
}
