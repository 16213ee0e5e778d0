package pktdcf

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func TestExpCfgFileRoundTrip(t *testing.T) {
	cfg := pairCfg()
	cfg.AddLink("a", "b")
	require.NoError(t, cfg.AddParameter("Queue", "*", "cwmin", "31"))

	for _, ext := range []string{".yaml", ".json"} {
		filename := filepath.Join(t.TempDir(), "exp"+ext)
		require.NoError(t, cfg.WriteToFile(filename))

		read, err := ReadExpCfg(filename, ext == ".yaml", nil)
		require.NoError(t, err, ext)
		assert.Equal(t, cfg.Name, read.Name)
		assert.Equal(t, cfg.SlotUs, read.SlotUs)
		assert.Equal(t, cfg.RateMbps, read.RateMbps)
		assert.Equal(t, cfg.Stations, read.Stations)
		assert.Equal(t, cfg.Links, read.Links)
		assert.Equal(t, cfg.Flows, read.Flows)
		assert.Equal(t, cfg.Parameters, read.Parameters)
	}

	assert.Error(t, cfg.WriteToFile(filepath.Join(t.TempDir(), "exp.toml")))
	_, err := ReadExpCfg(filepath.Join(t.TempDir(), "missing.yaml"), true, nil)
	assert.Error(t, err)
}

func TestReadExpCfgFromDict(t *testing.T) {
	dict := []byte(`
expname: tiny
slotus: 20
stations:
  - name: x
    queues:
      - name: voice
        qos: true
        aifsn: 2
        cwmin: 3
        cwmax: 7
`)
	cfg, err := ReadExpCfg("", true, dict)
	require.NoError(t, err)
	assert.Equal(t, "tiny", cfg.Name)
	assert.Equal(t, int64(20), cfg.SlotUs)
	require.Len(t, cfg.Stations, 1)
	assert.Equal(t, QueueDesc{Name: "voice", QoS: true, Aifsn: 2, CwMin: 3, CwMax: 7}, cfg.Stations[0].Queues[0])

	_, err = ReadExpCfg("", false, []byte("{not json"))
	assert.Error(t, err)
}

func TestValidateGathersEveryError(t *testing.T) {
	cfg := CreateExpCfg("broken")
	cfg.SlotUs = 0
	cfg.RateMbps = 0
	sd := CreateStationDesc("a")
	sd.Queues[0].CwMin = 2000
	cfg.AddStation(sd)
	cfg.AddStation(CreateStationDesc("a"))
	cfg.AddLink("a", "z")
	cfg.AddFlow(FlowDesc{Name: "f", Src: "a", Dst: "a", Queue: "video", Rate: 0, Size: 10, Model: "pareto"})

	err := cfg.Validate()
	require.Error(t, err)
	errs := multierr.Errors(err)
	assert.Len(t, errs, 9)
	assert.ErrorContains(t, err, "slot of 0 us")
	assert.ErrorContains(t, err, "described twice")
	assert.ErrorContains(t, err, "CWmin 2000 above CWmax 1023")
	assert.ErrorContains(t, err, "unknown station z")
	assert.ErrorContains(t, err, "unknown queue video")
	assert.ErrorContains(t, err, "unknown arrival model")

	assert.NoError(t, pairCfg().Validate())
}

func TestValidateParameter(t *testing.T) {
	assert.NoError(t, ValidateParameter("Station", "*", "rtsthreshold"))
	assert.NoError(t, ValidateParameter("Station", "name%%a", "maxslrc"))
	assert.NoError(t, ValidateParameter("Queue", "qos,group%%edge", "aifsn"))
	assert.NoError(t, ValidateParameter("Flow", "group%%bulk", "rate"))

	assert.Error(t, ValidateParameter("Router", "*", "rtsthreshold"))
	assert.Error(t, ValidateParameter("Station", "*", "aifsn"))
	assert.Error(t, ValidateParameter("Station", "model%%x", "maxssrc"))
	assert.Error(t, ValidateParameter("Queue", "*,qos", "cwmax"))
}

func TestApplyParametersMostSpecificWins(t *testing.T) {
	cfg := CreateExpCfg("params")
	cfg.AddStation(CreateStationDesc("a", "edge"))
	cfg.AddStation(CreateStationDesc("b", "edge", "fast"))
	cfg.AddStation(CreateStationDesc("c"))
	voice := QueueDesc{Name: "voice", QoS: true, Aifsn: 2, CwMin: 3, CwMax: 7}
	cfg.Stations[1].Queues = append(cfg.Stations[1].Queues, voice)
	cfg.AddFlow(FlowDesc{Name: "f", Groups: []string{"bulk"}, Src: "a", Dst: "b", Queue: "dca",
		Rate: 1, Size: 100, Model: "exp"})

	// given narrowest first, to show that order of application does not follow order of listing
	require.NoError(t, cfg.AddParameter("Station", "name%%b", "maxslrc", "2"))
	require.NoError(t, cfg.AddParameter("Station", "group%%edge", "maxslrc", "4"))
	require.NoError(t, cfg.AddParameter("Station", "*", "maxslrc", "5"))
	require.NoError(t, cfg.AddParameter("Queue", "qos,group%%fast", "aifsn", "7"))
	require.NoError(t, cfg.AddParameter("Queue", "dca", "maxlen", "12"))
	require.NoError(t, cfg.AddParameter("Flow", "group%%bulk", "rate", "250.5"))
	require.NoError(t, cfg.AddParameter("Flow", "*", "model", "const"))
	require.NoError(t, cfg.ApplyParameters())

	assert.Equal(t, uint32(4), cfg.Stations[0].MaxSlrc)
	assert.Equal(t, uint32(2), cfg.Stations[1].MaxSlrc)
	assert.Equal(t, uint32(5), cfg.Stations[2].MaxSlrc)

	assert.Equal(t, uint32(2), cfg.Stations[1].Queues[0].Aifsn)
	assert.Equal(t, 12, cfg.Stations[1].Queues[0].MaxLen)
	assert.Equal(t, uint32(7), cfg.Stations[1].Queues[1].Aifsn)
	assert.Equal(t, 0, cfg.Stations[1].Queues[1].MaxLen)

	assert.Equal(t, 250.5, cfg.Flows[0].Rate)
	assert.Equal(t, "const", cfg.Flows[0].Model)

	cfg.AddExpParameter(CreateExpParameter("Queue", "*", "cwmax", "-3"))
	assert.Error(t, cfg.ApplyParameters())
}

func TestCheckFiles(t *testing.T) {
	dir := t.TempDir()
	present := filepath.Join(dir, "present.yaml")
	require.NoError(t, os.WriteFile(present, []byte("expname: x\n"), 0o644))

	assert.NoError(t, CheckReadableFiles([]string{present, ""}))
	err := CheckReadableFiles([]string{filepath.Join(dir, "absent1"), present, filepath.Join(dir, "absent2")})
	assert.Len(t, multierr.Errors(err), 2)

	assert.NoError(t, CheckOutputFiles([]string{filepath.Join(dir, "out.yaml"), "local.yaml"}))
	assert.Error(t, CheckOutputFiles([]string{filepath.Join(dir, "nodir", "out.yaml")}))
}
