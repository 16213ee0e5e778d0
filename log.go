package pktdcf

import (
	"github.com/iti/pktdcf/dcf"
	"github.com/iti/pktdcf/packet"
	"go.uber.org/zap"
)

// logger is silent until SetLogger is called
var logger = zap.NewNop()

// SetLogger directs the diagnostics of the experiment layer, and of the
// packet and dcf packages beneath it, to l.  A nil l silences them
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l.Named("pktdcf")
	packet.SetLogger(l)
	dcf.SetLogger(l)
}
