package packet

import (
	"go.uber.org/zap"
)

// logger is silent until SetLogger is called
var logger = zap.NewNop()

// SetLogger directs the package's diagnostics to l.  A nil l silences them
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger = l.Named("packet")
}
