package ngp

import "github.com/sirupsen/logrus"

// Config is the engine's construction-time configuration.
type Config struct {
	// LocalNode is this engine's 8-bit node address.
	LocalNode uint8

	// Logger receives structured log output from every component. A nil
	// Logger defaults to logrus.StandardLogger().
	Logger *logrus.Logger

	// RouteTable, if non-empty, is loaded at construction time via
	// route.Table.LoadTable's "<dest>:<iface>" format.
	RouteTable string
}

func (c Config) logger() logrus.FieldLogger {
	if c.Logger == nil {
		return logrus.StandardLogger()
	}
	return c.Logger
}
