package log

import (
	"fmt"

	"github.com/elementsproject/glightning/glightning"
)

// GlightningLogger forwards log lines to core-lightning's log.
type GlightningLogger struct {
	plugin *glightning.Plugin
}

func NewGlightninglogger(plugin *glightning.Plugin) *GlightningLogger {
	return &GlightningLogger{plugin: plugin}
}

func (g *GlightningLogger) Infof(format string, v ...interface{}) {
	g.plugin.Log(fmt.Sprintf(format, v...), glightning.Info)
}

func (g *GlightningLogger) Debugf(format string, v ...interface{}) {
	g.plugin.Log(fmt.Sprintf(format, v...), glightning.Debug)
}

func (g *GlightningLogger) Warnf(format string, v ...interface{}) {
	g.plugin.Log(fmt.Sprintf(format, v...), glightning.Unusual)
}
