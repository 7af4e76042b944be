package cmd

import (
	"tally/internal/agent"
	"tally/internal/tui"
)

func runTUI() error {
	logger := newLogger()

	return tui.Run(tui.Config{
		DBPath:    flagDB,
		IndexPath: flagIndex,
		BuildAgent: func(onProgress agent.ProgressFunc) (*agent.Agent, func(), error) {
			return buildAgent(logger, onProgress)
		},
	})
}
