package watchers

import (
	"time"

	"github.com/reusee/dscope"
	"github.com/reusee/tainb/cmds"
	"github.com/reusee/tainb/configs"
	"github.com/reusee/tainb/logs"
	"github.com/reusee/tainb/vars"
)

type Module struct {
	dscope.Module
	Configs configs.Module
	Logs    logs.Module
}

type PollInterval time.Duration

var pollIntervalFlag = cmds.Var[string]("-poll-interval")

func (Module) PollInterval(
	loader configs.Loader,
	logger logs.Logger,
) PollInterval {
	value := vars.FirstNonZero(
		*pollIntervalFlag,
		configs.First[string](loader, "poll_interval"),
	)
	if value == "" {
		return PollInterval(DefaultInterval)
	}
	interval, err := time.ParseDuration(value)
	if err != nil || interval <= 0 {
		logger.Warn("bad poll interval",
			"value", value,
			"error", err,
		)
		return PollInterval(DefaultInterval)
	}
	return PollInterval(interval)
}

type NewWatcher func(path string) *FileWatcher

func (Module) NewWatcher(
	interval PollInterval,
	logger logs.Logger,
) NewWatcher {
	return func(path string) *FileWatcher {
		return New(path, time.Duration(interval), logger)
	}
}
