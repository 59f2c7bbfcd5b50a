package kernels

import (
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

type MaxHistory int

var maxHistoryFlag = cmds.Var[int]("-max-history")

func (Module) MaxHistory(
	loader configs.Loader,
) MaxHistory {
	return MaxHistory(vars.FirstNonZero(
		*maxHistoryFlag,
		configs.First[int](loader, "max_history"),
		DefaultMaxHistory,
	))
}

// Startup holds fragments executed in every new kernel, from all config files in order.
type Startup []string

func (Module) Startup(
	loader configs.Loader,
) (ret Startup) {
	for fragments := range configs.All[[]string](loader, "startup") {
		ret = append(ret, fragments...)
	}
	return
}

type NewKernel func() *Kernel

func (Module) NewKernel(
	logger logs.Logger,
	maxHistory MaxHistory,
	startup Startup,
) NewKernel {
	return func() *Kernel {
		k := New(logger, int(maxHistory))
		for _, fragment := range startup {
			record := k.Execute(fragment)
			if !record.Success {
				logger.Warn("startup fragment failed",
					"fragment", fragment,
					"error", record.Error,
				)
			}
		}
		if len(startup) > 0 {
			// startup runs are not part of the session
			k.RestoreState(0, nil)
		}
		return k
	}
}
