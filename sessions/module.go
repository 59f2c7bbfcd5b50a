package sessions

import (
	"os"
	"path/filepath"

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

type Dir string

var dirFlag = cmds.Var[string]("-snapshot-dir")

func (Module) Dir(
	loader configs.Loader,
) Dir {
	if dir := vars.FirstNonZero(
		*dirFlag,
		configs.First[string](loader, "snapshot_dir"),
	); dir != "" {
		return Dir(dir)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return Dir(filepath.Join(os.TempDir(), "tainb", "sessions"))
	}
	return Dir(filepath.Join(home, ".tainb", "sessions"))
}

func (Module) Serializer() Serializer {
	return Codec{}
}

func (Module) Store(
	dir Dir,
	serializer Serializer,
	logger logs.Logger,
) *Store {
	return New(string(dir), serializer, logger)
}
