package configs

import (
	_ "embed"
	"os"
	"path/filepath"

	"github.com/reusee/dscope"
	"github.com/reusee/tainb/logs"
	"github.com/reusee/tainb/modes"
)

type Module struct {
	dscope.Module
	Logs logs.Module
}

//go:embed schema.cue
var schema string

var filenames = []string{
	"tainb.cue",
	".tainb.cue",
}

func (Module) Loader(
	logger logs.Logger,
	mode modes.Mode,
) Loader {

	var paths []string
	defer func() {
		if len(paths) > 0 {
			logger.Info("config file",
				"paths", paths,
			)
		}
	}()

	if mode == modes.ModeDevelopment {
		// tests do not read host config files
		return NewLoader(nil, schema)
	}

	// working directory
	workingDir, err := os.Getwd()
	if err == nil {
		paths = append(paths, existingFiles(workingDir)...)
	}

	// user config dir
	configDir, err := os.UserConfigDir()
	if err == nil {
		paths = append(paths, existingFiles(configDir)...)
	}

	// system wide dir
	paths = append(paths, existingFiles("/etc")...)

	return NewLoader(paths, schema)
}

func existingFiles(dir string) (ret []string) {
	for _, filename := range filenames {
		path := filepath.Join(dir, filename)
		if _, err := os.Stat(path); err == nil {
			ret = append(ret, path)
		}
	}
	return
}
