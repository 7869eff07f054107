package runtime

import (
	"os"
	goruntime "runtime"

	"github.com/primlo/nibbana/pkg/entry"
)

// hostContext describes the machine sending a batch.
func hostContext() entry.Properties {
	p := entry.Properties{
		"os":        goruntime.GOOS,
		"arch":      goruntime.GOARCH,
		"goVersion": goruntime.Version(),
		"pid":       os.Getpid(),
	}
	if h, err := os.Hostname(); err == nil {
		p["hostname"] = h
	}
	return p
}
