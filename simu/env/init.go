package envior

import (
	"fmt"
	"os"
	"runtime"

	log "github.com/sirupsen/logrus"
)

func init() {
	if runtime.NumCPU() < 2 {
		fmt.Printf("warning: only one CPU, which may conceal locking bugs\n")
	}
	runtime.GOMAXPROCS(4)

	// Protocol chatter drowns test output; raise with ACCORD_LOG=debug.
	level := log.WarnLevel
	if env := os.Getenv("ACCORD_LOG"); env != "" {
		if parsed, err := log.ParseLevel(env); err == nil {
			level = parsed
		}
	}
	log.SetLevel(level)
}
