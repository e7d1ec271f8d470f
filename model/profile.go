package model

import (
	"time"

	"github.com/GaoLiaoLiao/delern/logging"
)

// profile logs how long the named operation took, at debug level. Call the
// returned function when the operation finishes.
func profile(name string) func() {
	start := time.Now()
	return func() {
		logging.L.Debug("finished", "op", name, "elapsed", time.Since(start))
	}
}
