// Package guard puts test binaries into test mode when imported. Binaries
// then skip their runtime startup and the store defaults to memory so no test
// reaches for PostgreSQL by accident.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		setDefault("TEXTILE_TEST_MODE", "1")
		setDefault("STORAGE_DRIVER", "memory")
	})
}

func setDefault(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value)
	}
}
