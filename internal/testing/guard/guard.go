package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("LEDGERLINK_TEST_MODE") == "" {
			_ = os.Setenv("LEDGERLINK_TEST_MODE", "1")
		}
	})
}
