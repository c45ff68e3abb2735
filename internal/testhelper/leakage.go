package testhelper

import (
	"fmt"

	"go.uber.org/goleak"
)

// findLeakedGoroutines returns an error describing every goroutine that is still running after
// the test suite has finished.
func findLeakedGoroutines() error {
	if err := goleak.Find(); err != nil {
		return fmt.Errorf("goroutines leaked: %w", err)
	}

	return nil
}
