package testhelper

import (
	"fmt"
	"os"
	"testing"

	"gitlab.com/gitlab-org/textshard/internal/log"
)

// Run sets up required testing state, executes the given test suite and fails it if goroutines
// are still running once all tests passed.
func Run(m *testing.M) {
	// Run tests in a separate function such that we can use deferred statements and still
	// (indirectly) call `os.Exit()` in case the test setup failed.
	code, err := func() (int, error) {
		configure()

		code := m.Run()

		if code == 0 {
			if err := findLeakedGoroutines(); err != nil {
				return 1, err
			}
		}

		return code, nil
	}()
	if err != nil {
		fmt.Printf("%s\n", err)
	}

	os.Exit(code)
}

// configure sets up the global test configuration.
func configure() {
	log.Configure(log.Loggers, "json", "panic")
}
