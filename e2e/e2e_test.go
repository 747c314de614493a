package e2e

import (
	"context"
	"flag"
	"fmt"
	"os"
	"testing"

	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

var opts = godog.Options{
	Output: colors.Colored(os.Stdout),
	Format: "pretty",
	Paths:  []string{"features"},
	Strict: true,
}

func init() {
	godog.BindCommandLineFlags("godog.", &opts)
}

func TestFeatures(t *testing.T) {
	flag.Parse()
	opts.TestingT = t

	suite := godog.TestSuite{
		ScenarioInitializer: InitializeScenario,
		Options:             &opts,
	}

	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}

// InitializeScenario gives every scenario a fresh registry, so ledger
// heights and credential ids never leak between scenarios.
func InitializeScenario(sc *godog.ScenarioContext) {
	tc := &TestContext{}

	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		fresh, err := NewTestContext()
		if err != nil {
			return ctx, err
		}
		*tc = *fresh
		return ctx, nil
	})

	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		if err != nil {
			fmt.Printf("Scenario failed: %s\nLast Response: %s\n", s.Name, string(tc.LastResponseBody))
		}
		if tc.App != nil {
			if closeErr := tc.Close(); closeErr != nil {
				return ctx, closeErr
			}
		}
		return ctx, nil
	})

	RegisterSteps(sc, tc)
}
