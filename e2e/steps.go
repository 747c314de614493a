package e2e

import (
	"github.com/cucumber/godog"

	"credreg/e2e/steps/common"
	"credreg/e2e/steps/registry"
)

// RegisterSteps registers all step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	registry.RegisterSteps(ctx, tc)
}
