package common

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	POSTAs(actor, path string, body any) error
	GetResponseField(field string) (any, error)
	ResponseContains(text string) bool
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers common step definitions used across features
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^I POST to "([^"]*)" with empty body$`, steps.postWithEmptyBody)

	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response should contain "([^"]*)"$`, steps.responseShouldContain)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, steps.responseFieldShouldEqual)
	ctx.Step(`^the request should fail with "([^"]*)"$`, steps.requestShouldFailWith)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) postWithEmptyBody(ctx context.Context, path string) error {
	return s.tc.POSTAs("", path, map[string]any{})
}

func (s *commonSteps) responseStatusShouldBe(ctx context.Context, expectedStatus int) error {
	actualStatus := s.tc.GetLastResponseStatus()
	if actualStatus != expectedStatus {
		return fmt.Errorf("expected status %d but got %d", expectedStatus, actualStatus)
	}
	return nil
}

func (s *commonSteps) responseShouldContain(ctx context.Context, text string) error {
	if !s.tc.ResponseContains(text) {
		return fmt.Errorf("response does not contain %q\nResponse: %s", text, string(s.tc.GetLastResponseBody()))
	}
	return nil
}

func (s *commonSteps) responseFieldShouldEqual(ctx context.Context, field, expectedValue string) error {
	actualValue, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(actualValue) != expectedValue {
		return fmt.Errorf("field %s: expected %s but got %v", field, expectedValue, actualValue)
	}
	return nil
}

// requestShouldFailWith matches the error code in the JSON error envelope.
func (s *commonSteps) requestShouldFailWith(ctx context.Context, code string) error {
	if status := s.tc.GetLastResponseStatus(); status < 400 {
		return fmt.Errorf("expected an error response but got %d", status)
	}
	return s.responseFieldShouldEqual(ctx, "error", code)
}
