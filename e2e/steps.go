package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// RegisterSteps registers gateway-wide and verification step definitions.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	ctx.Step(`^the gateway is running$`, tc.gatewayIsRunning)
	ctx.Step(`^the trust list has been refreshed$`, tc.trustListRefreshed)

	ctx.Step(`^a wallet presents proof "([^"]*)" with nonce "([^"]*)"$`, tc.presentProof)
	ctx.Step(`^a wallet presents an envelope without a vp_token$`, tc.presentWithoutToken)
	ctx.Step(`^I POST "([^"]*)" as the verify response$`, tc.postRawResponse)
	ctx.Step(`^I save the verification session$`, tc.saveVerificationSession)

	ctx.Step(`^the response status should be (\d+)$`, tc.responseStatusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal "([^"]*)"$`, tc.responseFieldShouldEqual)
	ctx.Step(`^the predicate "([^"]*)" should be (true|false)$`, tc.predicateShouldBe)
	ctx.Step(`^the predicates should not contain "([^"]*)"$`, tc.predicatesShouldNotContain)
	ctx.Step(`^the response should not contain "([^"]*)"$`, tc.responseShouldNotContain)
}

func (tc *TestContext) gatewayIsRunning(context.Context) error {
	if err := tc.GET("/health/live", nil); err != nil {
		return err
	}
	return tc.responseStatusShouldBe(context.Background(), 200)
}

func (tc *TestContext) trustListRefreshed(ctx context.Context) error {
	if err := tc.POST("/trust/refresh", map[string]any{}); err != nil {
		return err
	}
	return tc.responseStatusShouldBe(ctx, 200)
}

func (tc *TestContext) presentProof(_ context.Context, proof, nonce string) error {
	sealed, err := tc.Seal(map[string]any{"vp_token": proof, "nonce": nonce})
	if err != nil {
		return err
	}
	return tc.POST("/verify", map[string]any{"response": sealed})
}

func (tc *TestContext) presentWithoutToken(context.Context) error {
	sealed, err := tc.Seal(map[string]any{"nonce": "n-1"})
	if err != nil {
		return err
	}
	return tc.POST("/verify", map[string]any{"response": sealed})
}

func (tc *TestContext) postRawResponse(_ context.Context, response string) error {
	return tc.POST("/verify", map[string]any{"response": response})
}

func (tc *TestContext) saveVerificationSession(context.Context) error {
	v, err := tc.GetResponseField("sessionId")
	if err != nil {
		return err
	}
	id, ok := v.(string)
	if !ok || id == "" {
		return fmt.Errorf("sessionId is not a string: %v", v)
	}
	tc.VerificationSessionID = id
	return nil
}

func (tc *TestContext) responseStatusShouldBe(_ context.Context, expected int) error {
	if tc.LastResponse == nil {
		return fmt.Errorf("no response recorded")
	}
	if tc.LastResponse.StatusCode != expected {
		return fmt.Errorf("expected status %d but got %d: %s", expected, tc.LastResponse.StatusCode, tc.LastResponseBody)
	}
	return nil
}

func (tc *TestContext) responseFieldShouldEqual(_ context.Context, field, expected string) error {
	actual, err := tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if fmt.Sprint(actual) != expected {
		return fmt.Errorf("field %s: expected %s but got %v", field, expected, actual)
	}
	return nil
}

func (tc *TestContext) predicates() (map[string]any, error) {
	var body struct {
		Predicates map[string]any `json:"predicates"`
	}
	if err := json.Unmarshal(tc.LastResponseBody, &body); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return body.Predicates, nil
}

func (tc *TestContext) predicateShouldBe(_ context.Context, name, expected string) error {
	preds, err := tc.predicates()
	if err != nil {
		return err
	}
	if got := fmt.Sprint(preds[name]); got != expected {
		return fmt.Errorf("predicate %s: expected %s but got %s", name, expected, got)
	}
	return nil
}

func (tc *TestContext) predicatesShouldNotContain(_ context.Context, name string) error {
	preds, err := tc.predicates()
	if err != nil {
		return err
	}
	if _, ok := preds[name]; ok {
		return fmt.Errorf("predicate %s should have been dropped", name)
	}
	return nil
}

func (tc *TestContext) responseShouldNotContain(_ context.Context, text string) error {
	if strings.Contains(string(tc.LastResponseBody), text) {
		return fmt.Errorf("response unexpectedly contains %q: %s", text, tc.LastResponseBody)
	}
	return nil
}
