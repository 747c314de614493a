package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cucumber/godog"
)

const day = 24 * time.Hour

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POSTAs(actor, path string, body any) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseBody() []byte
	GetLastResponseStatus() int
	Now() time.Time
	AdvanceClock(d time.Duration)
	Save(key string, value any)
	Recall(key string) (any, bool)
}

// RegisterSteps registers credential and accreditation step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrySteps{tc: tc}

	ctx.Step(`^the registry is running$`, steps.registryIsRunning)
	ctx.Step(`^(\d+) days? pass(?:es)?$`, steps.daysPass)

	// Accreditation steps
	ctx.Step(`^"([^"]*)" accredits institution "([^"]*)" for (\d+) days$`, steps.accredit)
	ctx.Step(`^"([^"]*)" accredits institution "([^"]*)" for (\d+) days with track A "([^"]*)" and track B "([^"]*)"$`, steps.accreditWithAttestors)
	ctx.Step(`^"([^"]*)" revokes the accreditation of "([^"]*)" because "([^"]*)"$`, steps.revokeAccreditation)
	ctx.Step(`^"([^"]*)" endorses the accreditation of "([^"]*)" on track "([^"]*)"$`, steps.endorseAccreditation)
	ctx.Step(`^institution "([^"]*)" should be accredited$`, steps.institutionShouldBeAccredited)
	ctx.Step(`^institution "([^"]*)" should not be accredited$`, steps.institutionShouldNotBeAccredited)

	// Credential steps
	ctx.Step(`^"([^"]*)" issues "([^"]*)" credential "([^"]*)" to "([^"]*)" for institution "([^"]*)"$`, steps.issue)
	ctx.Step(`^"([^"]*)" issues "([^"]*)" credential "([^"]*)" to "([^"]*)" for institution "([^"]*)" expiring in (\d+) days$`, steps.issueExpiring)
	ctx.Step(`^"([^"]*)" (approves|rejects) credential "([^"]*)" on track "([^"]*)"$`, steps.attest)
	ctx.Step(`^"([^"]*)" revokes credential "([^"]*)" because "([^"]*)"$`, steps.revokeCredential)
	ctx.Step(`^credential "([^"]*)" should verify as (valid|invalid)$`, steps.credentialShouldVerify)
	ctx.Step(`^credential "([^"]*)" should have validation state "([^"]*)"$`, steps.credentialShouldHaveState)
	ctx.Step(`^credential "([^"]*)" should have status "([^"]*)"$`, steps.credentialShouldHaveStatus)
	ctx.Step(`^credential "([^"]*)" should have subject "([^"]*)"$`, steps.credentialShouldHaveSubject)
	ctx.Step(`^batch verification of "([^"]*)" should return "([^"]*)"$`, steps.batchVerify)
	ctx.Step(`^subject "([^"]*)" should hold (\d+) credentials?$`, steps.subjectShouldHold)

	// Ledger steps
	ctx.Step(`^I note the ledger height$`, steps.noteLedgerHeight)
	ctx.Step(`^the ledger height should be unchanged$`, steps.ledgerHeightUnchanged)
	ctx.Step(`^the event log should list "([^"]*)"$`, steps.eventLogShouldList)
}

type registrySteps struct {
	tc TestContext
}

func (s *registrySteps) registryIsRunning(ctx context.Context) error {
	return s.tc.GET("/health/live", nil)
}

func (s *registrySteps) daysPass(ctx context.Context, days int) error {
	s.tc.AdvanceClock(time.Duration(days) * day)
	return nil
}

func (s *registrySteps) expiresIn(days int) string {
	return s.tc.Now().Add(time.Duration(days) * day).Format(time.RFC3339)
}

func (s *registrySteps) accredit(ctx context.Context, actor, inst string, days int) error {
	return s.accreditWithAttestors(ctx, actor, inst, days, "", "")
}

func (s *registrySteps) accreditWithAttestors(ctx context.Context, actor, inst string, days int, trackA, trackB string) error {
	return s.tc.POSTAs(actor, "/registry/accreditations", map[string]any{
		"institution_id":        inst,
		"expires_at":            s.expiresIn(days),
		"certificate_reference": "CERT-" + inst,
		"track_a_attestors":     splitList(trackA),
		"track_b_attestors":     splitList(trackB),
	})
}

func (s *registrySteps) revokeAccreditation(ctx context.Context, actor, inst, reason string) error {
	return s.tc.POSTAs(actor, "/registry/accreditations/"+inst+"/revoke", map[string]any{"reason": reason})
}

func (s *registrySteps) endorseAccreditation(ctx context.Context, actor, inst, track string) error {
	return s.tc.POSTAs(actor, "/registry/accreditations/"+inst+"/endorse", map[string]any{"track": track})
}

func (s *registrySteps) institutionShouldBeAccredited(ctx context.Context, inst string) error {
	return s.expectAccredited(inst, true)
}

func (s *registrySteps) institutionShouldNotBeAccredited(ctx context.Context, inst string) error {
	return s.expectAccredited(inst, false)
}

func (s *registrySteps) expectAccredited(inst string, want bool) error {
	var body struct {
		IsAccredited bool `json:"is_accredited"`
	}
	if err := s.getJSON("/registry/accreditations/"+inst, &body); err != nil {
		return err
	}
	if body.IsAccredited != want {
		return fmt.Errorf("institution %s: expected is_accredited=%t", inst, want)
	}
	return nil
}

func (s *registrySteps) issue(ctx context.Context, actor, class, cid, subject, inst string) error {
	return s.issueBody(actor, map[string]any{
		"credential_id":    cid,
		"subject_identity": subject,
		"institution_id":   inst,
		"credential_class": class,
		"content_hash":     "sha256:" + cid,
	})
}

func (s *registrySteps) issueExpiring(ctx context.Context, actor, class, cid, subject, inst string, days int) error {
	return s.issueBody(actor, map[string]any{
		"credential_id":    cid,
		"subject_identity": subject,
		"institution_id":   inst,
		"credential_class": class,
		"content_hash":     "sha256:" + cid,
		"expires_at":       s.expiresIn(days),
	})
}

func (s *registrySteps) issueBody(actor string, body map[string]any) error {
	return s.tc.POSTAs(actor, "/registry/credentials", body)
}

func (s *registrySteps) attest(ctx context.Context, actor, verdict, cid, track string) error {
	return s.tc.POSTAs(actor, "/registry/credentials/"+cid+"/attestations", map[string]any{
		"track":    track,
		"approved": verdict == "approves",
	})
}

func (s *registrySteps) revokeCredential(ctx context.Context, actor, cid, reason string) error {
	return s.tc.POSTAs(actor, "/registry/credentials/"+cid+"/revoke", map[string]any{"reason": reason})
}

type verification struct {
	IsValid         bool   `json:"is_valid"`
	Status          string `json:"status"`
	ValidationState string `json:"validation_state"`
	LedgerHeight    uint64 `json:"ledger_height"`
}

func (s *registrySteps) verify(cid string) (*verification, error) {
	var v verification
	if err := s.getJSON("/registry/credentials/"+cid+"/verify", &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *registrySteps) credentialShouldVerify(ctx context.Context, cid, want string) error {
	v, err := s.verify(cid)
	if err != nil {
		return err
	}
	if v.IsValid != (want == "valid") {
		return fmt.Errorf("credential %s: expected %s, got is_valid=%t (status %s, state %s)",
			cid, want, v.IsValid, v.Status, v.ValidationState)
	}
	return nil
}

func (s *registrySteps) credentialShouldHaveState(ctx context.Context, cid, state string) error {
	v, err := s.verify(cid)
	if err != nil {
		return err
	}
	if v.ValidationState != state {
		return fmt.Errorf("credential %s: expected validation state %s, got %s", cid, state, v.ValidationState)
	}
	return nil
}

func (s *registrySteps) credentialShouldHaveStatus(ctx context.Context, cid, status string) error {
	v, err := s.verify(cid)
	if err != nil {
		return err
	}
	if v.Status != status {
		return fmt.Errorf("credential %s: expected status %s, got %s", cid, status, v.Status)
	}
	return nil
}

func (s *registrySteps) credentialShouldHaveSubject(ctx context.Context, cid, subject string) error {
	var body struct {
		Subject string `json:"subject_identity"`
	}
	if err := s.getJSON("/registry/credentials/"+cid, &body); err != nil {
		return err
	}
	if body.Subject != subject {
		return fmt.Errorf("credential %s: expected subject %s, got %s", cid, subject, body.Subject)
	}
	return nil
}

func (s *registrySteps) batchVerify(ctx context.Context, ids, want string) error {
	if err := s.tc.POSTAs("", "/registry/credentials/verify", map[string]any{"credential_ids": splitList(ids)}); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("batch verify: status %d", status)
	}
	var body struct {
		Results []bool `json:"results"`
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return err
	}
	expected := splitList(want)
	got := make([]string, len(body.Results))
	for i, r := range body.Results {
		got[i] = strconv.FormatBool(r)
	}
	if strings.Join(got, ",") != strings.Join(expected, ",") {
		return fmt.Errorf("batch verify: expected %v, got %v", expected, got)
	}
	return nil
}

func (s *registrySteps) subjectShouldHold(ctx context.Context, subject string, n int) error {
	var body struct {
		Credentials []json.RawMessage `json:"credentials"`
	}
	if err := s.getJSON("/registry/subjects/"+subject+"/credentials", &body); err != nil {
		return err
	}
	if len(body.Credentials) != n {
		return fmt.Errorf("subject %s: expected %d credentials, got %d", subject, n, len(body.Credentials))
	}
	return nil
}

func (s *registrySteps) ledgerHeight() (uint64, error) {
	var body struct {
		LedgerHeight uint64 `json:"ledger_height"`
	}
	if err := s.tc.POSTAs("", "/registry/credentials/verify", map[string]any{"credential_ids": []string{}}); err != nil {
		return 0, err
	}
	if err := json.Unmarshal(s.tc.GetLastResponseBody(), &body); err != nil {
		return 0, err
	}
	return body.LedgerHeight, nil
}

func (s *registrySteps) noteLedgerHeight(ctx context.Context) error {
	h, err := s.ledgerHeight()
	if err != nil {
		return err
	}
	s.tc.Save("ledger_height", h)
	return nil
}

func (s *registrySteps) ledgerHeightUnchanged(ctx context.Context) error {
	noted, ok := s.tc.Recall("ledger_height")
	if !ok {
		return fmt.Errorf("no ledger height noted")
	}
	h, err := s.ledgerHeight()
	if err != nil {
		return err
	}
	if h != noted.(uint64) {
		return fmt.Errorf("ledger height moved from %d to %d", noted, h)
	}
	return nil
}

func (s *registrySteps) eventLogShouldList(ctx context.Context, types string) error {
	var body struct {
		Events []struct {
			Type string `json:"type"`
		} `json:"events"`
	}
	if err := s.getJSON("/registry/events", &body); err != nil {
		return err
	}
	got := make([]string, len(body.Events))
	for i, ev := range body.Events {
		got[i] = ev.Type
	}
	if strings.Join(got, ",") != strings.Join(splitList(types), ",") {
		return fmt.Errorf("event log: expected %s, got %v", types, got)
	}
	return nil
}

func (s *registrySteps) getJSON(path string, out any) error {
	if err := s.tc.GET(path, nil); err != nil {
		return err
	}
	if status := s.tc.GetLastResponseStatus(); status != 200 {
		return fmt.Errorf("GET %s: status %d: %s", path, status, s.tc.GetLastResponseBody())
	}
	return json.Unmarshal(s.tc.GetLastResponseBody(), out)
}

func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
