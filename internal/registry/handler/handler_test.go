package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler_mock.go -package=mocks CredentialService,AccreditationService,EventLog

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"credreg/internal/registry/accreditation"
	"credreg/internal/registry/consensus"
	"credreg/internal/registry/credential"
	"credreg/internal/registry/handler/mocks"
	"credreg/internal/registry/models"
	id "credreg/pkg/domain"
	dErrors "credreg/pkg/domain-errors"
	"credreg/pkg/platform/httputil"
	"credreg/pkg/requestcontext"
)

var (
	issuedAt  = time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	registrar = id.Caller{Identity: "uni1-registrar", Role: id.RoleInstitution, InstitutionID: "I1"}
	validator = id.Caller{Identity: "validator-a", Role: id.RoleTrackA}
	ministry  = id.Caller{Identity: "ministry", Role: id.RoleAuthority}
)

type HandlerSuite struct {
	suite.Suite
	ctrl           *gomock.Controller
	credentials    *mocks.MockCredentialService
	accreditations *mocks.MockAccreditationService
	events         *mocks.MockEventLog
	router         http.Handler
	caller         id.Caller
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.credentials = mocks.NewMockCredentialService(s.ctrl)
	s.accreditations = mocks.NewMockAccreditationService(s.ctrl)
	s.events = mocks.NewMockEventLog(s.ctrl)
	s.caller = registrar

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.credentials, s.accreditations, s.events, logger)
	r := chi.NewRouter()
	h.Register(r, s.fakeAuth)
	s.router = r
}

func (s *HandlerSuite) TearDownTest() {
	s.ctrl.Finish()
}

// fakeAuth stands in for the JWT middleware: it injects s.caller, or answers
// 401 when the suite has no caller set.
func (s *HandlerSuite) fakeAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.caller.IsZero() {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(requestcontext.WithCaller(r.Context(), s.caller)))
	})
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) decode(rec *httptest.ResponseRecorder, into any) {
	s.Require().NoError(json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(into))
}

func (s *HandlerSuite) errorCode(rec *httptest.ResponseRecorder) string {
	var body httputil.ErrorResponse
	s.decode(rec, &body)
	return body.Error
}

func pendingCredential() *models.Credential {
	return &models.Credential{
		ID:              "C1",
		Subject:         "alice",
		InstitutionID:   "I1",
		Class:           models.ClassAdvancedDegree,
		Status:          models.StatusActive,
		ContentHash:     "sha256:abc",
		IssuedAt:        issuedAt,
		ValidationState: consensus.StatePending,
		IssuedBy:        "uni1-registrar",
	}
}

const issueBody = `{"credential_id":"C1","subject_identity":" alice ","institution_id":"I1",
	"credential_class":"AdvancedDegree","content_hash":"sha256:abc","expires_at":"2030-01-01T00:00:00Z"}`

func (s *HandlerSuite) TestIssueCredential() {
	s.Run("forwards the parsed request with the caller", func() {
		expires := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
		s.credentials.EXPECT().Issue(gomock.Any(), registrar, credential.IssueRequest{
			CredentialID:  "C1",
			Subject:       "alice",
			InstitutionID: "I1",
			Class:         models.ClassAdvancedDegree,
			ContentHash:   "sha256:abc",
			ExpiresAt:     &expires,
		}).Return(pendingCredential(), nil)

		rec := s.do(http.MethodPost, "/registry/credentials", issueBody)

		s.Equal(http.StatusCreated, rec.Code)
		var got CredentialResponse
		s.decode(rec, &got)
		s.Equal("C1", got.CredentialID)
		s.Equal("Pending", got.ValidationState)
		s.Equal("Active", got.Status)
		s.Empty(got.Votes)
	})

	s.Run("maps registry rejections", func() {
		for _, tc := range []struct {
			code   dErrors.Code
			status int
		}{
			{dErrors.CodeNotAccredited, http.StatusPreconditionFailed},
			{dErrors.CodeAlreadyExists, http.StatusConflict},
			{dErrors.CodeUnauthorized, http.StatusForbidden},
			{dErrors.CodeInvalidExpiry, http.StatusBadRequest},
			{dErrors.CodeTimeout, http.StatusGatewayTimeout},
		} {
			s.credentials.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).
				Return(nil, dErrors.New(tc.code, "rejected"))

			rec := s.do(http.MethodPost, "/registry/credentials", issueBody)
			s.Equal(tc.status, rec.Code, tc.code)
		}
	})

	s.Run("internal errors do not leak", func() {
		s.credentials.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, errors.New("pq: connection reset"))

		rec := s.do(http.MethodPost, "/registry/credentials", issueBody)
		s.Equal(http.StatusInternalServerError, rec.Code)
		s.NotContains(rec.Body.String(), "connection reset")
	})
}

func (s *HandlerSuite) TestIssueCredentialRejectsBadInput() {
	s.credentials.EXPECT().Issue(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	cases := []struct {
		name string
		body string
		code string
	}{
		{"not json", "not json", "bad_request"},
		{"unknown field", `{"credential_id":"C1","extra":true}`, "bad_request"},
		{"missing class", `{"credential_id":"C1","subject_identity":"a","institution_id":"I1","content_hash":"h"}`, "validation_error"},
		{"unknown class", `{"credential_id":"C1","subject_identity":"a","institution_id":"I1","credential_class":"PhD","content_hash":"h"}`, "validation_error"},
		{"blank id", `{"credential_id":"  ","subject_identity":"a","institution_id":"I1","credential_class":"AdvancedDegree","content_hash":"h"}`, "validation_error"},
		{"bad expiry", `{"credential_id":"C1","subject_identity":"a","institution_id":"I1","credential_class":"AdvancedDegree","content_hash":"h","expires_at":"tomorrow"}`, "validation_error"},
	}
	for _, tc := range cases {
		s.Run(tc.name, func() {
			rec := s.do(http.MethodPost, "/registry/credentials", tc.body)
			s.Equal(http.StatusBadRequest, rec.Code)
			s.Equal(tc.code, s.errorCode(rec))
		})
	}
}

func (s *HandlerSuite) TestMutationsRequireCaller() {
	s.caller = id.Caller{}
	for _, path := range []string{
		"/registry/credentials",
		"/registry/credentials/C1/attestations",
		"/registry/credentials/C1/revoke",
		"/registry/accreditations",
		"/registry/accreditations/I1/revoke",
		"/registry/accreditations/I1/endorse",
	} {
		rec := s.do(http.MethodPost, path, `{}`)
		s.Equal(http.StatusUnauthorized, rec.Code, path)
	}
}

func (s *HandlerSuite) TestAttest() {
	s.caller = validator

	s.Run("records the vote", func() {
		cred := pendingCredential()
		who := validator.Identity
		cred.ValidationState = consensus.StateTrackAApproved
		cred.TrackAAttestor = &who
		cred.Votes = []models.Vote{{Track: consensus.TrackA, Attestor: who, Approved: true, CastAt: issuedAt}}
		s.credentials.EXPECT().Attest(gomock.Any(), validator, id.CredentialID("C1"), consensus.TrackA, true).Return(cred, nil)

		rec := s.do(http.MethodPost, "/registry/credentials/C1/attestations", `{"track":"A","approved":true}`)

		s.Equal(http.StatusOK, rec.Code)
		var got CredentialResponse
		s.decode(rec, &got)
		s.Equal("TrackAApproved", got.ValidationState)
		s.Equal("validator-a", got.TrackAAttestor)
		s.Len(got.Votes, 1)
	})

	s.Run("a rejection is an explicit false", func() {
		s.credentials.EXPECT().Attest(gomock.Any(), validator, id.CredentialID("C1"), consensus.TrackA, false).Return(pendingCredential(), nil)
		rec := s.do(http.MethodPost, "/registry/credentials/C1/attestations", `{"track":"A","approved":false}`)
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("approved is required", func() {
		rec := s.do(http.MethodPost, "/registry/credentials/C1/attestations", `{"track":"A"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("track must be A or B", func() {
		rec := s.do(http.MethodPost, "/registry/credentials/C1/attestations", `{"track":"C","approved":true}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("duplicate vote conflicts", func() {
		s.credentials.EXPECT().Attest(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeDuplicateAttestation, "attestor already voted"))
		rec := s.do(http.MethodPost, "/registry/credentials/C1/attestations", `{"track":"A","approved":true}`)
		s.Equal(http.StatusConflict, rec.Code)
		s.Equal("duplicate_attestation", s.errorCode(rec))
	})
}

func (s *HandlerSuite) TestRevokeCredential() {
	s.Run("reason is required", func() {
		rec := s.do(http.MethodPost, "/registry/credentials/C1/revoke", `{"reason":" "}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("revokes", func() {
		cred := pendingCredential()
		cred.Status = models.StatusRevoked
		cred.RevocationReason = "issued in error"
		s.credentials.EXPECT().Revoke(gomock.Any(), registrar, id.CredentialID("C1"), "issued in error").Return(cred, nil)

		rec := s.do(http.MethodPost, "/registry/credentials/C1/revoke", `{"reason":"issued in error"}`)
		s.Equal(http.StatusOK, rec.Code)
		var got CredentialResponse
		s.decode(rec, &got)
		s.Equal("Revoked", got.Status)
	})

	s.Run("already revoked", func() {
		s.credentials.EXPECT().Revoke(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeAlreadyRevoked, "credential is already revoked"))
		rec := s.do(http.MethodPost, "/registry/credentials/C1/revoke", `{"reason":"again"}`)
		s.Equal(http.StatusConflict, rec.Code)
	})
}

func (s *HandlerSuite) TestVerifyIsPublic() {
	s.caller = id.Caller{}

	s.Run("valid credential", func() {
		s.credentials.EXPECT().Verify(gomock.Any(), id.CredentialID("C1")).Return(&credential.Verification{
			CredentialID:    "C1",
			IsValid:         true,
			Class:           models.ClassAdvancedDegree,
			Status:          models.StatusActive,
			ValidationState: consensus.StateFullyValidated,
			IssuedAt:        issuedAt,
			InstitutionID:   "I1",
			Height:          7,
		}, nil)

		rec := s.do(http.MethodGet, "/registry/credentials/C1/verify", "")
		s.Equal(http.StatusOK, rec.Code)
		var got VerificationResponse
		s.decode(rec, &got)
		s.True(got.IsValid)
		s.Equal(uint64(7), got.LedgerHeight)
		s.Equal("FullyValidated", got.ValidationState)
	})

	s.Run("unknown credential is 404", func() {
		s.credentials.EXPECT().Verify(gomock.Any(), id.CredentialID("nope")).
			Return(nil, dErrors.New(dErrors.CodeNotFound, "credential not found"))
		rec := s.do(http.MethodGet, "/registry/credentials/nope/verify", "")
		s.Equal(http.StatusNotFound, rec.Code)
	})
}

func (s *HandlerSuite) TestBatchVerify() {
	s.caller = id.Caller{}
	s.credentials.EXPECT().BatchVerify(gomock.Any(), []id.CredentialID{"C2", "C1", "C2"}).
		Return(&credential.BatchVerification{Results: []bool{false, true, false}, Height: 3}, nil)

	rec := s.do(http.MethodPost, "/registry/credentials/verify", `{"credential_ids":["C2","C1","C2"]}`)

	s.Equal(http.StatusOK, rec.Code)
	var got BatchVerifyResponse
	s.decode(rec, &got)
	s.Equal([]bool{false, true, false}, got.Results)
	s.Equal(uint64(3), got.LedgerHeight)

	s.Run("too many ids", func() {
		s.credentials.EXPECT().BatchVerify(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeValidation, "too many credential ids in one batch"))
		rec := s.do(http.MethodPost, "/registry/credentials/verify", `{"credential_ids":["a","b"]}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestListCredentialsBySubject() {
	s.credentials.EXPECT().ListBySubject(gomock.Any(), id.Identity("alice")).
		Return([]*models.Credential{pendingCredential()}, nil)

	rec := s.do(http.MethodGet, "/registry/subjects/alice/credentials", "")
	s.Equal(http.StatusOK, rec.Code)
	var got CredentialListResponse
	s.decode(rec, &got)
	s.Len(got.Credentials, 1)

	s.credentials.EXPECT().ListBySubject(gomock.Any(), id.Identity("bob")).Return(nil, nil)
	rec = s.do(http.MethodGet, "/registry/subjects/bob/credentials", "")
	s.JSONEq(`{"credentials":[]}`, rec.Body.String())
}

func accreditationRecord() *models.AccreditationRecord {
	expires := issuedAt.AddDate(0, 0, 10)
	return &models.AccreditationRecord{
		InstitutionID:        "I1",
		IsAccredited:         true,
		AccreditedAt:         issuedAt,
		ExpiresAt:            &expires,
		CertificateReference: "CERT-1",
		ValidationState:      consensus.StateFullyValidated,
		TrackAAttestors:      []id.Identity{"validator-a"},
		GrantedBy:            "ministry",
	}
}

func (s *HandlerSuite) TestGrantAccreditation() {
	s.caller = ministry

	s.Run("grants", func() {
		s.accreditations.EXPECT().Grant(gomock.Any(), ministry, accreditation.GrantRequest{
			InstitutionID:        "I1",
			ExpiresAt:            issuedAt.AddDate(0, 0, 10),
			CertificateReference: "CERT-1",
			TrackAAttestors:      []id.Identity{"validator-a"},
			TrackBAttestors:      []id.Identity{},
		}).Return(accreditationRecord(), nil)

		rec := s.do(http.MethodPost, "/registry/accreditations",
			`{"institution_id":"I1","expires_at":"2026-05-11T10:00:00Z","certificate_reference":"CERT-1","track_a_attestors":[" validator-a "],"track_b_attestors":[]}`)

		s.Equal(http.StatusCreated, rec.Code)
		var got AccreditationResponse
		s.decode(rec, &got)
		s.True(got.IsAccredited)
		s.Equal([]string{"validator-a"}, got.TrackAAttestors)
	})

	s.Run("expiry is required", func() {
		rec := s.do(http.MethodPost, "/registry/accreditations", `{"institution_id":"I1","certificate_reference":"CERT-1"}`)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("already accredited", func() {
		s.accreditations.EXPECT().Grant(gomock.Any(), gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeAlreadyExists, "institution already holds an active accreditation"))
		rec := s.do(http.MethodPost, "/registry/accreditations",
			`{"institution_id":"I1","expires_at":"2026-05-11T10:00:00Z","certificate_reference":"CERT-1"}`)
		s.Equal(http.StatusConflict, rec.Code)
	})
}

func (s *HandlerSuite) TestRevokeAndEndorseAccreditation() {
	s.caller = ministry
	revoked := accreditationRecord()
	revoked.IsAccredited = false
	s.accreditations.EXPECT().Revoke(gomock.Any(), ministry, id.InstitutionID("I1"), "lost charter").Return(revoked, nil)

	rec := s.do(http.MethodPost, "/registry/accreditations/I1/revoke", `{"reason":"lost charter"}`)
	s.Equal(http.StatusOK, rec.Code)

	s.caller = validator
	s.accreditations.EXPECT().Endorse(gomock.Any(), validator, id.InstitutionID("I1"), consensus.TrackB).
		Return(nil, dErrors.New(dErrors.CodeUnauthorized, "caller does not hold the track B role"))
	rec = s.do(http.MethodPost, "/registry/accreditations/I1/endorse", `{"track":"B"}`)
	s.Equal(http.StatusForbidden, rec.Code)
}

func (s *HandlerSuite) TestGetAccreditation() {
	s.accreditations.EXPECT().Get(gomock.Any(), id.InstitutionID("I9")).
		Return(nil, dErrors.New(dErrors.CodeNotFound, "accreditation not found"))
	rec := s.do(http.MethodGet, "/registry/accreditations/I9", "")
	s.Equal(http.StatusNotFound, rec.Code)
}

func (s *HandlerSuite) TestListEvents() {
	s.Run("pages by height", func() {
		s.events.EXPECT().ListEvents(gomock.Any(), uint64(4), 2).Return([]*models.Event{
			{ID: id.NewEventID(), Height: 5, Type: models.EventCredentialIssued, Payload: json.RawMessage(`{}`)},
			{ID: id.NewEventID(), Height: 6, Type: models.EventCredentialValidated, Payload: json.RawMessage(`{}`)},
		}, nil)

		rec := s.do(http.MethodGet, "/registry/events?after=4&limit=2", "")
		s.Equal(http.StatusOK, rec.Code)
		var got EventListResponse
		s.decode(rec, &got)
		s.Len(got.Events, 2)
		s.Equal(uint64(6), got.NextAfter)
		s.False(got.Events[0].Published)
	})

	s.Run("empty page keeps the cursor", func() {
		s.events.EXPECT().ListEvents(gomock.Any(), uint64(9), defaultEventPage).Return(nil, nil)
		rec := s.do(http.MethodGet, "/registry/events?after=9", "")
		var got EventListResponse
		s.decode(rec, &got)
		s.Equal(uint64(9), got.NextAfter)
	})

	for _, q := range []string{"after=-1", "limit=0", "limit=1001", "limit=x"} {
		s.Run("rejects "+q, func() {
			rec := s.do(http.MethodGet, "/registry/events?"+q, "")
			s.Equal(http.StatusBadRequest, rec.Code)
		})
	}
}
