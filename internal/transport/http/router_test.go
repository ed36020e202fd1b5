package httptransport_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"certportal/internal/audit"
	auditmemory "certportal/internal/audit/store/memory"
	"certportal/internal/availability"
	"certportal/internal/compliance"
	"certportal/internal/docs/blob"
	docsservice "certportal/internal/docs/service"
	docsstore "certportal/internal/docs/store"
	"certportal/internal/identity"
	"certportal/internal/notify"
	orgservice "certportal/internal/org/service"
	orgstore "certportal/internal/org/store"
	httptransport "certportal/internal/transport/http"
	id "certportal/pkg/domain"
	"certportal/pkg/testutil"
)

type RouterSuite struct {
	suite.Suite

	server   *httptest.Server
	verifier *identity.Verifier
	docs     *docsstore.MemoryStore
	avail    *availability.Service

	admin  identity.Principal
	client identity.Principal
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.verifier = identity.NewVerifier("test-signing-key")
	recorder := audit.NewRecorder(auditmemory.NewInMemoryStore())
	dispatcher := notify.NewDispatcher(notify.NewMemorySink())

	s.docs = docsstore.NewMemory()
	blobs := blob.NewMemoryStorage("http://blobs.local", []byte("blob-secret"))
	docsSvc := docsservice.New(s.docs, blobs, docsservice.WithRecorder(recorder))
	s.avail = availability.New(availability.NewMemoryStore(),
		availability.WithRecorder(recorder),
		availability.WithDispatcher(dispatcher),
	)

	provider := identity.NewMemoryProvider(s.verifier, time.Hour)
	s.admin = testutil.Admin()
	s.client = testutil.Client(id.NewOrganizationID())
	s.Require().NoError(provider.Register("ada", "correct horse", s.admin))

	router := httptransport.NewRouter(httptransport.Services{
		Provider:     provider,
		Verifier:     s.verifier,
		Docs:         docsSvc,
		Compliance:   compliance.New(s.docs, compliance.WithRecorder(recorder)),
		Orgs:         orgservice.New(orgstore.NewMemory(), s.docs, orgservice.WithRecorder(recorder)),
		AuditQuery:   audit.NewQuery(auditmemory.NewInMemoryStore()),
		Availability: s.avail,
		Recorder:     recorder,
		Logger:       logger,
	})
	s.server = httptest.NewServer(router)
	s.T().Cleanup(s.server.Close)
}

func (s *RouterSuite) token(p identity.Principal) string {
	token, err := s.verifier.Issue(p, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *RouterSuite) request(method, path, token string, body any) *http.Response {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequest(method, s.server.URL+path, reader)
	s.Require().NoError(err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	return resp
}

func (s *RouterSuite) decode(resp *http.Response, into any) {
	defer resp.Body.Close()
	s.Require().NoError(json.NewDecoder(resp.Body).Decode(into))
}

func (s *RouterSuite) TestLoginIssuesUsableToken() {
	resp := s.request(http.MethodPost, "/auth/login", "", map[string]string{
		"username": "ada", "password": "correct horse",
	})
	s.Require().Equal(http.StatusOK, resp.StatusCode)

	var body struct {
		Token string `json:"token"`
	}
	s.decode(resp, &body)
	s.NotEmpty(body.Token)

	listing := s.request(http.MethodGet, "/documents/", body.Token, nil)
	defer listing.Body.Close()
	s.Equal(http.StatusOK, listing.StatusCode)
}

func (s *RouterSuite) TestLoginFailureIsUnauthorized() {
	resp := s.request(http.MethodPost, "/auth/login", "", map[string]string{
		"username": "ada", "password": "wrong",
	})
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *RouterSuite) TestMissingTokenIsRejected() {
	resp := s.request(http.MethodGet, "/documents/", "", nil)
	defer resp.Body.Close()
	s.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func (s *RouterSuite) TestFolderAndUploadFlow() {
	adminToken := s.token(s.admin)

	resp := s.request(http.MethodPost, "/folders", adminToken, map[string]string{
		"name": "Certificates",
	})
	s.Require().Equal(http.StatusCreated, resp.StatusCode)
	var created struct {
		ID string `json:"id"`
	}
	s.decode(resp, &created)
	s.Require().NotEmpty(created.ID)

	var form bytes.Buffer
	writer := multipart.NewWriter(&form)
	part, err := writer.CreatePart(textproto.MIMEHeader{
		"Content-Disposition": {`form-data; name="file"; filename="heat-77.pdf"`},
		"Content-Type":        {"application/pdf"},
	})
	s.Require().NoError(err)
	_, err = part.Write([]byte("%PDF-1.4 test"))
	s.Require().NoError(err)
	s.Require().NoError(writer.WriteField("parentId", created.ID))
	s.Require().NoError(writer.WriteField("ownerOrganizationId", s.client.OrganizationID.String()))
	s.Require().NoError(writer.WriteField("batchNumber", "H-77"))
	s.Require().NoError(writer.Close())

	req, err := http.NewRequest(http.MethodPost, s.server.URL+"/documents/", &form)
	s.Require().NoError(err)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	uploadResp, err := s.server.Client().Do(req)
	s.Require().NoError(err)
	defer uploadResp.Body.Close()
	s.Equal(http.StatusCreated, uploadResp.StatusCode)

	// The pending upload is hidden from its owning client until approved.
	listing := s.request(http.MethodGet, "/documents/?parent="+created.ID, s.token(s.client), nil)
	s.Require().Equal(http.StatusOK, listing.StatusCode)
	var page struct {
		Total int `json:"total"`
	}
	s.decode(listing, &page)
	s.Zero(page.Total)
}

func (s *RouterSuite) TestMaintenanceLocksOutClientsButNotAdmins() {
	s.avail.ApplyRemote(availability.Status{Mode: availability.ModeMaintenance, Message: "patching"})

	blocked := s.request(http.MethodGet, "/documents/", s.token(s.client), nil)
	defer blocked.Body.Close()
	s.Equal(http.StatusServiceUnavailable, blocked.StatusCode)

	// The status endpoint stays reachable so clients can see when to return.
	status := s.request(http.MethodGet, "/availability", s.token(s.client), nil)
	s.Require().Equal(http.StatusOK, status.StatusCode)
	var got availability.Status
	s.decode(status, &got)
	s.Equal(availability.ModeMaintenance, got.Mode)

	adminResp := s.request(http.MethodGet, "/documents/", s.token(s.admin), nil)
	defer adminResp.Body.Close()
	s.Equal(http.StatusOK, adminResp.StatusCode)
}

func (s *RouterSuite) TestHealthzNeedsNoAuth() {
	resp, err := s.server.Client().Get(s.server.URL + "/healthz")
	s.Require().NoError(err)
	defer resp.Body.Close()
	s.Equal(http.StatusOK, resp.StatusCode)
}
