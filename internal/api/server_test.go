package api

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	json "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/scribe-cli/internal/config"
	"github.com/xkilldash9x/scribe-cli/internal/publisher"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type mockService struct {
	mock.Mock
}

func (m *mockService) SubmitContent(ctx context.Context, creds publisher.Credentials, content publisher.Content, target *publisher.TargetRef) (*publisher.WorkflowResult, error) {
	args := m.Called(ctx, creds, content, target)
	result, _ := args.Get(0).(*publisher.WorkflowResult)
	return result, args.Error(1)
}

func (m *mockService) ListWorks(ctx context.Context, creds publisher.Credentials) ([]publisher.Work, error) {
	args := m.Called(ctx, creds)
	works, _ := args.Get(0).([]publisher.Work)
	return works, args.Error(1)
}

func testConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.ServerCfg.MaxSessions = 2
	cfg.ServerCfg.RatePerMinute = 6000
	cfg.ServerCfg.Burst = 100
	cfg.ServerCfg.AcquireWait = 50 * time.Millisecond
	cfg.PlatformCfg.Identity = "env@example.com"
	cfg.PlatformCfg.Secret = "env-secret"
	return cfg
}

var validBody = strings.Repeat("字", publisher.MinBodyLength)

func post(t *testing.T, h http.Handler, path string, body interface{}) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec, resp
}

func TestHealthz(t *testing.T) {
	srv := NewServer(testConfig(), &mockService{}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestSubmit_Success(t *testing.T) {
	svc := &mockService{}
	creds := publisher.Credentials{Identity: "writer@example.com", Secret: "pw"}
	content := publisher.Content{Title: "第一章", Body: strings.Repeat("字", 1500)}
	svc.On("SubmitContent", mock.Anything, creds, content, &publisher.TargetRef{ID: "101"}).
		Return(&publisher.WorkflowResult{Success: true, ContentLength: 1500, Published: publisher.StatePublished, Verified: true}, nil)

	srv := NewServer(testConfig(), svc, zaptest.NewLogger(t))
	rec, resp := post(t, srv.Handler(), "/api/v1/chapters", SubmitRequest{
		Credentials: &CredentialsPayload{Identity: creds.Identity, Secret: creds.Secret},
		Title:       content.Title,
		Body:        content.Body,
		WorkID:      "101",
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", resp.Status)
	assert.Contains(t, rec.Body.String(), `"verified":true`)
	assert.Contains(t, rec.Body.String(), `"content_length":1500`)
	svc.AssertExpectations(t)
}

func TestSubmit_FallsBackToConfiguredCredentials(t *testing.T) {
	svc := &mockService{}
	want := publisher.Credentials{Identity: "env@example.com", Secret: "env-secret"}
	svc.On("SubmitContent", mock.Anything, want, mock.Anything, (*publisher.TargetRef)(nil)).
		Return(&publisher.WorkflowResult{Success: true}, nil)

	srv := NewServer(testConfig(), svc, zaptest.NewLogger(t))
	rec, _ := post(t, srv.Handler(), "/api/v1/chapters", SubmitRequest{Title: "t", Body: validBody})
	assert.Equal(t, http.StatusOK, rec.Code)
	svc.AssertExpectations(t)
}

func TestSubmit_ErrorStatus(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		code int
		kind publisher.ErrorKind
	}{
		{"validation", &publisher.ValidationError{Field: "body", Reason: "too short"}, http.StatusBadRequest, publisher.KindValidation},
		{"authentication", &publisher.AuthError{Step: publisher.StepConfirm, Reason: publisher.ReasonPlatformRejected}, http.StatusUnauthorized, publisher.KindAuthentication},
		{"selection", &publisher.SelectionError{TargetID: "9"}, http.StatusNotFound, publisher.KindSelection},
		{"submission", &publisher.SubmissionError{Step: "fill_body"}, http.StatusInternalServerError, publisher.KindSubmission},
		{"internal", errors.New("chrome crashed"), http.StatusInternalServerError, publisher.KindInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockService{}
			svc.On("SubmitContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
				Return(&publisher.WorkflowResult{Message: tc.err.Error()}, tc.err)

			srv := NewServer(testConfig(), svc, zaptest.NewLogger(t))
			rec, resp := post(t, srv.Handler(), "/api/v1/chapters", SubmitRequest{Title: "t", Body: validBody})
			assert.Equal(t, tc.code, rec.Code)
			assert.Equal(t, "error", resp.Status)
			assert.Equal(t, string(tc.kind), resp.Kind)
			assert.Equal(t, tc.err.Error(), resp.Error)
		})
	}
}

func TestSubmit_RejectsInvalidInputBeforeService(t *testing.T) {
	testCases := []struct {
		name  string
		req   SubmitRequest
		field string
	}{
		{"short body", SubmitRequest{Title: "t", Body: strings.Repeat("a", publisher.MinBodyLength-1)}, "body"},
		{"blank title", SubmitRequest{Title: " ", Body: validBody}, "title"},
		{"bad work id", SubmitRequest{Title: "t", Body: validBody, WorkID: "10 1"}, "target.id"},
		{"missing secret", SubmitRequest{Credentials: &CredentialsPayload{Identity: "a@b.c"}, Title: "t", Body: validBody}, "secret"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.ServerCfg.AcquireWait = time.Hour
			svc := &mockService{}
			srv := NewServer(cfg, svc, zaptest.NewLogger(t))
			// Hold every session so a handler that acquired first would block.
			require.True(t, srv.sessions.TryAcquire(int64(cfg.ServerCfg.MaxSessions)))
			defer srv.sessions.Release(int64(cfg.ServerCfg.MaxSessions))

			rec, resp := post(t, srv.Handler(), "/api/v1/chapters", tc.req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, string(publisher.KindValidation), resp.Kind)
			assert.Contains(t, resp.Error, tc.field)
			svc.AssertNotCalled(t, "SubmitContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestSubmit_MalformedBody(t *testing.T) {
	svc := &mockService{}
	srv := NewServer(testConfig(), svc, zaptest.NewLogger(t))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/chapters", strings.NewReader(`{"title": `))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svc.AssertNotCalled(t, "SubmitContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmit_SessionsBusy(t *testing.T) {
	cfg := testConfig()
	cfg.ServerCfg.MaxSessions = 1

	entered := make(chan struct{})
	release := make(chan struct{})
	svc := &mockService{}
	svc.On("SubmitContent", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) {
			close(entered)
			<-release
		}).
		Return(&publisher.WorkflowResult{Success: true}, nil).Once()

	srv := NewServer(cfg, svc, zaptest.NewLogger(t))

	done := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/chapters", strings.NewReader(`{"title":"t","body":"`+validBody+`"}`))
		srv.Handler().ServeHTTP(rec, req)
		done <- rec.Code
	}()
	<-entered

	rec, resp := post(t, srv.Handler(), "/api/v1/chapters", SubmitRequest{Title: "t", Body: validBody})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, resp.Error, "busy")

	rec, resp = post(t, srv.Handler(), "/api/v1/chapters", SubmitRequest{Title: "t", Body: validBody[:len(validBody)-3]})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "invalid input is rejected without waiting for a session")
	assert.Equal(t, string(publisher.KindValidation), resp.Kind)

	close(release)
	assert.Equal(t, http.StatusOK, <-done)
	svc.AssertNumberOfCalls(t, "SubmitContent", 1)
}

func TestRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ServerCfg.RatePerMinute = 1
	cfg.ServerCfg.Burst = 1

	svc := &mockService{}
	svc.On("ListWorks", mock.Anything, mock.Anything).Return([]publisher.Work{}, nil)
	srv := NewServer(cfg, svc, zaptest.NewLogger(t))

	first, _ := post(t, srv.Handler(), "/api/v1/works/list", nil)
	second, resp := post(t, srv.Handler(), "/api/v1/works/list", nil)
	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "60", second.Header().Get("Retry-After"))
	assert.Contains(t, resp.Error, "rate limit")

	// Health checks are never limited.
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestListWorks(t *testing.T) {
	svc := &mockService{}
	svc.On("ListWorks", mock.Anything, publisher.Credentials{Identity: "a@b.c", Secret: "s"}).
		Return([]publisher.Work{{ID: "1", Title: "一"}, {ID: "2", Title: "二"}}, nil)

	srv := NewServer(testConfig(), svc, zaptest.NewLogger(t))
	rec, resp := post(t, srv.Handler(), "/api/v1/works/list", ListWorksRequest{
		Credentials: &CredentialsPayload{Identity: "a@b.c", Secret: "s"},
	})

	assert.Equal(t, http.StatusOK, rec.Code)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.EqualValues(t, 2, data["count"])
}

func TestListWorks_AuthFailure(t *testing.T) {
	svc := &mockService{}
	svc.On("ListWorks", mock.Anything, mock.Anything).
		Return(nil, &publisher.AuthError{Step: publisher.StepOpenMenu, Reason: publisher.ReasonElementNotFound})

	srv := NewServer(testConfig(), svc, zaptest.NewLogger(t))
	rec, resp := post(t, srv.Handler(), "/api/v1/works/list", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, resp.Error, "open_menu")
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer(testConfig(), &mockService{}, zaptest.NewLogger(t))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/chapters", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(testConfig(), &mockService{}, zaptest.NewLogger(t))
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	require.Eventually(t, func() bool {
		resp, err := client.Get("http://" + ln.Addr().String() + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
