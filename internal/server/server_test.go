package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/parkvoucher/internal/audit/domain"
	auditservice "github.com/smallbiznis/parkvoucher/internal/audit/service"
	"github.com/smallbiznis/parkvoucher/internal/auditcontext"
	authservice "github.com/smallbiznis/parkvoucher/internal/auth/service"
	"github.com/smallbiznis/parkvoucher/internal/auth/session"
	"github.com/smallbiznis/parkvoucher/internal/clock"
	"github.com/smallbiznis/parkvoucher/internal/config"
	"github.com/smallbiznis/parkvoucher/internal/observability"
	"github.com/smallbiznis/parkvoucher/internal/qrcode"
	"github.com/smallbiznis/parkvoucher/internal/ratelimit"
	reportservice "github.com/smallbiznis/parkvoucher/internal/report/service"
	storedomain "github.com/smallbiznis/parkvoucher/internal/store/domain"
	"github.com/smallbiznis/parkvoucher/internal/store/memory"
	voucherdomain "github.com/smallbiznis/parkvoucher/internal/voucher/domain"
	voucherservice "github.com/smallbiznis/parkvoucher/internal/voucher/service"
	"github.com/smallbiznis/parkvoucher/internal/writequeue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testUsername = "admin"
	testPassword = "correct-password"
	testHookKey  = "hook-secret"
)

type staticVerifier string

func (v staticVerifier) Verify(password string) bool {
	return password == string(v)
}

type testServer struct {
	engine *gin.Engine
	clock  *clock.FakeClock
	store  *memory.Store
}

type adminSession struct {
	cookie *http.Cookie
	csrf   string
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *testServer {
	t.Helper()
	st := memory.New()
	return newTestServerWithStore(t, mutate, zaptest.NewLogger(t), st, st)
}

// newTestServerWithStore serves over backend; mem is the memory store it
// reads through to.
func newTestServerWithStore(t *testing.T, mutate func(*config.Config), log *zap.Logger, backend storedomain.Store, mem *memory.Store) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.Config{
		Environment:   "test",
		AdminUsername: testUsername,
		SessionTTL:    time.Hour,
		WebhookKey:    testHookKey,
		PublicBaseURL: "https://park.example.com",
	}
	if mutate != nil {
		mutate(&cfg)
	}

	q := writequeue.New(writequeue.Options{Log: log, Expected: voucherdomain.IsExpected})
	q.Start()
	t.Cleanup(func() { _ = q.Stop(context.Background()) })

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fake := clock.NewFakeClock(time.Now().UTC().Truncate(time.Second))
	policy := config.NewStaticPolicy(config.DefaultPolicy())
	loc := time.FixedZone("CST", 8*3600)

	audit := auditservice.NewService(auditservice.Params{
		Log:    log,
		Store:  backend,
		Queue:  q,
		Clock:  fake,
		Policy: policy,
	})
	vouchers := voucherservice.NewService(voucherservice.Params{
		Log:      log,
		Store:    backend,
		Queue:    q,
		Audit:    audit,
		Clock:    fake,
		GenID:    node,
		Policy:   policy,
		Location: loc,
	})
	reports := reportservice.NewService(reportservice.Params{
		Log:      log,
		Store:    backend,
		Clock:    fake,
		Policy:   policy,
		Location: loc,
	})
	auth := authservice.New(authservice.Params{
		Log:      log,
		Config:   cfg,
		Policy:   policy,
		Sessions: session.NewMemoryStore(fake),
		Limiter:  ratelimit.NewMemoryLimiter(fake),
		Verifier: staticVerifier(testPassword),
		Audit:    audit,
		Clock:    fake,
	})

	engine := NewEngine(observability.Config{Environment: "test"}, nil)
	NewServer(ServerParams{
		Gin:        engine,
		Cfg:        cfg,
		Policy:     policy,
		Log:        log,
		Authsvc:    auth,
		Sessions:   session.NewManager(cfg),
		VoucherSvc: vouchers,
		ReportSvc:  reports,
		AuditSvc:   audit,
		Clock:      fake,
		Location:   loc,
	})

	return &testServer{engine: engine, clock: fake, store: mem}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.engine.ServeHTTP(rec, req)
	return rec
}

func (ts *testServer) doJSON(t *testing.T, method, path string, body any, sess *adminSession) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	sess.apply(req)
	return ts.do(req)
}

func (s *adminSession) apply(req *http.Request) {
	if s == nil {
		return
	}
	req.AddCookie(s.cookie)
	req.Header.Set(csrfHeader, s.csrf)
}

func (ts *testServer) login(t *testing.T) *adminSession {
	t.Helper()
	rec := ts.doJSON(t, http.MethodPost, "/api/admin/login", LoginRequest{
		Username: testUsername,
		Password: testPassword,
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body struct {
		Username  string `json:"username"`
		CSRFToken string `json:"csrfToken"`
	}
	decode(t, rec, &body)
	require.Equal(t, testUsername, body.Username)
	require.NotEmpty(t, body.CSRFToken)

	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == session.DefaultCookieName {
			return &adminSession{cookie: cookie, csrf: body.CSRFToken}
		}
	}
	t.Fatalf("login did not set the %s cookie", session.DefaultCookieName)
	return nil
}

func (ts *testServer) createVoucher(t *testing.T, sess *adminSession, total int) voucherView {
	t.Helper()
	rec := ts.doJSON(t, http.MethodPost, "/api/admin/voucher", map[string]any{"total": total, "note": "B2-17"}, sess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body createVoucherResponse
	decode(t, rec, &body)
	return body.Voucher
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body errorResponse
	decode(t, rec, &body)
	return body.Error
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLoginAndSession(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	assert.True(t, sess.cookie.HttpOnly)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/session", nil)
	req.AddCookie(sess.cookie)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, testUsername, body["username"])
	assert.Equal(t, sess.csrf, body["csrfToken"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.doJSON(t, http.MethodPost, "/api/admin/login", LoginRequest{Username: testUsername, Password: "nope"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var body errorResponse
	decode(t, rec, &body)
	assert.Equal(t, "unauthorized", body.Error)
	assert.Equal(t, "用户名或密码错误", body.Message)
}

func TestLoginRateLimited(t *testing.T) {
	ts := newTestServer(t, nil)
	for i := 0; i < 5; i++ {
		rec := ts.doJSON(t, http.MethodPost, "/api/admin/login", LoginRequest{Username: testUsername, Password: "nope"}, nil)
		require.Equal(t, http.StatusUnauthorized, rec.Code, "attempt %d", i+1)
	}

	rec := ts.doJSON(t, http.MethodPost, "/api/admin/login", LoginRequest{Username: testUsername, Password: testPassword}, nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "rate_limited", errorCode(t, rec))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
}

func TestLogoutEndsSession(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)

	rec := ts.doJSON(t, http.MethodPost, "/api/admin/logout", nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/session", nil)
	req.AddCookie(sess.cookie)
	rec = ts.do(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// without any cookie logout still succeeds
	rec = ts.doJSON(t, http.MethodPost, "/api/admin/logout", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminRoutesRequireSession(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/admin/vouchers", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", errorCode(t, rec))
}

func TestMutationsRequireCSRF(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)

	rec := ts.doJSON(t, http.MethodPost, "/api/admin/voucher", map[string]any{"total": 3}, &adminSession{cookie: sess.cookie, csrf: "forged"})
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, "csrf_mismatch", errorCode(t, rec))

	vouchers, err := ts.store.LoadVouchers(context.Background())
	require.NoError(t, err)
	assert.Empty(t, vouchers)
}

func TestCreateVoucherJSON(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)

	rec := ts.doJSON(t, http.MethodPost, "/api/admin/voucher", map[string]any{"total": "20", "note": "B2-17"}, sess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body createVoucherResponse
	decode(t, rec, &body)
	assert.Equal(t, 20, body.Voucher.Total)
	assert.Equal(t, 20, body.Voucher.Remain)
	assert.Equal(t, 0, body.Voucher.Used)
	assert.Equal(t, voucherdomain.WarnLevelOK, body.Voucher.Warning.Level)
	assert.Equal(t, "/redeem.html?v="+body.Voucher.ID, body.RedeemURL)
	assert.Equal(t, "https://park.example.com/redeem.html?v="+body.Voucher.ID, body.RedeemFullURL)
	assert.True(t, strings.HasPrefix(body.QRDataURL, "data:image/png;base64,"))
}

func TestCreateVoucherRejectsInvalidTotal(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)

	rec := ts.doJSON(t, http.MethodPost, "/api/admin/voucher", map[string]any{"total": 0}, sess)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))
}

func TestCreateVoucherMultipartWithQRImage(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)

	rendered, err := qrcode.DataURL("gate-7", 64)
	require.NoError(t, err)
	img, err := qrcode.ParseDataURL(rendered, 1<<20)
	require.NoError(t, err)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("total", "5"))
	require.NoError(t, form.WriteField("note", "uploaded"))
	part, err := form.CreateFormFile("qrImage", "qr.png")
	require.NoError(t, err)
	_, err = part.Write(img.Data)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/voucher", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	sess.apply(req)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body createVoucherResponse
	decode(t, rec, &body)
	assert.Equal(t, voucherdomain.QRSourceManual, body.Voucher.QRSource)
	assert.Equal(t, qrcode.EncodeDataURL("image/png", img.Data), body.QRDataURL)
}

func TestCreateVoucherMultipartSniffsImageType(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)

	rendered, err := qrcode.DataURL("gate-9", 64)
	require.NoError(t, err)
	img, err := qrcode.ParseDataURL(rendered, 1<<20)
	require.NoError(t, err)

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("total", "2"))
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="qrImage"; filename="qr.gif"`)
	header.Set("Content-Type", "image/gif")
	part, err := form.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(img.Data)
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/admin/voucher", &buf)
	req.Header.Set("Content-Type", form.FormDataContentType())
	sess.apply(req)
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body createVoucherResponse
	decode(t, rec, &body)
	assert.Equal(t, qrcode.EncodeDataURL("image/png", img.Data), body.QRDataURL)
}

func TestRedeemFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	created := ts.createVoucher(t, sess, 3)

	rec := ts.doJSON(t, http.MethodGet, "/api/voucher/"+created.ID, nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	var view redeemResponse
	decode(t, rec, &view)
	assert.Equal(t, voucherdomain.WarnLevelSevere, view.Warning.Level)
	assert.Equal(t, voucherdomain.LowBalanceText, view.Warning.Text)
	assert.True(t, strings.HasPrefix(view.QRDataURL, "data:image/png;base64,"))

	rec = ts.doJSON(t, http.MethodPost, "/api/voucher/"+created.ID+"/display", nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, want := range []int{2, 1, 0} {
		rec = ts.doJSON(t, http.MethodPost, "/api/voucher/"+created.ID+"/confirm", nil, sess)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var confirmed redeemResponse
		decode(t, rec, &confirmed)
		assert.Equal(t, want, confirmed.Voucher.Remain)
		require.NotNil(t, confirmed.Usage)
		assert.Equal(t, voucherdomain.UsageSourceManual, confirmed.Usage.Source)
	}

	rec = ts.doJSON(t, http.MethodPost, "/api/voucher/"+created.ID+"/confirm", nil, sess)
	require.Equal(t, http.StatusConflict, rec.Code)
	var rejected errorResponse
	decode(t, rec, &rejected)
	assert.Equal(t, "usage_rejected", rejected.Error)
	assert.Equal(t, "停车券次数已用完", rejected.Message)

	rec = ts.doJSON(t, http.MethodGet, "/api/admin/stats", nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	decode(t, rec, &stats)
	assert.EqualValues(t, 3, stats["totalUsed"])
	assert.EqualValues(t, 0, stats["totalRemain"])
}

func TestRedeemUnknownVoucher(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)

	rec := ts.doJSON(t, http.MethodGet, "/api/voucher/VCH_MISSING", nil, sess)
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestAdminUseAndDetail(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	created := ts.createVoucher(t, sess, 12)

	rec := ts.doJSON(t, http.MethodPost, "/api/admin/voucher/"+created.ID+"/use", nil, sess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var used useVoucherResponse
	decode(t, rec, &used)
	assert.Equal(t, 11, used.Remain)
	assert.Equal(t, 1, used.Voucher.Used)

	rec = ts.doJSON(t, http.MethodGet, "/api/admin/voucher/"+created.ID, nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail voucherDetailResponse
	decode(t, rec, &detail)
	assert.Equal(t, 11, detail.Voucher.Remain)
	assert.Equal(t, voucherdomain.WarnLevelOK, detail.Voucher.Warning.Level)
	require.Len(t, detail.Logs, 2)
	assert.EqualValues(t, "MANUAL_USE", detail.Logs[0].Type)
	assert.EqualValues(t, "CREATE", detail.Logs[1].Type)
	assert.NotEmpty(t, detail.QRDataURL)
}

func TestUpdateAndDisableVoucher(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	created := ts.createVoucher(t, sess, 10)

	rec := ts.doJSON(t, http.MethodPut, "/api/admin/voucher/"+created.ID, map[string]any{"remain": 4, "note": "adjusted"}, sess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var updated struct {
		Voucher voucherView `json:"voucher"`
	}
	decode(t, rec, &updated)
	assert.Equal(t, 4, updated.Voucher.Remain)
	assert.Equal(t, 10, updated.Voucher.Total)
	assert.Equal(t, "adjusted", updated.Voucher.Note)

	rec = ts.doJSON(t, http.MethodPut, "/api/admin/voucher/"+created.ID, map[string]any{"remain": 11}, sess)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.doJSON(t, http.MethodDelete, "/api/admin/voucher/"+created.ID, nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.doJSON(t, http.MethodPost, "/api/admin/voucher/"+created.ID+"/use", nil, sess)
	require.Equal(t, http.StatusConflict, rec.Code)
	var rejected errorResponse
	decode(t, rec, &rejected)
	assert.Equal(t, "停车券已停用", rejected.Message)
}

func TestListVouchersPaginates(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	for i := 0; i < 25; i++ {
		ts.createVoucher(t, sess, 1)
	}

	for page, want := range map[int]int{1: 10, 2: 10, 3: 5, 99: 5} {
		rec := ts.doJSON(t, http.MethodGet, fmt.Sprintf("/api/admin/vouchers?page=%d&pageSize=10", page), nil, sess)
		require.Equal(t, http.StatusOK, rec.Code)
		var body voucherListResponse
		decode(t, rec, &body)
		assert.Len(t, body.Items, want, "page %d", page)
		assert.Equal(t, 25, body.Pagination.Total)
		assert.Equal(t, 25, body.Summary.TotalIssued)
		for _, item := range body.Items {
			assert.Empty(t, item.QRDataURL)
		}
	}
}

func TestWebhookUse(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	created := ts.createVoucher(t, sess, 2)

	rec := ts.doJSON(t, http.MethodPost, "/api/webhook/use", map[string]any{"key": "wrong"}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid_webhook_key", errorCode(t, rec))

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/use", strings.NewReader(`{"voucherId":"`+created.ID+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhookKeyHeader, testHookKey)
	rec = ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var body webhookUseResponse
	decode(t, rec, &body)
	assert.Equal(t, created.ID, body.Usage.VoucherID)
	assert.Equal(t, voucherdomain.UsageSourceAPI, body.Usage.Source)
	assert.Equal(t, 1, body.Voucher.Remain)

	// body key with no voucher picks the oldest usable one
	rec = ts.doJSON(t, http.MethodPost, "/api/webhook/use", map[string]any{"key": testHookKey}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &body)
	assert.Equal(t, 0, body.Voucher.Remain)

	rec = ts.doJSON(t, http.MethodPost, "/api/webhook/use", map[string]any{"key": testHookKey}, nil)
	require.Equal(t, http.StatusConflict, rec.Code)
}

func TestWebhookUseWithOversizedUserAgent(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	created := ts.createVoucher(t, sess, 2)

	req := httptest.NewRequest(http.MethodPost, "/api/webhook/use", strings.NewReader(`{"voucherId":"`+created.ID+`"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(webhookKeyHeader, testHookKey)
	req.Header.Set("User-Agent", strings.Repeat("a", 2048))
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	entries, err := ts.store.ReadAudit(context.Background())
	require.NoError(t, err)
	var found bool
	for _, entry := range entries {
		if entry.Type != auditdomain.TypeWebhookUse {
			continue
		}
		found = true
		assert.Equal(t, created.ID, entry.VoucherID)
		assert.Equal(t, auditcontext.MaxUserAgentLength, utf8.RuneCountInString(entry.UA))
	}
	assert.True(t, found, "expected a WEBHOOK_USE audit entry")
}

func TestWebhookDisabledWithoutKey(t *testing.T) {
	ts := newTestServer(t, func(cfg *config.Config) { cfg.WebhookKey = "" })
	rec := ts.doJSON(t, http.MethodPost, "/api/webhook/use", map[string]any{"key": "anything"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListUsages(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	created := ts.createVoucher(t, sess, 5)
	for i := 0; i < 3; i++ {
		rec := ts.doJSON(t, http.MethodPost, "/api/admin/voucher/"+created.ID+"/use", nil, sess)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := ts.doJSON(t, http.MethodGet, "/api/admin/usages?voucherId="+created.ID, nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items   []voucherdomain.UsageRecord `json:"items"`
		Summary struct {
			TotalUsages int `json:"totalUsages"`
		} `json:"summary"`
	}
	decode(t, rec, &body)
	assert.Len(t, body.Items, 3)
	assert.Equal(t, 3, body.Summary.TotalUsages)

	rec = ts.doJSON(t, http.MethodGet, "/api/admin/usages?startDate=yesterday", nil, sess)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", errorCode(t, rec))
}

func TestExports(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	created := ts.createVoucher(t, sess, 5)
	rec := ts.doJSON(t, http.MethodPost, "/api/admin/voucher/"+created.ID+"/use", nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, path := range []string{"/api/admin/export", "/api/admin/usages/export"} {
		rec = ts.doJSON(t, http.MethodGet, path, nil, sess)
		require.Equal(t, http.StatusOK, rec.Code, path)
		assert.Equal(t, csvContentType, rec.Header().Get("Content-Type"))
		assert.Contains(t, rec.Header().Get("Content-Disposition"), "attachment;")
		assert.True(t, strings.HasPrefix(rec.Body.String(), "\ufeff"), path)
		assert.Contains(t, rec.Body.String(), created.ID)
	}
}

func TestListAuditLogs(t *testing.T) {
	ts := newTestServer(t, nil)
	sess := ts.login(t)
	created := ts.createVoucher(t, sess, 5)

	rec := ts.doJSON(t, http.MethodGet, "/api/admin/logs?type=CREATE&voucherId="+created.ID, nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []struct {
			Type      string `json:"type"`
			VoucherID string `json:"voucherId"`
		} `json:"items"`
	}
	decode(t, rec, &body)
	require.Len(t, body.Items, 1)
	assert.Equal(t, created.ID, body.Items[0].VoucherID)

	rec = ts.doJSON(t, http.MethodGet, "/api/admin/logs?type=ADMIN_LOGIN", nil, sess)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &body)
	assert.Len(t, body.Items, 1)

	rec = ts.doJSON(t, http.MethodGet, "/api/admin/logs?type=BOGUS", nil, sess)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRedeemPageRedirectsWithoutSession(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "redeem.html"), []byte("<html>redeem</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "admin.html"), []byte("<html>admin</html>"), 0o644))
	ts := newTestServer(t, func(cfg *config.Config) { cfg.PublicDir = dir })

	rec := ts.do(httptest.NewRequest(http.MethodGet, "/redeem.html?v=VCH_1", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "/admin.html?next=%2Fredeem.html%3Fv%3DVCH_1", rec.Header().Get("Location"))

	sess := ts.login(t)
	req := httptest.NewRequest(http.MethodGet, "/redeem.html?v=VCH_1", nil)
	req.AddCookie(sess.cookie)
	rec = ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "redeem")

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "admin")
}

func TestUnknownRoute(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errorCode(t, rec))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.js"), []byte("x"), 0o644))

	assert.True(t, fileExists(dir, "/app.js"))
	assert.False(t, fileExists(dir, "/"))
	assert.False(t, fileExists(dir, "/missing.js"))
	assert.False(t, fileExists("", "/app.js"))
}

var errDiskFull = errors.New("disk full")

// failingStore fails usage appends while failUsage is set.
type failingStore struct {
	*memory.Store
	failUsage bool
}

func (s *failingStore) AppendUsage(ctx context.Context, record voucherdomain.UsageRecord) error {
	if s.failUsage {
		return storedomain.Wrap("append_usage", errDiskFull)
	}
	return s.Store.AppendUsage(ctx, record)
}

func TestStorageErrorIsOpaque(t *testing.T) {
	st := &failingStore{Store: memory.New()}
	core, logs := observer.New(zapcore.DebugLevel)
	ts := newTestServerWithStore(t, nil, zap.New(core), st, st.Store)
	sess := ts.login(t)
	created := ts.createVoucher(t, sess, 1)

	st.failUsage = true
	rec := ts.doJSON(t, http.MethodPost, "/api/admin/voucher/"+created.ID+"/use", nil, sess)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var body errorResponse
	decode(t, rec, &body)
	assert.Equal(t, "internal_error", body.Error)
	assert.NotContains(t, rec.Body.String(), "disk full")
	assert.NotContains(t, rec.Body.String(), "append_usage")
	assert.NotEmpty(t, logs.FilterMessage("write task failed").FilterLevelExact(zapcore.ErrorLevel).All())

	st.failUsage = false
	next := ts.createVoucher(t, sess, 1)
	rec = ts.doJSON(t, http.MethodPost, "/api/admin/voucher/"+next.ID+"/use", nil, sess)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	failed := len(logs.FilterMessage("write task failed").All())
	rec = ts.doJSON(t, http.MethodPost, "/api/admin/voucher/"+next.ID+"/use", nil, sess)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "usage_rejected", errorCode(t, rec))
	assert.Len(t, logs.FilterMessage("write task failed").All(), failed)
}
