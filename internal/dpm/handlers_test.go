package dpm_test

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/merchkit/dpm-relay/internal/dpm"
	"github.com/merchkit/dpm-relay/internal/session"
)

const (
	testSessionID = "sess-1"
	testAppURL    = "https://shop.example.com"
)

func newHandler(store dpm.Store) *dpm.Handler {
	return &dpm.Handler{
		Signer:       testSigner,
		Store:        store,
		SessionID:    func(*http.Request) string { return testSessionID },
		AppURL:       testAppURL,
		RelayPath:    "/authnet/relay-response",
		ThankYouPath: "/thank-you",
		Logger:       zerolog.Nop(),
		Now:          func() time.Time { return time.Unix(1700000000, 0) },
	}
}

func postForm(t *testing.T, h http.HandlerFunc, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decodeRecord(t *testing.T, rr *httptest.ResponseRecorder) dpm.Record {
	t.Helper()
	var rec dpm.Record
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	return rec
}

func issueFingerprint(t *testing.T, h *dpm.Handler, form url.Values) dpm.Record {
	t.Helper()
	form.Set("validated", "jawohl!")
	rr := postForm(t, h.Fingerprint, "/authnet/fingerprint", form)
	require.Equal(t, http.StatusOK, rr.Code)
	return decodeRecord(t, rr)
}

// gatewayHash reproduces the digest the gateway attaches to its callback.
func gatewayHash(transID, amount string) string {
	sum := md5.Sum([]byte(testSigner.HashSecret + testSigner.LoginID + transID + amount))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

func relayPayload(issued dpm.Record, transID string) url.Values {
	v := url.Values{}
	v.Set("session_id", issued["session_id"])
	v.Set("timestamp", issued["timestamp"])
	v.Set("order_id", issued["order_id"])
	v.Set("x_amount", issued["x_amount"])
	v.Set("x_trans_id", transID)
	v.Set("x_response_code", "1")
	v.Set("x_MD5_Hash", gatewayHash(transID, issued["x_amount"]))
	return v
}

type spyStore struct {
	dpm.Store
	sets int
}

func (s *spyStore) Set(ctx context.Context, id string, sess *dpm.Session) error {
	s.sets++
	return s.Store.Set(ctx, id, sess)
}

type failingStore struct{}

func (failingStore) Get(context.Context, string) (*dpm.Session, error) {
	return nil, errors.New("store down")
}

func (failingStore) Set(context.Context, string, *dpm.Session) error {
	return errors.New("store down")
}

func TestFingerprintRejectsBotSubmissions(t *testing.T) {
	store := session.NewMemoryStore()
	h := newHandler(store)

	form := url.Values{"x_amount": {"12.34"}}
	rr := postForm(t, h.Fingerprint, "/authnet/fingerprint", form)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Contains(t, rr.Body.String(), "ACCESS_DENIED")
	require.Equal(t, 0, store.Len())

	form.Set("validated", "nein")
	rr = postForm(t, h.Fingerprint, "/authnet/fingerprint", form)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestFingerprintSignsAndStoresOrder(t *testing.T) {
	store := session.NewMemoryStore()
	h := newHandler(store)

	rec := issueFingerprint(t, h, url.Values{
		"x_amount":    {"$1,234.5"},
		"description": {"Deluxe Widget"},
	})

	require.Equal(t, "1234.50", rec["x_amount"])
	require.Equal(t, "1700000000", rec["timestamp"])
	require.Equal(t, rec["timestamp"], rec["x_fp_timestamp"])
	require.Equal(t, testSessionID, rec["session_id"])
	require.Equal(t, testSigner.LoginID, rec["x_login"])
	require.Equal(t, testAppURL+"/authnet/relay-response", rec["x_relay_url"])

	wantID := testSigner.FormDigest(testSessionID, "1234.50", "1700000000", "")
	require.Equal(t, wantID, rec["order_id"])
	require.Equal(t, wantID, rec["x_fp_sequence"])
	require.Equal(t, testSigner.Fingerprint(wantID, "1700000000", "1234.50"), rec["x_fp_hash"])

	sess, err := store.Get(context.Background(), testSessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	require.Equal(t, "Deluxe Widget", sess.Orders[wantID]["description"])
}

func TestFingerprintSurvivesStoreFailure(t *testing.T) {
	h := newHandler(failingStore{})

	rec := issueFingerprint(t, h, url.Values{"x_amount": {"5"}})
	require.NotEmpty(t, rec["x_fp_hash"])
	require.Equal(t, "5.00", rec["x_amount"])
}

func TestNoChargeRequiresFlag(t *testing.T) {
	h := newHandler(session.NewMemoryStore())

	form := url.Values{"validated": {"jawohl!"}}
	rr := postForm(t, h.NoCharge, "/authnet/nocharge", form)
	require.Equal(t, http.StatusForbidden, rr.Code)

	form = url.Values{"nocharge": {"1"}}
	rr = postForm(t, h.NoCharge, "/authnet/nocharge", form)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestNoChargeProcessesOrder(t *testing.T) {
	store := session.NewMemoryStore()
	h := newHandler(store)

	// The flag is trusted as submitted and the amount is left untouched.
	form := url.Values{
		"nocharge":  {"1"},
		"validated": {"jawohl!"},
		"x_amount":  {"$25"},
	}
	rr := postForm(t, h.NoCharge, "/authnet/nocharge", form)
	require.Equal(t, http.StatusOK, rr.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.True(t, strings.HasPrefix(resp["url"], testAppURL+"/thank-you?id="))

	sess, err := store.Get(context.Background(), testSessionID)
	require.NoError(t, err)
	require.NotNil(t, sess)
	orderID := testSigner.FormDigest(testSessionID, "$25", "1700000000", "")
	order := sess.Orders[orderID]
	require.Equal(t, "no-charge", order["x_auth_code"])
	require.Equal(t, "1", order["x_response_code"])
	require.Equal(t, "$25", order["x_amount"])
}

func TestNoChargeHookControlsOutcome(t *testing.T) {
	form := url.Values{"nocharge": {"1"}, "validated": {"jawohl!"}}

	h := newHandler(session.NewMemoryStore())
	h.Processor = dpm.OrderProcessorFunc(func(context.Context, dpm.Record) (string, error) {
		return "https://shop.example.com/confirmed", nil
	})
	rr := postForm(t, h.NoCharge, "/authnet/nocharge", form)
	require.Equal(t, http.StatusOK, rr.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Equal(t, "https://shop.example.com/confirmed", resp["url"])

	h.Processor = dpm.OrderProcessorFunc(func(context.Context, dpm.Record) (string, error) {
		return "", errors.New("inventory offline")
	})
	rr = postForm(t, h.NoCharge, "/authnet/nocharge", form)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "HOOK_ERROR")
}

func TestRelayAcceptsValidCallback(t *testing.T) {
	store := session.NewMemoryStore()
	h := newHandler(store)

	issued := issueFingerprint(t, h, url.Values{
		"x_amount":    {"12.34"},
		"description": {"Deluxe Widget"},
	})

	payload := relayPayload(issued, "60001")
	// fields present at issuance cannot be rewritten by the callback
	payload.Set("description", "tampered")

	rr := postForm(t, h.Relay, "/authnet/relay-response", payload)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	require.Contains(t, rr.Body.String(), testAppURL+"/thank-you?id="+url.QueryEscape(issued["order_id"]))

	sess, err := store.Get(context.Background(), testSessionID)
	require.NoError(t, err)
	order := sess.Orders[issued["order_id"]]
	require.Equal(t, "60001", order["x_trans_id"])
	require.Equal(t, "Deluxe Widget", order["description"])
	require.Equal(t, "true", order["x_MD5_Hash_Validated"])
	require.Equal(t, "true", order["formData_Validated"])
}

func TestRelayRejectsBadGatewayHash(t *testing.T) {
	spy := &spyStore{Store: session.NewMemoryStore()}
	h := newHandler(spy)

	issued := issueFingerprint(t, h, url.Values{"x_amount": {"12.34"}})
	setsAfterIssue := spy.sets

	payload := relayPayload(issued, "60001")
	payload.Set("x_MD5_Hash", gatewayHash("60001", "99.99"))

	rr := postForm(t, h.Relay, "/authnet/relay-response", payload)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, setsAfterIssue, spy.sets, "rejected callbacks must not write")
}

func TestRelayRejectsTamperedAmount(t *testing.T) {
	spy := &spyStore{Store: session.NewMemoryStore()}
	h := newHandler(spy)

	issued := issueFingerprint(t, h, url.Values{"x_amount": {"12.34"}})
	setsAfterIssue := spy.sets

	// Signature is valid for the new amount, but the form digest was sealed
	// over the original one.
	payload := relayPayload(issued, "60001")
	payload.Set("x_amount", "1.00")
	payload.Set("x_MD5_Hash", gatewayHash("60001", "1.00"))

	rr := postForm(t, h.Relay, "/authnet/relay-response", payload)
	require.Equal(t, http.StatusForbidden, rr.Code)
	require.Equal(t, setsAfterIssue, spy.sets)
}

func TestRelayWithoutStoredSession(t *testing.T) {
	h := newHandler(session.NewMemoryStore())

	ts := "1700000000"
	orderID := testSigner.FormDigest("ghost", "10.00", ts, "")
	payload := url.Values{}
	payload.Set("session_id", "ghost")
	payload.Set("timestamp", ts)
	payload.Set("order_id", orderID)
	payload.Set("x_amount", "10.00")
	payload.Set("x_trans_id", "60002")
	payload.Set("x_MD5_Hash", gatewayHash("60002", "10.00"))

	rr := postForm(t, h.Relay, "/authnet/relay-response", payload)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "?id="+url.QueryEscape(orderID))
}

func TestRelayHookFailurePersistsHookFields(t *testing.T) {
	store := session.NewMemoryStore()
	h := newHandler(store)
	h.Processor = dpm.OrderProcessorFunc(func(_ context.Context, order dpm.Record) (string, error) {
		order["x_invoice"] = "INV-1"
		return "", errors.New("fulfilment down")
	})

	issued := issueFingerprint(t, h, url.Values{"x_amount": {"12.34"}})
	rr := postForm(t, h.Relay, "/authnet/relay-response", relayPayload(issued, "60003"))
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	require.Contains(t, rr.Body.String(), "HOOK_ERROR")

	sess, err := store.Get(context.Background(), testSessionID)
	require.NoError(t, err)
	require.Equal(t, "INV-1", sess.Orders[issued["order_id"]]["x_invoice"])
}

func TestRelayCustomFieldProjection(t *testing.T) {
	store := session.NewMemoryStore()
	h := newHandler(store)
	h.Projector = dpm.FieldProjectorFunc(func(data dpm.Record) string {
		return data["x_cust_id"]
	})

	issued := issueFingerprint(t, h, url.Values{
		"x_amount":  {"12.34"},
		"x_cust_id": {"cust-42"},
	})
	require.Equal(t, testSigner.FormDigest(testSessionID, "12.34", "1700000000", "cust-42"), issued["order_id"])

	// The callback echoes the projected field, so the digest still closes.
	payload := relayPayload(issued, "60004")
	payload.Set("x_cust_id", "cust-42")
	rr := postForm(t, h.Relay, "/authnet/relay-response", payload)
	require.Equal(t, http.StatusOK, rr.Code)

	// Dropping it breaks the digest.
	payload.Del("x_cust_id")
	rr = postForm(t, h.Relay, "/authnet/relay-response", payload)
	require.Equal(t, http.StatusForbidden, rr.Code)
}

func TestThankYouRendersStoredOrder(t *testing.T) {
	store := session.NewMemoryStore()
	h := newHandler(store)

	issued := issueFingerprint(t, h, url.Values{
		"x_amount":    {"12.34"},
		"description": {"Deluxe Widget"},
	})

	req := httptest.NewRequest(http.MethodGet, "/thank-you?id="+url.QueryEscape(issued["order_id"]), nil)
	rr := httptest.NewRecorder()
	h.ThankYou(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "Deluxe Widget")
	require.Contains(t, rr.Body.String(), "12.34")
}

func TestThankYouUnknownOrder(t *testing.T) {
	h := newHandler(session.NewMemoryStore())

	req := httptest.NewRequest(http.MethodGet, "/thank-you?id=nope", nil)
	rr := httptest.NewRecorder()
	h.ThankYou(rr, req)
	require.Equal(t, http.StatusNotFound, rr.Code)
}
