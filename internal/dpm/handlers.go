package dpm

import (
	"context"
	"html"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/merchkit/dpm-relay/internal/common"
	"github.com/merchkit/dpm-relay/internal/obs"
)

// Small defense against dumb form bots: the browser script stamps this field
// before submitting, and submissions without it are dropped on the floor.
const (
	antiBotField = "validated"
	antiBotValue = "jawohl!"
)

// Handler implements the three HTTP endpoints of the Direct Post Method
// handshake. The session store and the processing hooks are injected at
// construction; both are optional and degrade to stateless behaviour.
type Handler struct {
	Signer    Signer
	Store     Store
	Processor OrderProcessor
	Projector FieldProjector

	// SessionID extracts the caller's session identifier from the request.
	SessionID func(*http.Request) string

	// AppURL is the external base URL; relative paths below are resolved
	// against it. A path already carrying a scheme is used verbatim.
	AppURL       string
	RelayPath    string
	ThankYouPath string

	Logger zerolog.Logger

	// Now is overridable for tests. Nil means time.Now.
	Now func() time.Time
}

// Fingerprint answers the browser's pre-submission request with the signed
// values it needs to post the form directly to the gateway. The order
// snapshot is persisted before responding, but persistence failure does not
// fail the request: the user still needs the fingerprint to pay.
func (h *Handler) Fingerprint(w http.ResponseWriter, r *http.Request) {
	data := formRecord(r)
	if data[antiBotField] != antiBotValue {
		h.countFingerprint("rejected")
		common.JSONError(w, http.StatusForbidden, "ACCESS_DENIED", "access denied", nil)
		return
	}

	data["session_id"] = h.sessionID(r)
	data["x_login"] = h.Signer.LoginID
	data["x_relay_url"] = h.absoluteURL(h.RelayPath)
	data["x_amount"] = NormalizeAmount(data["x_amount"])

	// timestamp and sequence travel to the gateway as x_fp_* fields, which
	// the gateway does not echo back; the unprefixed copies survive the
	// round trip inside the form and feed relay validation.
	ts := h.timestamp()
	data["timestamp"], data["x_fp_timestamp"] = ts, ts
	orderID := h.formDigest(data)
	data["order_id"], data["x_fp_sequence"] = orderID, orderID

	data["x_fp_hash"] = h.Signer.Fingerprint(orderID, ts, data["x_amount"])

	h.saveOrder(r.Context(), data)
	h.countFingerprint("ok")
	common.JSON(w, http.StatusOK, data)
}

// NoCharge performs single-step order processing for zero-amount orders,
// bypassing the gateway. The nocharge flag is trusted as submitted; the
// amount is not re-derived server-side.
func (h *Handler) NoCharge(w http.ResponseWriter, r *http.Request) {
	data := formRecord(r)
	if data["nocharge"] == "" || data[antiBotField] != antiBotValue {
		h.countNoCharge("rejected")
		common.JSONError(w, http.StatusForbidden, "ACCESS_DENIED", "access denied", nil)
		return
	}

	data["session_id"] = h.sessionID(r)
	data["timestamp"] = h.timestamp()
	data["order_id"] = h.formDigest(data)
	data["x_auth_code"] = "no-charge"
	data["x_response_code"] = "1"

	h.saveOrder(r.Context(), data)

	redirect, err := h.processor().ProcessOrder(r.Context(), data)
	if err != nil {
		h.countNoCharge("hook_error")
		h.Logger.Error().Err(err).Str("order_id", data["order_id"]).Msg("process no-charge order")
		common.JSONError(w, http.StatusInternalServerError, "HOOK_ERROR", err.Error(), nil)
		return
	}
	if redirect == "" {
		redirect = h.thankYouURL(data)
	}
	h.countNoCharge("ok")
	common.JSON(w, http.StatusOK, map[string]string{"url": redirect})
}

// Relay receives the gateway's asynchronous callback. Both integrity checks
// must pass before anything is persisted or processed; after that, the order
// is merged with the stored snapshot, handed to the processing hook, and
// persisted a second time so hook-added fields survive even a hook failure.
func (h *Handler) Relay(w http.ResponseWriter, r *http.Request) {
	data := formRecord(r)

	sigOK := h.Signer.VerifyGatewayHash(data["x_trans_id"], data["x_amount"], data["x_MD5_Hash"])
	digestOK := data["order_id"] == h.formDigest(data)
	data["x_MD5_Hash_Validated"] = strconv.FormatBool(sigOK)
	data["formData_Validated"] = strconv.FormatBool(digestOK)

	if !sigOK || !digestOK {
		result := "signature_rejected"
		if sigOK {
			result = "digest_rejected"
		}
		h.countRelay(result)
		h.Logger.Warn().
			Bool("signature_ok", sigOK).
			Bool("digest_ok", digestOK).
			Str("x_trans_id", data["x_trans_id"]).
			Msg("relay callback rejected")
		common.JSONError(w, http.StatusForbidden, "ACCESS_DENIED", "access denied", nil)
		return
	}

	order := h.mergePayment(r.Context(), data)

	redirect, hookErr := h.processor().ProcessOrder(r.Context(), order)

	// Persist again before deciding the response, so whatever the hook added
	// to the order is kept even when the hook itself failed.
	saved := h.mergePayment(r.Context(), order)

	if hookErr != nil {
		h.countRelay("hook_error")
		h.Logger.Error().Err(hookErr).Str("order_id", order["order_id"]).Msg("process relayed order")
		common.JSONError(w, http.StatusInternalServerError, "HOOK_ERROR", hookErr.Error(), nil)
		return
	}
	if redirect == "" {
		redirect = h.thankYouURL(saved)
	}
	h.countRelay("ok")
	common.HTML(w, http.StatusOK, redirectDocument(redirect))
}

// saveOrder stores the record under its session, creating the session object
// on first use. Failures are logged and swallowed.
func (h *Handler) saveOrder(ctx context.Context, data Record) {
	if h.Store == nil {
		return
	}
	sid := data["session_id"]
	if sid == "" {
		return
	}
	sess, err := h.Store.Get(ctx, sid)
	if err != nil {
		h.Logger.Warn().Err(err).Str("session_id", sid).Msg("load session")
		sess = nil
	}
	if sess == nil {
		sess = &Session{}
	}
	if sess.Orders == nil {
		sess.Orders = map[string]Record{}
	}
	sess.Orders[data["order_id"]] = data
	if err := h.Store.Set(ctx, sid, sess); err != nil {
		h.countSaveFailure()
		h.Logger.Warn().Err(err).Str("session_id", sid).Str("order_id", data["order_id"]).Msg("save order")
	}
}

// mergePayment merges the callback payload into the order stored at issuance
// and writes the session back. Payments can arrive without a live session;
// in that case (or on any store error) the payload alone carries the order.
func (h *Handler) mergePayment(ctx context.Context, payload Record) Record {
	if h.Store == nil {
		return payload
	}
	sid := payload["session_id"]
	sess, err := h.Store.Get(ctx, sid)
	if err != nil {
		h.Logger.Warn().Err(err).Str("session_id", sid).Msg("load session")
		return payload
	}
	if sess == nil || sess.Orders == nil {
		return payload
	}
	order, ok := sess.Orders[payload["order_id"]]
	if !ok {
		return payload
	}
	order.Merge(payload)
	sess.Orders[payload["order_id"]] = order
	if err := h.Store.Set(ctx, sid, sess); err != nil {
		h.countSaveFailure()
		h.Logger.Warn().Err(err).Str("session_id", sid).Str("order_id", payload["order_id"]).Msg("save merged order")
	}
	return order
}

func (h *Handler) formDigest(data Record) string {
	return h.Signer.FormDigest(data["session_id"], data["x_amount"], data["timestamp"], h.projector().ProjectFields(data))
}

func (h *Handler) thankYouURL(data Record) string {
	return h.absoluteURL(h.ThankYouPath) + "?id=" + url.QueryEscape(data["order_id"])
}

func (h *Handler) absoluteURL(path string) string {
	if strings.HasPrefix(strings.ToLower(path), "http") {
		return path
	}
	return h.AppURL + path
}

func (h *Handler) sessionID(r *http.Request) string {
	if h.SessionID == nil {
		return ""
	}
	return h.SessionID(r)
}

func (h *Handler) processor() OrderProcessor {
	if h.Processor == nil {
		return NopProcessor{}
	}
	return h.Processor
}

func (h *Handler) projector() FieldProjector {
	if h.Projector == nil {
		return EmptyProjection{}
	}
	return h.Projector
}

func (h *Handler) timestamp() string {
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	return strconv.FormatInt(now.Unix(), 10)
}

func (h *Handler) countFingerprint(result string) {
	if obs.FingerprintTotal != nil {
		obs.FingerprintTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) countNoCharge(result string) {
	if obs.NoChargeTotal != nil {
		obs.NoChargeTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) countRelay(result string) {
	if obs.RelayTotal != nil {
		obs.RelayTotal.WithLabelValues(result).Inc()
	}
}

func (h *Handler) countSaveFailure() {
	if obs.OrderSaveFailures != nil {
		obs.OrderSaveFailures.Inc()
	}
}

// formRecord flattens the posted form into a record, keeping the first value
// of repeated fields. A malformed body yields an empty record, which fails
// validation downstream instead of erroring here.
func formRecord(r *http.Request) Record {
	_ = r.ParseForm()
	data := make(Record, len(r.PostForm))
	for key, values := range r.PostForm {
		if len(values) > 0 {
			data[key] = values[0]
		}
	}
	return data
}

// redirectDocument renders the script-based redirect the gateway shows the
// paying customer, with a meta-refresh and a plain link as fallbacks.
func redirectDocument(target string) string {
	escaped := html.EscapeString(target)
	return "<html><head>" +
		`<script type="text/javascript" charset="utf-8">window.location=` + strconv.Quote(target) + `;</script>` +
		`<noscript><meta http-equiv="refresh" content="0;url=` + escaped + `"></noscript>` +
		`</head><body>Please go to <a href="` + escaped + `">` + escaped + `</a></body></html>`
}
