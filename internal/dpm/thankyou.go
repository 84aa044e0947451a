package dpm

import (
	"html"
	"net/http"
	"sort"
	"strings"

	"github.com/merchkit/dpm-relay/internal/common"
)

// ThankYou renders the finalized order referenced by ?id= from the caller's
// own session. Orders from other sessions are unreachable by construction,
// the lookup key is the caller's session id.
func (h *Handler) ThankYou(w http.ResponseWriter, r *http.Request) {
	orderID := strings.TrimSpace(r.URL.Query().Get("id"))
	sid := h.sessionID(r)
	if orderID != "" && sid != "" && h.Store != nil {
		sess, err := h.Store.Get(r.Context(), sid)
		if err == nil && sess != nil {
			if order, ok := sess.Orders[orderID]; ok {
				common.HTML(w, http.StatusOK, thankYouDocument(order))
				return
			}
		}
		if err != nil {
			h.Logger.Warn().Err(err).Str("session_id", sid).Msg("load session")
		}
	}
	common.HTML(w, http.StatusNotFound,
		"<html><body>order "+html.EscapeString(orderID)+" not found</body></html>")
}

func thankYouDocument(order Record) string {
	keys := make([]string, 0, len(order))
	for k := range order {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("<html><body><h2>Thank you.</h2><table>")
	for _, k := range keys {
		b.WriteString("<tr><td>")
		b.WriteString(html.EscapeString(k))
		b.WriteString("</td><td>")
		b.WriteString(html.EscapeString(order[k]))
		b.WriteString("</td></tr>")
	}
	b.WriteString("</table></body></html>")
	return b.String()
}
