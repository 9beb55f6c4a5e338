package v1handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"mailscan/internal/output"
	"mailscan/pkg/domain"
	"mailscan/pkg/serrors"
)

// Scan runs a scan for the email query parameter. The optional methods
// parameter is a comma separated list of method names; empty means all.
func (h Handler) Scan(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	email := q.Get("email")
	if email == "" {
		h.writeError(w, r, serrors.With(serrors.ErrBadRequest, "missing email parameter"))

		return
	}
	mask, err := domain.ParseMethods(q.Get("methods"))
	if err != nil {
		h.writeError(w, r, err)

		return
	}
	req, err := domain.NewScanRequest(email, mask)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	res, err := h.deps.Scanner.Scan(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)

		return
	}

	body, err := output.Marshal(res)
	if err != nil {
		h.writeError(w, r, err)

		return
	}
	writeJSON(w, http.StatusOK, body)
}

// Providers lists the domains of the builtin provider table.
func (h Handler) Providers(w http.ResponseWriter, r *http.Request) {
	if h.deps.Providers == nil {
		h.writeError(w, r, serrors.With(serrors.ErrUnavailable, "provider table is not loaded"))

		return
	}

	domains := h.deps.Providers.Domains()

	var e jx.Encoder
	e.ObjStart()
	e.FieldStart("count")
	e.Int(len(domains))
	e.FieldStart("domains")
	e.ArrStart()
	for _, d := range domains {
		e.Str(d)
	}
	e.ArrEnd()
	e.ObjEnd()

	writeJSON(w, http.StatusOK, e.Bytes())
}
