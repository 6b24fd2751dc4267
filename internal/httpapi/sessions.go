package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"kedaipos/backend/internal/domain"
)

func (a *API) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req domain.OpenSessionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	view, err := a.service.OpenSession(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"session": view})
}

func (a *API) handleGetSession(w http.ResponseWriter, r *http.Request) {
	a.writeSession(w)(a.service.GetSession(r.Context(), r.PathValue("id")))
}

func (a *API) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	if err := a.service.DiscardSession(r.Context(), r.PathValue("id")); err != nil {
		a.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddItem(w http.ResponseWriter, r *http.Request) {
	var req domain.AddItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.writeSession(w)(a.service.AddItem(r.Context(), r.PathValue("id"), req))
}

func (a *API) handleUpdateQuantity(w http.ResponseWriter, r *http.Request) {
	index, ok := lineIndex(w, r)
	if !ok {
		return
	}
	var req domain.UpdateQuantityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.writeSession(w)(a.service.UpdateQuantity(r.Context(), r.PathValue("id"), index, req.Delta))
}

func (a *API) handleRemoveItem(w http.ResponseWriter, r *http.Request) {
	index, ok := lineIndex(w, r)
	if !ok {
		return
	}
	a.writeSession(w)(a.service.RemoveItem(r.Context(), r.PathValue("id"), index))
}

func (a *API) handleClearCart(w http.ResponseWriter, r *http.Request) {
	var req domain.ClearCartRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.writeSession(w)(a.service.ClearCart(r.Context(), r.PathValue("id"), req.Confirm))
}

func (a *API) handleBeginPayment(w http.ResponseWriter, r *http.Request) {
	a.writeSession(w)(a.service.BeginPayment(r.Context(), r.PathValue("id")))
}

func (a *API) handlePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req domain.PaymentMethodRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.writeSession(w)(a.service.SelectPaymentMethod(r.Context(), r.PathValue("id"), req.Method))
}

func (a *API) handleTender(w http.ResponseWriter, r *http.Request) {
	var req domain.TenderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.writeSession(w)(a.service.Tender(r.Context(), r.PathValue("id"), req.AmountPaid))
}

func (a *API) handleCancelPayment(w http.ResponseWriter, r *http.Request) {
	a.writeSession(w)(a.service.CancelPayment(r.Context(), r.PathValue("id")))
}

func (a *API) handleCompleteSale(w http.ResponseWriter, r *http.Request) {
	var req domain.CompleteSaleRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
	}
	a.writeSession(w)(a.service.CompleteSale(r.Context(), r.PathValue("id"), req))
}

// writeSession returns a sink for the (view, error) pair every session
// operation produces.
func (a *API) writeSession(w http.ResponseWriter) func(domain.SessionView, error) {
	return func(view domain.SessionView, err error) {
		if err != nil {
			a.writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"session": view})
	}
}

func lineIndex(w http.ResponseWriter, r *http.Request) (int, bool) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, errors.New("line index must be a non-negative integer"))
		return 0, false
	}
	return index, true
}
