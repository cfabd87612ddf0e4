package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"masterhand/internal/payment"
	"masterhand/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type submitOfferRequest struct {
	Price             int64  `json:"price"`
	EstimatedDuration int    `json:"estimated_duration"`
	Notes             string `json:"notes"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

type createBookingRequest struct {
	OfferID       int64  `json:"offer_id"`
	PaymentMethod string `json:"payment_method"`
}

func (s *Server) handleSubmitOffer(w http.ResponseWriter, r *http.Request) {
	requestID, ok := pathID(w, r)
	if !ok {
		return
	}
	var body submitOfferRequest
	if !decodeBody(w, r, &body) {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	offer, err := s.svc.Offers.SubmitOffer(r.Context(), p.UserID, requestID, service.OfferInput{
		Price:             body.Price,
		EstimatedDuration: body.EstimatedDuration,
		Notes:             body.Notes,
	})
	if err != nil {
		writeServiceError(w, r, err, nil)
		return
	}
	writeData(w, http.StatusCreated, offer)
}

func (s *Server) handleAcceptOffer(w http.ResponseWriter, r *http.Request) {
	offerID, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	res, err := s.svc.Offers.Accept(r.Context(), p.UserID, offerID)
	if err != nil {
		writeServiceError(w, r, err, nil)
		return
	}
	writeData(w, http.StatusOK, map[string]any{
		"offer":          res.Offer,
		"rejected_count": len(res.Rejected),
	})
}

func (s *Server) handleRejectOffer(w http.ResponseWriter, r *http.Request) {
	offerID, ok := pathID(w, r)
	if !ok {
		return
	}
	var body reasonRequest
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	offer, err := s.svc.Offers.Reject(r.Context(), p.UserID, offerID, body.Reason)
	if err != nil {
		writeServiceError(w, r, err, nil)
		return
	}
	writeData(w, http.StatusOK, offer)
}

func (s *Server) handleWithdrawOffer(w http.ResponseWriter, r *http.Request) {
	offerID, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	offer, err := s.svc.Offers.Withdraw(r.Context(), p.UserID, offerID)
	if err != nil {
		writeServiceError(w, r, err, nil)
		return
	}
	writeData(w, http.StatusOK, offer)
}

func (s *Server) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var body createBookingRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.OfferID <= 0 {
		writeMessage(w, http.StatusBadRequest, "offer_id is required")
		return
	}
	p, _ := PrincipalFrom(r.Context())
	res, err := s.svc.Bookings.CreateAndInitiatePayment(r.Context(), p.UserID, body.OfferID, strings.TrimSpace(body.PaymentMethod))
	if err != nil {
		// a failed initialization still names the pending booking and payment
		var data any
		if res != nil {
			data = res
		}
		writeServiceError(w, r, err, data)
		return
	}
	writeData(w, http.StatusCreated, res)
}

func (s *Server) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	var body reasonRequest
	if !decodeOptionalBody(w, r, &body) {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	res, err := s.svc.Cancellations.CancelForCustomer(r.Context(), p.UserID, bookingID, body.Reason)
	if err != nil {
		writeServiceError(w, r, err, nil)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleCompleteBooking(w http.ResponseWriter, r *http.Request) {
	bookingID, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	booking, err := s.svc.Bookings.CompleteBooking(r.Context(), p.UserID, bookingID)
	if err != nil {
		writeServiceError(w, r, err, nil)
		return
	}
	writeData(w, http.StatusOK, booking)
}

func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	res, err := s.svc.Bookings.VerifyPayment(r.Context(), p.UserID, paymentID)
	if err != nil {
		writeServiceError(w, r, err, nil)
		return
	}
	writeData(w, http.StatusOK, res)
}

func (s *Server) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	paymentID, ok := pathID(w, r)
	if !ok {
		return
	}
	p, _ := PrincipalFrom(r.Context())
	if err := s.svc.Bookings.DeletePayment(r.Context(), p.UserID, paymentID); err != nil {
		writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "payment deleted"})
}

// handleWebhook answers 200 for every handled callback, including business
// failures, so the gateway stops redelivering. Only a bad signature (401) or
// an internal error (500) asks for attention or a retry.
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var cb payment.Callback
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&cb); err != nil {
		writeJSON(w, http.StatusOK, envelope{Success: false, Message: "invalid callback payload"})
		return
	}
	if cb.HMAC == "" {
		cb.HMAC = r.URL.Query().Get("hmac")
	}

	res, err := s.svc.Webhooks.Process(r.Context(), &cb)
	if err != nil {
		switch service.KindOf(err) {
		case service.KindSignatureInvalid:
			writeMessage(w, http.StatusUnauthorized, service.MessageOf(err))
		case service.KindInternal:
			zerolog.Ctx(r.Context()).Error().Err(err).Str("order_id", cb.OrderID).Msg("webhook processing failed")
			writeMessage(w, http.StatusInternalServerError, "internal error")
		default:
			zerolog.Ctx(r.Context()).Warn().Err(err).Str("order_id", cb.OrderID).Msg("webhook not applied")
			writeJSON(w, http.StatusOK, envelope{Success: false, Message: service.MessageOf(err)})
		}
		return
	}
	writeData(w, http.StatusOK, res)
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeMessage(w, http.StatusBadRequest, "invalid id")
		return 0, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// decodeOptionalBody accepts an empty body.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeMessage(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

func statusFor(kind service.Kind) int {
	switch kind {
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindInvalidState:
		return http.StatusConflict
	case service.KindValidationFailure:
		return http.StatusBadRequest
	case service.KindProviderFailure:
		return http.StatusBadGateway
	case service.KindSignatureInvalid:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func writeServiceError(w http.ResponseWriter, r *http.Request, err error, data any) {
	kind := service.KindOf(err)
	if kind == service.KindInternal || kind == service.KindProviderFailure {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	body := envelope{Success: false, Message: service.MessageOf(err)}
	if data != nil {
		body.Data = data
	}
	writeJSON(w, statusFor(kind), body)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeMessage(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Message: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}
