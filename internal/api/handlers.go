package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"rabbitluck-bot/internal/ledger"
	"rabbitluck-bot/internal/models"
	"rabbitluck-bot/internal/referral"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type createOrderRequest struct {
	UserID  string  `json:"user_id" validate:"omitempty,max=64"`
	Address string  `json:"address" validate:"required,tonaddr"`
	Amount  float64 `json:"amount" validate:"gte=0"`
	Hash    string  `json:"hash" validate:"max=1024"`
}

type createUserRequest struct {
	UserID       string `json:"userid" validate:"required,max=64"`
	ReferralCode string `json:"referral_code" validate:"max=64"`
}

type bindAddressRequest struct {
	UserID  string `json:"userid" validate:"required,max=64"`
	Address string `json:"address" validate:"required,tonaddr"`
}

type balanceResponse struct {
	UserID    string  `json:"user_id"`
	Balance   float64 `json:"balance"`
	CardCount int64   `json:"card_count"`
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(dst); err != nil {
		jsonError(w, http.StatusBadRequest, errors.New("invalid JSON input"))
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		jsonError(w, http.StatusBadRequest, err)
		return false
	}
	return true
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !s.decode(w, r, &req) {
		return
	}

	order := &models.Order{
		UserID:          req.UserID,
		Address:         strings.TrimSpace(req.Address),
		Amount:          req.Amount,
		TransactionHash: req.Hash,
	}
	if err := s.ledger.CreateOrder(r.Context(), order); err != nil {
		s.log.WithError(err).Error("failed to create order")
		jsonError(w, http.StatusInternalServerError, errors.New("failed to create order"))
		return
	}

	s.log.WithFields(logrus.Fields{"order_id": order.ID, "address": order.Address}).Info("order created")
	jsonSuccess(w, map[string]any{"message": "Order created successfully", "order": order})
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errors.New("invalid order id"))
		return
	}

	order, err := s.ledger.GetOrder(r.Context(), uint(id))
	switch {
	case errors.Is(err, ledger.ErrOrderNotFound):
		jsonError(w, http.StatusNotFound, errors.New("order not found"))
		return
	case err != nil:
		s.log.WithError(err).WithField("order_id", id).Error("failed to load order")
		jsonError(w, http.StatusInternalServerError, errors.New("unable to load order"))
		return
	}
	jsonSuccess(w, order)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	if s.referrals == nil {
		jsonError(w, http.StatusNotImplemented, errors.New("registration is not enabled"))
		return
	}
	var req createUserRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.referrals.Register(r.Context(), referral.Registration{
		AccountID:    req.UserID,
		ReferralCode: req.ReferralCode,
	})
	switch {
	case errors.Is(err, referral.ErrReferrerNotFound):
		jsonError(w, http.StatusNotFound, fmt.Errorf("referrer %s not found", req.ReferralCode))
		return
	case err != nil:
		s.log.WithError(err).WithField("user_id", req.UserID).Error("registration failed")
		jsonError(w, http.StatusInternalServerError, errors.New("registration failed"))
		return
	}
	jsonSuccess(w, map[string]any{"created": res.Created, "referred": res.Referred, "user": res.User})
}

func (s *Server) handleBindAddress(w http.ResponseWriter, r *http.Request) {
	var req bindAddressRequest
	if !s.decode(w, r, &req) {
		return
	}

	user, err := s.ledger.BindAddress(r.Context(), req.UserID, strings.TrimSpace(req.Address))
	switch {
	case errors.Is(err, ledger.ErrUserNotFound):
		jsonError(w, http.StatusNotFound, errors.New("user not found"))
		return
	case err != nil:
		s.log.WithError(err).WithField("user_id", req.UserID).Error("failed to bind address")
		jsonError(w, http.StatusInternalServerError, errors.New("unable to update user address"))
		return
	}
	jsonSuccess(w, map[string]any{"message": "User address binding successful", "user": user})
}

// handleBalance reads the live counters. Users whose counters are not yet
// in the store are answered from the ledger and seeded.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := chi.URLParam(r, "id")

	bal, hasBalance, err := s.counters.Balance(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("failed to read balance")
		jsonError(w, http.StatusInternalServerError, errors.New("unable to read balance"))
		return
	}
	cards, hasCards, err := s.counters.CardCount(ctx, userID)
	if err != nil {
		s.log.WithError(err).WithField("user_id", userID).Error("failed to read card count")
		jsonError(w, http.StatusInternalServerError, errors.New("unable to read card count"))
		return
	}

	if !hasBalance || !hasCards {
		user, err := s.ledger.FindUser(ctx, userID)
		if errors.Is(err, ledger.ErrUserNotFound) {
			jsonError(w, http.StatusNotFound, errors.New("user not found"))
			return
		}
		if err != nil {
			s.log.WithError(err).WithField("user_id", userID).Error("failed to load user")
			jsonError(w, http.StatusInternalServerError, errors.New("unable to load user"))
			return
		}
		if !hasBalance {
			bal = user.Balance
		}
		if !hasCards {
			cards = user.CardCount
		}
		if err := s.counters.Seed(ctx, userID, user.Balance, user.CardCount); err != nil {
			s.log.WithError(err).WithField("user_id", userID).Warn("failed to seed counters")
		}
	}

	jsonSuccess(w, balanceResponse{UserID: userID, Balance: bal, CardCount: cards})
}
