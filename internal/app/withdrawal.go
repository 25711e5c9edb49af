package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/moneypay/ledger-service/internal/commission"
	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/ledger"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
)

// WithdrawInput is a direct withdrawal a user makes at an agent's counter.
type WithdrawInput struct {
	UserID    int64
	AgentCode string
	Amount    decimal.Decimal
}

// Withdraw debits the user amount plus both commissions and credits the agent
// amount plus the agent commission. The company commission is retained.
func (s *Service) Withdraw(ctx context.Context, in WithdrawInput) (*domain.Transaction, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	user, err := s.account(ctx, in.UserID, store.ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	agent, err := s.agentByCode(ctx, in.AgentCode)
	if err != nil {
		return nil, err
	}
	if agent.ID == user.ID {
		return nil, ErrInvalidAgent
	}

	q, err := s.quote(ctx, in.Amount, commission.Withdrawal)
	if err != nil {
		return nil, err
	}
	totalDebit := in.Amount.Add(q.AgentCommission).Add(q.CompanyCommission)
	agentCredit := in.Amount.Add(q.AgentCommission)

	var record *domain.Transaction
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		accs, err := ledger.Lock(ctx, tx, user.ID, agent.ID)
		if err != nil {
			return err
		}
		from, to := accs[user.ID], accs[agent.ID]
		if from == nil || to == nil {
			return store.ErrAccountNotFound
		}

		mv, err := ledger.Transfer(ctx, tx, from, to, totalDebit, agentCredit)
		if err != nil {
			return err
		}

		record = &domain.Transaction{
			Reference:                domain.NewReference(),
			SenderID:                 from.ID,
			ReceiverID:               &to.ID,
			Amount:                   in.Amount,
			Type:                     domain.TxTypeUserWithdraw,
			Status:                   domain.TxStatusCompleted,
			Description:              "Cash withdrawal at agent " + derefString(to.AgentCode),
			Commission:               q.AgentCommission,
			CommissionPercent:        q.Rate.AgentPercent,
			AgentCommission:          q.AgentCommission,
			AgentCommissionPercent:   q.Rate.AgentPercent,
			CompanyCommission:        q.CompanyCommission,
			CompanyCommissionPercent: q.Rate.CompanyPercent,
			SenderBalance:            nullDecimal(mv.DebitBalance),
			ReceiverBalance:          nullDecimal(mv.CreditBalance),
			SenderLocation:           from.CurrentLocation,
			ReceiverLocation:         to.CurrentLocation,
		}
		if err := tx.InsertTransaction(ctx, record); err != nil {
			return err
		}

		fx := newEffects()
		fx.notify(from, "Withdrawal Initiated",
			fmt.Sprintf("Withdrawal of %s initiated. Meet agent %s", s.money(in.Amount), to.Name),
			domain.NotificationTransaction, &record.ID, nil)
		fx.notify(to, "Withdrawal Request",
			fmt.Sprintf("%s requested withdrawal of %s", from.Name, s.money(in.Amount)),
			domain.NotificationTransaction, &record.ID, nil)
		fx.balanceChanged(from, to)
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal completed", "transaction_id", record.Reference, "user_id", user.ID,
		"agent_id", agent.ID, "amount", domain.Cents(in.Amount))
	return record, nil
}

// RequestWithdrawalInput is an agent asking a user to approve a withdrawal.
type RequestWithdrawalInput struct {
	AgentID   int64
	UserPhone string
	Amount    decimal.Decimal
}

// RequestWithdrawal creates a pending request with commission locked in. The
// balance check here is advisory; approval re-checks under lock.
func (s *Service) RequestWithdrawal(ctx context.Context, in RequestWithdrawalInput) (*domain.WithdrawalRequest, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	agent, err := s.account(ctx, in.AgentID, store.ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	if agent.Role != domain.RoleAgent {
		return nil, fmt.Errorf("%w: only agents can request withdrawals", ErrInvalidAgent)
	}
	user, err := s.accountByPhone(ctx, in.UserPhone, store.ErrAccountNotFound)
	if err != nil {
		return nil, err
	}
	if user.ID == agent.ID {
		return nil, invalidInput("agent cannot request a withdrawal from itself")
	}

	q, err := s.quote(ctx, in.Amount, commission.Withdrawal)
	if err != nil {
		return nil, err
	}
	req := &domain.WithdrawalRequest{
		Kind:                     domain.WithdrawalKindUser,
		RequesterID:              agent.ID,
		PayerID:                  user.ID,
		Amount:                   in.Amount,
		AgentCommission:          q.AgentCommission,
		AgentCommissionPercent:   q.Rate.AgentPercent,
		CompanyCommission:        q.CompanyCommission,
		CompanyCommissionPercent: q.Rate.CompanyPercent,
		Status:                   domain.RequestStatusPending,
	}
	if user.Balance.LessThan(req.TotalDebit()) {
		return nil, &ledger.InsufficientBalanceError{AccountID: user.ID, Balance: user.Balance, Required: req.TotalDebit()}
	}

	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		if err := tx.InsertWithdrawalRequest(ctx, req); err != nil {
			return err
		}
		fx := newEffects()
		fx.notify(user, "Withdrawal Request",
			fmt.Sprintf("Agent %s requested %s withdrawal. Total cost: %s (includes %s agent fee + %s service fee)",
				agent.Name, s.money(req.Amount), s.money(req.TotalDebit()),
				s.money(req.AgentCommission), s.money(req.CompanyCommission)),
			domain.NotificationWithdrawalRequest, nil, &req.ID)
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("withdrawal requested", "request_id", req.ID, "agent_id", agent.ID, "user_id", user.ID,
		"amount", domain.Cents(req.Amount))
	return req, nil
}

// ApproveWithdrawalRequest settles a pending request on behalf of its payer.
// If the payer can no longer cover it, the request is rejected and a
// *ConflictError carrying the balance seen under lock is returned.
func (s *Service) ApproveWithdrawalRequest(ctx context.Context, requestID, approverID int64) (*domain.Transaction, error) {
	var (
		record   *domain.Transaction
		conflict *ConflictError
	)
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		req, err := tx.LockWithdrawalRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.PayerID != approverID {
			return forbidden("only the payer can approve this request")
		}
		if req.Status != domain.RequestStatusPending {
			return notPending("request", req.Status)
		}

		accs, err := ledger.Lock(ctx, tx, req.PayerID, req.RequesterID)
		if err != nil {
			return err
		}
		payer, requester := accs[req.PayerID], accs[req.RequesterID]
		if payer == nil || requester == nil {
			return store.ErrAccountNotFound
		}

		fx := newEffects()
		totalDebit := req.TotalDebit()
		if payer.Balance.LessThan(totalDebit) {
			now := s.now()
			reason := "insufficient balance at approval"
			req.Status = domain.RequestStatusRejected
			req.RejectedAt = &now
			req.Reason = &reason
			if err := tx.UpdateWithdrawalRequest(ctx, req); err != nil {
				return err
			}
			s.notifyRejected(fx, req, payer, requester)
			conflict = &ConflictError{
				Message:        "payer no longer has sufficient balance",
				Status:         req.Status,
				CurrentBalance: nullDecimal(payer.Balance),
				Required:       nullDecimal(totalDebit),
			}
			return s.flush(ctx, tx, fx)
		}

		mv, err := ledger.Transfer(ctx, tx, payer, requester, totalDebit, req.RequesterCredit())
		if err != nil {
			return err
		}

		record = &domain.Transaction{
			Reference:                domain.NewReference(),
			SenderID:                 payer.ID,
			ReceiverID:               &requester.ID,
			Amount:                   req.Amount,
			Type:                     requestTransactionType(req.Kind),
			Status:                   domain.TxStatusCompleted,
			Description:              requestDescription(req, payer, requester),
			Commission:               req.AgentCommission,
			CommissionPercent:        req.AgentCommissionPercent,
			AgentCommission:          req.AgentCommission,
			AgentCommissionPercent:   req.AgentCommissionPercent,
			CompanyCommission:        req.CompanyCommission,
			CompanyCommissionPercent: req.CompanyCommissionPercent,
			SenderBalance:            nullDecimal(mv.DebitBalance),
			ReceiverBalance:          nullDecimal(mv.CreditBalance),
			SenderLocation:           payer.CurrentLocation,
			ReceiverLocation:         requester.CurrentLocation,
			WithdrawalRequestID:      &req.ID,
		}
		if err := tx.InsertTransaction(ctx, record); err != nil {
			return err
		}

		now := s.now()
		req.Status = domain.RequestStatusApproved
		req.ApprovedAt = &now
		req.TransactionID = &record.ID
		if err := tx.UpdateWithdrawalRequest(ctx, req); err != nil {
			return err
		}

		s.notifyApproved(fx, req, record, payer, requester)
		fx.balanceChanged(payer, requester)
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		s.logger.Warn("withdrawal request auto-rejected at approval", "request_id", requestID,
			"current_balance", domain.Cents(conflict.CurrentBalance.Decimal), "required", domain.Cents(conflict.Required.Decimal))
		return nil, conflict
	}

	s.logger.Info("withdrawal request approved", "request_id", requestID, "transaction_id", record.Reference)
	return record, nil
}

// RejectWithdrawalRequest closes a pending request without moving money.
func (s *Service) RejectWithdrawalRequest(ctx context.Context, requestID, approverID int64, reason string) (*domain.WithdrawalRequest, error) {
	var out *domain.WithdrawalRequest
	err := s.repo.InTx(ctx, func(tx store.Tx) error {
		req, err := tx.LockWithdrawalRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.PayerID != approverID {
			return forbidden("only the payer can reject this request")
		}
		if req.Status != domain.RequestStatusPending {
			return notPending("request", req.Status)
		}

		accs, err := ledger.Lock(ctx, tx, req.PayerID, req.RequesterID)
		if err != nil {
			return err
		}
		payer, requester := accs[req.PayerID], accs[req.RequesterID]
		if payer == nil || requester == nil {
			return store.ErrAccountNotFound
		}

		now := s.now()
		req.Status = domain.RequestStatusRejected
		req.RejectedAt = &now
		if reason = strings.TrimSpace(reason); reason != "" {
			req.Reason = &reason
		}
		if err := tx.UpdateWithdrawalRequest(ctx, req); err != nil {
			return err
		}

		fx := newEffects()
		s.notifyRejected(fx, req, payer, requester)
		out = req
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("withdrawal request rejected", "request_id", requestID)
	return out, nil
}

func (s *Service) notifyApproved(fx *effects, req *domain.WithdrawalRequest, record *domain.Transaction, payer, requester *domain.Account) {
	switch req.Kind {
	case domain.WithdrawalKindAdminCashout:
		fx.notify(payer, "Cash-Out Approved",
			fmt.Sprintf("You approved a cash-out of %s to admin %s", s.money(req.Amount), requester.Name),
			domain.NotificationTransaction, &record.ID, &req.ID)
		fx.notify(requester, "Cash-Out Approved",
			fmt.Sprintf("Agent %s approved your cash-out request of %s", payer.Name, s.money(req.Amount)),
			domain.NotificationTransaction, &record.ID, &req.ID)
	default:
		fx.notify(payer, "Withdrawal Approved",
			fmt.Sprintf("Your withdrawal of %s to %s has been approved", s.money(req.Amount), requester.Name),
			domain.NotificationTransaction, &record.ID, &req.ID)
		fx.notify(requester, "Withdrawal Approved",
			fmt.Sprintf("%s approved your withdrawal request of %s", payer.Name, s.money(req.Amount)),
			domain.NotificationTransaction, &record.ID, &req.ID)
	}
}

func (s *Service) notifyRejected(fx *effects, req *domain.WithdrawalRequest, payer, requester *domain.Account) {
	label := "withdrawal"
	if req.Kind == domain.WithdrawalKindAdminCashout {
		label = "cash-out"
	}
	payerMessage := fmt.Sprintf("The %s request of %s has been rejected", label, s.money(req.Amount))
	if req.Reason != nil {
		payerMessage += ": " + *req.Reason
	}
	fx.notify(payer, "Request Rejected", payerMessage, domain.NotificationWithdrawalRequest, nil, &req.ID)
	fx.notify(requester, "Request Rejected",
		fmt.Sprintf("%s rejected your %s request of %s", payer.Name, label, s.money(req.Amount)),
		domain.NotificationWithdrawalRequest, nil, &req.ID)
}

func (s *Service) agentByCode(ctx context.Context, code string) (*domain.Account, error) {
	agent, err := s.repo.FindAccountByAgentCode(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, fmt.Errorf("agent not found: %w", store.ErrAccountNotFound)
		}
		return nil, fmt.Errorf("failed to find agent: %w", err)
	}
	if agent.Role != domain.RoleAgent {
		return nil, ErrInvalidAgent
	}
	return agent, nil
}

func requestTransactionType(kind string) string {
	if kind == domain.WithdrawalKindAdminCashout {
		return domain.TxTypeAgentCashOutMoney
	}
	return domain.TxTypeUserWithdraw
}

func requestDescription(req *domain.WithdrawalRequest, payer, requester *domain.Account) string {
	if req.Kind == domain.WithdrawalKindAdminCashout {
		return fmt.Sprintf("Admin cash-out from agent %s", payer.Name)
	}
	return fmt.Sprintf("Withdrawal requested by agent %s", requester.Name)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
