package app

import (
	"context"
	"fmt"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/ledger"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/shopspring/decimal"
)

// AdminCashoutInput is an admin pulling float from an agent.
type AdminCashoutInput struct {
	AdminID   int64
	AgentCode string
	Amount    decimal.Decimal
}

// AdminCashoutResult holds either the completed transaction (agent opted into
// automatic cash-outs) or the pending request awaiting the agent.
type AdminCashoutResult struct {
	Transaction *domain.Transaction
	Request     *domain.WithdrawalRequest
}

// AdminCashout moves Amount from the agent to the admin with no commission.
// The agent's auto_admin_cashout flag, read under lock, picks the branch.
func (s *Service) AdminCashout(ctx context.Context, in AdminCashoutInput) (*AdminCashoutResult, error) {
	if err := validateAmount(in.Amount); err != nil {
		return nil, err
	}
	admin, err := s.requireAdmin(ctx, in.AdminID)
	if err != nil {
		return nil, err
	}
	agent, err := s.agentByCode(ctx, in.AgentCode)
	if err != nil {
		return nil, err
	}

	result := &AdminCashoutResult{}
	err = s.repo.InTx(ctx, func(tx store.Tx) error {
		accs, err := ledger.Lock(ctx, tx, admin.ID, agent.ID)
		if err != nil {
			return err
		}
		adminAcc, agentAcc := accs[admin.ID], accs[agent.ID]
		if adminAcc == nil || agentAcc == nil {
			return store.ErrAccountNotFound
		}

		fx := newEffects()
		if agentAcc.AutoAdminCashout {
			mv, err := ledger.Transfer(ctx, tx, agentAcc, adminAcc, in.Amount, in.Amount)
			if err != nil {
				return err
			}
			record := &domain.Transaction{
				Reference:        domain.NewReference(),
				SenderID:         agentAcc.ID,
				ReceiverID:       &adminAcc.ID,
				Amount:           in.Amount,
				Type:             domain.TxTypeAgentCashOutMoney,
				Status:           domain.TxStatusCompleted,
				Description:      fmt.Sprintf("Admin cash-out from agent %s", agentAcc.Name),
				SenderBalance:    nullDecimal(mv.DebitBalance),
				ReceiverBalance:  nullDecimal(mv.CreditBalance),
				SenderLocation:   agentAcc.CurrentLocation,
				ReceiverLocation: adminAcc.CurrentLocation,
			}
			record.ZeroCommission()
			if err := tx.InsertTransaction(ctx, record); err != nil {
				return err
			}
			fx.notify(agentAcc, "Admin Cash-Out",
				fmt.Sprintf("Admin %s cashed out %s from your balance", adminAcc.Name, s.money(in.Amount)),
				domain.NotificationTransaction, &record.ID, nil)
			fx.notify(adminAcc, "Cash-Out Completed",
				fmt.Sprintf("You cashed out %s from agent %s", s.money(in.Amount), agentAcc.Name),
				domain.NotificationTransaction, &record.ID, nil)
			fx.balanceChanged(agentAcc, adminAcc)
			result.Transaction = record
			return s.flush(ctx, tx, fx)
		}

		if agentAcc.Balance.LessThan(in.Amount) {
			return &ledger.InsufficientBalanceError{AccountID: agentAcc.ID, Balance: agentAcc.Balance, Required: in.Amount}
		}
		req := &domain.WithdrawalRequest{
			Kind:                     domain.WithdrawalKindAdminCashout,
			RequesterID:              adminAcc.ID,
			PayerID:                  agentAcc.ID,
			Amount:                   in.Amount,
			AgentCommission:          decimal.Zero,
			AgentCommissionPercent:   decimal.Zero,
			CompanyCommission:        decimal.Zero,
			CompanyCommissionPercent: decimal.Zero,
			Status:                   domain.RequestStatusPending,
		}
		if err := tx.InsertWithdrawalRequest(ctx, req); err != nil {
			return err
		}
		fx.notify(agentAcc, "Cash-Out Request",
			fmt.Sprintf("Admin %s requested a cash-out of %s. Approve or reject it from your requests", adminAcc.Name, s.money(in.Amount)),
			domain.NotificationWithdrawalRequest, nil, &req.ID)
		fx.notify(adminAcc, "Cash-Out Requested",
			fmt.Sprintf("Your cash-out request of %s was sent to agent %s", s.money(in.Amount), agentAcc.Name),
			domain.NotificationWithdrawalRequest, nil, &req.ID)
		result.Request = req
		return s.flush(ctx, tx, fx)
	})
	if err != nil {
		return nil, err
	}

	if result.Transaction != nil {
		s.logger.Info("admin cash-out completed", "transaction_id", result.Transaction.Reference,
			"admin_id", admin.ID, "agent_id", agent.ID, "amount", domain.Cents(in.Amount))
	} else {
		s.logger.Info("admin cash-out requested", "request_id", result.Request.ID,
			"admin_id", admin.ID, "agent_id", agent.ID, "amount", domain.Cents(in.Amount))
	}
	return result, nil
}
