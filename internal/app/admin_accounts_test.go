package app

import (
	"context"
	"testing"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/ledger"
	"github.com/moneypay/ledger-service/internal/store"
	"github.com/stretchr/testify/require"
)

func TestTopupAccountCreditsWithoutDebitingAdmin(t *testing.T) {
	f := newFixture(t)
	admin := f.admin("0900000001", "50")
	user := f.user("0911000001", "10")

	record, err := f.svc.TopupAccount(context.Background(), BalanceAdjustmentInput{AdminID: admin.ID, AccountID: user.ID, Amount: dec("250.50")})
	require.NoError(t, err)
	require.Equal(t, domain.TxTypeTopup, record.Type)
	require.Equal(t, domain.TxStatusCompleted, record.Status)
	require.Equal(t, admin.ID, record.SenderID)
	require.False(t, record.SenderBalance.Valid)
	requireDecimal(t, "260.50", record.ReceiverBalance.Decimal)
	requireDecimal(t, "260.50", f.balance(t, user.ID))
	requireDecimal(t, "50", f.balance(t, admin.ID))

	notes, err := f.svc.ListNotifications(context.Background(), user.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	require.Equal(t, "Account Topped Up", notes[0].Title)
	require.Equal(t, domain.NotificationSystem, notes[0].Type)
}

func TestWithdrawFromAccountDebitsUnderLock(t *testing.T) {
	f := newFixture(t)
	admin := f.admin("0900000001", "0")
	user := f.user("0911000001", "100")
	ctx := context.Background()

	record, err := f.svc.WithdrawFromAccount(ctx, BalanceAdjustmentInput{AdminID: admin.ID, AccountID: user.ID, Amount: dec("60")})
	require.NoError(t, err)
	require.Equal(t, domain.TxTypeWithdrawal, record.Type)
	require.Equal(t, user.ID, record.SenderID)
	require.Equal(t, admin.ID, *record.ReceiverID)
	requireDecimal(t, "40", record.SenderBalance.Decimal)
	requireDecimal(t, "40", f.balance(t, user.ID))
	requireDecimal(t, "0", f.balance(t, admin.ID))

	_, err = f.svc.WithdrawFromAccount(ctx, BalanceAdjustmentInput{AdminID: admin.ID, AccountID: user.ID, Amount: dec("41")})
	var shortfall *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &shortfall)
	requireDecimal(t, "40", shortfall.Balance)
	requireDecimal(t, "40", f.balance(t, user.ID))
}

func TestBalanceAdjustmentsRejectBadInput(t *testing.T) {
	f := newFixture(t)
	admin := f.admin("0900000001", "0")
	user := f.user("0911000001", "100")
	ctx := context.Background()

	tests := []struct {
		name string
		in   BalanceAdjustmentInput
		want error
	}{
		{name: "not an admin", in: BalanceAdjustmentInput{AdminID: user.ID, AccountID: admin.ID, Amount: dec("1")}, want: ErrForbidden},
		{name: "own account", in: BalanceAdjustmentInput{AdminID: admin.ID, AccountID: admin.ID, Amount: dec("1")}, want: ErrInvalidInput},
		{name: "unknown account", in: BalanceAdjustmentInput{AdminID: admin.ID, AccountID: 999, Amount: dec("1")}, want: store.ErrAccountNotFound},
		{name: "zero amount", in: BalanceAdjustmentInput{AdminID: admin.ID, AccountID: user.ID, Amount: dec("0")}, want: ErrInvalidInput},
		{name: "above column limit", in: BalanceAdjustmentInput{AdminID: admin.ID, AccountID: user.ID, Amount: dec("1000000000000")}, want: ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.TopupAccount(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
			_, err = f.svc.WithdrawFromAccount(ctx, tc.in)
			require.ErrorIs(t, err, tc.want)
		})
	}
	requireDecimal(t, "100", f.balance(t, user.ID))
}

func TestSuspendedAccountCannotBeDebited(t *testing.T) {
	f := newFixture(t)
	admin := f.admin("0900000001", "0")
	user := f.user("0911000001", "100")
	friend := f.user("0911000002", "0")
	ctx := context.Background()

	acc, err := f.svc.SetAccountSuspended(ctx, admin.ID, user.ID, true)
	require.NoError(t, err)
	require.True(t, acc.IsSuspended)

	_, err = f.svc.SendMoney(ctx, SendMoneyInput{SenderID: user.ID, RecipientPhone: friend.Phone, Amount: dec("10")})
	require.ErrorIs(t, err, ledger.ErrAccountSuspended)
	_, err = f.svc.WithdrawFromAccount(ctx, BalanceAdjustmentInput{AdminID: admin.ID, AccountID: user.ID, Amount: dec("10")})
	require.ErrorIs(t, err, ledger.ErrAccountSuspended)

	// Credits still land while suspended.
	_, err = f.svc.TopupAccount(ctx, BalanceAdjustmentInput{AdminID: admin.ID, AccountID: user.ID, Amount: dec("5")})
	require.NoError(t, err)

	_, err = f.svc.SetAccountSuspended(ctx, admin.ID, user.ID, true)
	require.NoError(t, err)

	acc, err = f.svc.SetAccountSuspended(ctx, admin.ID, user.ID, false)
	require.NoError(t, err)
	require.False(t, acc.IsSuspended)
	_, err = f.svc.SendMoney(ctx, SendMoneyInput{SenderID: user.ID, RecipientPhone: friend.Phone, Amount: dec("10")})
	require.NoError(t, err)

	notes, err := f.svc.ListNotifications(ctx, user.ID, 0, 0)
	require.NoError(t, err)
	var titles []string
	for _, n := range notes {
		titles = append(titles, n.Title)
	}
	require.Contains(t, titles, "Account Suspended")
	require.Contains(t, titles, "Account Restored")
	suspendedNotes := 0
	for _, title := range titles {
		if title == "Account Suspended" {
			suspendedNotes++
		}
	}
	require.Equal(t, 1, suspendedNotes, "repeating a suspension does not notify again")
}

func TestSetAccountSuspendedGuards(t *testing.T) {
	f := newFixture(t)
	admin := f.admin("0900000001", "0")
	other := f.admin("0900000002", "0")
	user := f.user("0911000001", "0")
	ctx := context.Background()

	_, err := f.svc.SetAccountSuspended(ctx, user.ID, other.ID, true)
	require.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.SetAccountSuspended(ctx, admin.ID, admin.ID, true)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.SetAccountSuspended(ctx, admin.ID, other.ID, true)
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = f.svc.SetAccountSuspended(ctx, admin.ID, 999, true)
	require.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestAdminCommissionAndPendingCount(t *testing.T) {
	p := newPushFixture(t, "1000")
	ctx := context.Background()

	kept := p.create(t, "500", "5", true)
	dropped := p.create(t, "200", "10", true)

	count, err := p.svc.PendingStatePushCount(ctx, p.receiver.ID)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)

	total, err := p.svc.AdminCommissionTotal(ctx, p.sender.ID)
	require.NoError(t, err)
	requireDecimal(t, "45", total)

	_, err = p.svc.CancelStatePush(ctx, dropped.Reference, p.sender.ID)
	require.NoError(t, err)
	total, err = p.svc.AdminCommissionTotal(ctx, p.sender.ID)
	require.NoError(t, err)
	requireDecimal(t, "25", total)

	_, err = p.svc.ReceiveStatePush(ctx, kept.Reference, p.receiver.ID)
	require.NoError(t, err)
	count, err = p.svc.PendingStatePushCount(ctx, p.receiver.ID)
	require.NoError(t, err)
	require.Zero(t, count)

	total, err = p.svc.AdminCommissionTotal(ctx, p.receiver.ID)
	require.NoError(t, err)
	require.True(t, total.IsZero())

	user := p.user("0911000001", "0")
	_, err = p.svc.PendingStatePushCount(ctx, user.ID)
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAdminCashoutTotalCountsCompletedCashouts(t *testing.T) {
	f := newFixture(t)
	admin := f.admin("0900000001", "0")
	f.agent("0922000001", "654321", "1000", true)
	f.agent("0922000002", "654322", "1000", false)
	ctx := context.Background()

	_, err := f.svc.AdminCashout(ctx, AdminCashoutInput{AdminID: admin.ID, AgentCode: "654321", Amount: dec("400")})
	require.NoError(t, err)
	res, err := f.svc.AdminCashout(ctx, AdminCashoutInput{AdminID: admin.ID, AgentCode: "654322", Amount: dec("150")})
	require.NoError(t, err)
	require.NotNil(t, res.Request)

	total, err := f.svc.AdminCashoutTotal(ctx, admin.ID)
	require.NoError(t, err)
	requireDecimal(t, "400", total)

	_, err = f.svc.ApproveWithdrawalRequest(ctx, res.Request.ID, res.Request.PayerID)
	require.NoError(t, err)
	total, err = f.svc.AdminCashoutTotal(ctx, admin.ID)
	require.NoError(t, err)
	requireDecimal(t, "550", total)
}
