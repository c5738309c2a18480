// Package entitlements answers whether an account may use the gated
// practitioner features.
package entitlements

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/app/repository"
	"github.com/nutrixpert/nutrixpert/internal/pkg/metrics"
)

// Decision statuses that are not approval statuses.
const (
	StatusNotFound     = "NOT_FOUND"
	StatusNotGated     = "NOT_GATED"
	StatusBillingIssue = "BILLING_ISSUE"
)

const (
	MessageNotFound     = "Usuário não encontrado."
	MessageNone         = "Conclua a assinatura para acessar todas as funcionalidades da plataforma."
	MessagePending      = "Seu cadastro está aguardando aprovação. Você receberá uma notificação assim que for aprovado."
	MessageRejected     = "Seu cadastro foi rejeitado. Entre em contato com o suporte para mais informações."
	MessageCancelled    = "Sua assinatura foi cancelada. Renove para continuar usando a plataforma."
	MessageBillingIssue = "Não conseguimos processar o pagamento da sua assinatura. Atualize sua forma de pagamento para restabelecer o acesso."
	MessageUnknown      = "Status de aprovação desconhecido. Entre em contato com o suporte."
)

// Decision is the outcome of an access check.
type Decision struct {
	Entitled      bool   `json:"entitled"`
	Status        string `json:"status"`
	BillingStatus string `json:"billing_status,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Guard evaluates entitlement from the stored access state.
type Guard struct {
	users  repository.UserRepository
	states repository.AccessStateRepository
}

func NewGuard(users repository.UserRepository, states repository.AccessStateRepository) *Guard {
	return &Guard{users: users, states: states}
}

// IsEntitled reports whether the account may use gated features.
func (g *Guard) IsEntitled(ctx context.Context, accountID uint) (bool, error) {
	d, err := g.Check(ctx, accountID)
	if err != nil {
		return false, err
	}
	return d.Entitled, nil
}

// Check evaluates the account and explains a denial. Accounts that are not
// practitioners are never gated.
func (g *Guard) Check(ctx context.Context, accountID uint) (Decision, error) {
	d, err := g.check(ctx, accountID)
	if err != nil {
		return Decision{}, err
	}
	metrics.GuardDecisionsTotal.WithLabelValues(strconv.FormatBool(d.Entitled)).Inc()
	return d, nil
}

func (g *Guard) check(ctx context.Context, accountID uint) (Decision, error) {
	user, err := g.users.GetByID(ctx, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{Status: StatusNotFound, Message: MessageNotFound}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load account %d: %w", accountID, err)
	}
	if !user.IsPractitioner() {
		return Decision{Entitled: true, Status: StatusNotGated}, nil
	}

	state, err := g.states.GetByAccountID(ctx, accountID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Decision{Status: string(models.ApprovalNone), BillingStatus: models.BillingStatusNone, Message: MessageNone}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("load access state %d: %w", accountID, err)
	}

	return decide(state), nil
}

func decide(state *models.AccessState) Decision {
	d := Decision{
		Entitled:      state.IsEntitled,
		Status:        string(state.ApprovalStatus),
		BillingStatus: state.BillingStatus,
	}
	if d.Entitled {
		return d
	}

	switch state.ApprovalStatus {
	case models.ApprovalNone:
		d.Message = MessageNone
	case models.ApprovalPending:
		d.Message = MessagePending
	case models.ApprovalRejected:
		d.Message = MessageRejected
	case models.ApprovalCancelled:
		d.Message = MessageCancelled
	case models.ApprovalActive:
		if state.BillingStatus == models.BillingStatusCanceled || state.BillingStatus == models.BillingStatusNone {
			d.Message = MessageCancelled
		} else {
			d.Status = StatusBillingIssue
			d.Message = MessageBillingIssue
		}
	default:
		d.Message = MessageUnknown
	}
	return d
}
