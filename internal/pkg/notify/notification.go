package notify

import (
	"strings"

	"github.com/google/uuid"

	"github.com/nutrixpert/nutrixpert/app/models"
)

// DefaultRejectionReason is stored when an administrator rejects without a reason.
const DefaultRejectionReason = "Não especificado"

type content struct {
	title     string
	message   string
	sendEmail bool
}

var contents = map[string]content{
	models.NotificationPaymentReceived: {
		title:   "Pagamento Recebido",
		message: "Seu pagamento foi confirmado. Aguarde aprovação do cadastro para acessar todas as funcionalidades.",
	},
	models.NotificationApproved: {
		title:     "Cadastro Aprovado!",
		message:   "Seu cadastro foi aprovado. Agora você tem acesso completo a todas as funcionalidades da plataforma!",
		sendEmail: true,
	},
	models.NotificationRejected: {
		title:     "Cadastro Não Aprovado",
		message:   "Seu cadastro não foi aprovado. Entre em contato com o suporte para mais informações.",
		sendEmail: true,
	},
	models.NotificationPaymentFailed: {
		title:     "Falha no Pagamento",
		message:   "Não foi possível processar o pagamento da sua assinatura. Atualize sua forma de pagamento para manter o acesso à plataforma.",
		sendEmail: true,
	},
	models.NotificationAccessRestored: {
		title:   "Acesso Restabelecido",
		message: "Seu pagamento foi confirmado e seu acesso completo à plataforma foi restabelecido.",
	},
	models.NotificationSubscriptionCanceled: {
		title:   "Assinatura Cancelada",
		message: "Sua assinatura foi cancelada. Renove para continuar usando a plataforma.",
	},
	models.NotificationAccessRevoked: {
		title:     "Acesso Revogado",
		message:   "Seu acesso à plataforma foi revogado. Entre em contato com o suporte para mais informações.",
		sendEmail: true,
	},
}

// Build creates the notification row for a transition. reason is only used
// by REJECTED and ACCESS_REVOKED. The row gets its own delivery key so a
// repeated dispatch never sends the email twice.
func Build(accountID uint, kind, reason string) models.Notification {
	c := contents[kind]
	message := c.message

	reason = strings.TrimSpace(reason)
	if reason != "" && reason != DefaultRejectionReason {
		switch kind {
		case models.NotificationRejected:
			message = "Seu cadastro não foi aprovado. Motivo: " + reason
		case models.NotificationAccessRevoked:
			message = "Seu acesso à plataforma foi revogado. Motivo: " + reason
		}
	}

	emailStatus := models.EmailStatusNone
	if c.sendEmail {
		emailStatus = models.EmailStatusPending
	}

	return models.Notification{
		AccountID:   accountID,
		Kind:        kind,
		Title:       c.title,
		Message:     message,
		SendEmail:   c.sendEmail,
		EmailStatus: emailStatus,
		DeliveryKey: uuid.NewString(),
	}
}

// SendsEmail reports whether notifications of kind are also delivered by email.
func SendsEmail(kind string) bool {
	return contents[kind].sendEmail
}
