package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/nutrixpert/nutrixpert/app/models"
	"github.com/nutrixpert/nutrixpert/app/repository"
	"github.com/nutrixpert/nutrixpert/internal/pkg/jobqueue"
	"github.com/nutrixpert/nutrixpert/internal/pkg/mail"
	"github.com/nutrixpert/nutrixpert/internal/pkg/metrics"
)

const sendTimeout = 10 * time.Second

//go:embed templates/*.html
var templateFS embed.FS

var emailTemplate = template.Must(template.ParseFS(templateFS, "templates/email.html"))

type emailLayout struct {
	subject     string
	color       template.CSS
	paragraphs  []string
	items       []string
	actionLabel string
	actionPath  string
}

var layouts = map[string]emailLayout{
	models.NotificationApproved: {
		subject: "Cadastro Aprovado - Nutri Xpert Pro",
		color:   "#10b981",
		paragraphs: []string{
			"Temos uma ótima notícia! Seu cadastro foi aprovado e agora você tem acesso completo a todas as funcionalidades da plataforma Nutri Xpert Pro.",
		},
		items: []string{
			"Cadastrar e gerenciar seus pacientes",
			"Criar anamneses e avaliações",
			"Montar dietas personalizadas",
			"Gerar relatórios profissionais",
		},
		actionLabel: "Acessar Dashboard",
		actionPath:  "/dashboard",
	},
	models.NotificationRejected: {
		subject: "Cadastro Não Aprovado - Nutri Xpert Pro",
		color:   "#ef4444",
		paragraphs: []string{
			"Infelizmente, seu cadastro não foi aprovado neste momento.",
			"Se você acredita que isso é um erro ou deseja mais informações, por favor entre em contato com nosso suporte.",
		},
		actionLabel: "Contatar Suporte",
		actionPath:  "/suporte",
	},
	models.NotificationPaymentFailed: {
		subject: "Falha no Pagamento - Nutri Xpert Pro",
		color:   "#f59e0b",
		paragraphs: []string{
			"Não foi possível processar o pagamento da sua assinatura e seu acesso à plataforma foi suspenso.",
			"Atualize sua forma de pagamento para recuperar o acesso. Assim que o pagamento for confirmado, seu acesso será restabelecido automaticamente.",
		},
		actionLabel: "Atualizar Pagamento",
		actionPath:  "/assinatura",
	},
	models.NotificationAccessRevoked: {
		subject: "Acesso Revogado - Nutri Xpert Pro",
		color:   "#ef4444",
		paragraphs: []string{
			"Seu acesso à plataforma Nutri Xpert Pro foi revogado pela administração.",
			"Se você acredita que isso é um erro ou deseja mais informações, por favor entre em contato com nosso suporte.",
		},
		actionLabel: "Contatar Suporte",
		actionPath:  "/suporte",
	},
}

type emailData struct {
	Title       string
	Name        string
	Color       template.CSS
	Paragraphs  []string
	Reason      string
	Items       []string
	ActionLabel string
	ActionURL   string
}

// RenderEmail returns subject and HTML body for a notification.
func RenderEmail(n *models.Notification, user *models.User, appURL string) (string, string, error) {
	layout, ok := layouts[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("no email layout for notification kind %s", n.Kind)
	}

	data := emailData{
		Title:       n.Title,
		Name:        user.DisplayName(),
		Color:       layout.color,
		Paragraphs:  layout.paragraphs,
		Reason:      reasonOf(n.Message),
		Items:       layout.items,
		ActionLabel: layout.actionLabel,
	}
	if layout.actionPath != "" && appURL != "" {
		data.ActionURL = strings.TrimRight(appURL, "/") + layout.actionPath
	}

	var buf bytes.Buffer
	if err := emailTemplate.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", "", err
	}
	return layout.subject, buf.String(), nil
}

func reasonOf(message string) string {
	_, reason, found := strings.Cut(message, "Motivo: ")
	if !found {
		return ""
	}
	return reason
}

// EmailProcessor delivers notification_email jobs.
type EmailProcessor struct {
	notifications repository.NotificationRepository
	users         repository.UserRepository
	sender        mail.Sender
	from          string
	appURL        string
}

func NewEmailProcessor(notifications repository.NotificationRepository, users repository.UserRepository, sender mail.Sender, from, appURL string) *EmailProcessor {
	return &EmailProcessor{
		notifications: notifications,
		users:         users,
		sender:        sender,
		from:          from,
		appURL:        appURL,
	}
}

// Register binds the processor to the queue.
func (p *EmailProcessor) Register(q *jobqueue.Queue) {
	q.Register(jobqueue.JobTypeNotificationEmail, p.Handle, p.OnFailed)
}

// Handle sends one notification email. A returned error makes the queue retry.
func (p *EmailProcessor) Handle(ctx context.Context, job *jobqueue.Job) error {
	payload, err := jobqueue.NotificationEmailJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid notification email payload: %w", err)
	}

	n, err := p.notifications.GetByID(ctx, payload.NotificationID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("[Notify] Notification %d no longer exists, dropping email job %s", payload.NotificationID, job.ID)
		return nil
	}
	if err != nil {
		return err
	}
	if n.EmailStatus != models.EmailStatusPending {
		log.Debugf("[Notify] Notification %d has email status %s, skipping", n.ID, n.EmailStatus)
		return nil
	}

	user, err := p.users.GetByID(ctx, n.AccountID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && user.Email == "") {
		log.Warnf("[Notify] Account %d has no email address, giving up on notification %d", n.AccountID, n.ID)
		return p.notifications.MarkEmailFailed(ctx, n.ID, "account has no email address")
	}
	if err != nil {
		return err
	}

	subject, body, err := RenderEmail(n, user, p.appURL)
	if err != nil {
		return p.notifications.MarkEmailFailed(ctx, n.ID, err.Error())
	}

	sendCtx, cancel := context.WithTimeout(ctx, sendTimeout)
	err = p.sender.Send(sendCtx, user.Email, p.from, subject, body)
	cancel()
	if err != nil {
		metrics.EmailDeliveriesTotal.WithLabelValues(n.Kind, "retry").Inc()
		if recErr := p.notifications.RecordEmailAttempt(ctx, n.ID, err); recErr != nil {
			log.Errorf("[Notify] Failed to record email attempt for notification %d: %v", n.ID, recErr)
		}
		return fmt.Errorf("send %s email to account %d: %w", n.Kind, n.AccountID, err)
	}

	metrics.EmailDeliveriesTotal.WithLabelValues(n.Kind, "sent").Inc()
	log.Infof("[Notify] Sent %s email for notification %d to account %d", n.Kind, n.ID, n.AccountID)
	return p.notifications.MarkEmailSent(ctx, n.ID)
}

// OnFailed marks the notification failed once the queue gave up on it. The
// access state transition that produced it is left as is.
func (p *EmailProcessor) OnFailed(ctx context.Context, job *jobqueue.Job) {
	payload, err := jobqueue.NotificationEmailJobPayloadFromMap(job.Payload)
	if err != nil {
		log.Errorf("[Notify] Permanently failed job %s has an invalid payload: %v", job.ID, err)
		return
	}

	metrics.EmailDeliveriesTotal.WithLabelValues(payload.Kind, "failed").Inc()
	if err := p.notifications.MarkEmailFailed(ctx, payload.NotificationID, job.ErrorMsg); err != nil {
		log.Errorf("[Notify] Failed to mark notification %d as failed: %v", payload.NotificationID, err)
		return
	}
	log.Warnf("[Notify] Gave up on email for notification %d after %d attempts: %s", payload.NotificationID, job.RetryCount, job.ErrorMsg)
}
