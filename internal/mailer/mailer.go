// Package mailer notifies the customer that their book is ready, with the
// PDF attached when it fits under the provider's size limit. Delivery
// failure is reported as data, never as a run-fatal error.
package mailer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/wneessen/go-mail"
)

// maxAttachmentMB is the largest PDF sent as an attachment.
const maxAttachmentMB = 20

const (
	defaultSMTPHost = "smtp.gmail.com"
	defaultSMTPPort = 587
)

// Notifier sends completion emails over SMTP.
type Notifier struct {
	Host string
	Port int
}

// New builds a Notifier from SMTP_HOST and SMTP_PORT, defaulting to Gmail.
func New() *Notifier {
	n := &Notifier{Host: defaultSMTPHost, Port: defaultSMTPPort}
	if host := os.Getenv("SMTP_HOST"); host != "" {
		n.Host = host
	}
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			n.Port = p
		}
	}
	return n
}

// SendBook emails the finished book. It returns whether the delivery
// succeeded and a human-readable detail either way. Credentials come from
// GMAIL_SENDER and GMAIL_APP_PASSWORD.
func (n *Notifier) SendBook(ctx context.Context, pdfPath, bookTitle, childName, recipient string) (bool, string) {
	sender := os.Getenv("GMAIL_SENDER")
	password := os.Getenv("GMAIL_APP_PASSWORD")
	if sender == "" {
		return false, "GMAIL_SENDER not set"
	}
	if password == "" {
		return false, "GMAIL_APP_PASSWORD not set"
	}

	info, err := os.Stat(pdfPath)
	if err != nil {
		return false, fmt.Sprintf("pdf not found: %s", pdfPath)
	}
	sizeMB := float64(info.Size()) / (1024 * 1024)
	attach := sizeMB <= maxAttachmentMB

	msg := mail.NewMsg()
	if err := msg.From(sender); err != nil {
		return false, fmt.Sprintf("invalid sender address: %v", err)
	}
	if err := msg.To(recipient); err != nil {
		return false, fmt.Sprintf("invalid recipient address: %v", err)
	}
	msg.Subject(fmt.Sprintf("Le livre de %s : \"%s\" est prêt !", childName, bookTitle))
	msg.SetBodyString(mail.TypeTextPlain, composeBody(bookTitle, childName, sizeMB, attach))
	if attach {
		msg.AttachFile(pdfPath, mail.WithFileName(filepath.Base(pdfPath)))
	}

	client, err := mail.NewClient(n.Host,
		mail.WithPort(n.Port),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(sender),
		mail.WithPassword(password),
		mail.WithTLSPolicy(mail.TLSMandatory),
	)
	if err != nil {
		return false, fmt.Sprintf("failed to create smtp client: %v", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		slog.Warn("email delivery failed", "recipient", recipient, "err", err)
		return false, fmt.Sprintf("smtp delivery failed: %v", err)
	}

	if attach {
		return true, fmt.Sprintf("email sent with the PDF attached (%.0f MB)", sizeMB)
	}
	return true, fmt.Sprintf("email sent without attachment (PDF is %.0f MB, over the %d MB limit)", sizeMB, maxAttachmentMB)
}

// composeBody writes the notification text. Oversized PDFs get a note
// pointing at the app instead of an attachment.
func composeBody(bookTitle, childName string, sizeMB float64, attach bool) string {
	if attach {
		return fmt.Sprintf(
			"Bonjour,\n\n"+
				"Le livre personnalisé \"%s\" pour %s est terminé !\n\n"+
				"Vous trouverez le PDF en pièce jointe (%.0f Mo), "+
				"prêt à imprimer en 21x21cm à 300dpi.\n\n"+
				"Bonne lecture !\n",
			bookTitle, childName, sizeMB)
	}
	return fmt.Sprintf(
		"Bonjour,\n\n"+
			"Le livre personnalisé \"%s\" pour %s est terminé !\n\n"+
			"Le PDF fait %.0f Mo (trop volumineux pour une pièce jointe email).\n"+
			"Rendez-vous dans l'application pour le télécharger.\n\n"+
			"Bonne lecture !\n",
		bookTitle, childName, sizeMB)
}
