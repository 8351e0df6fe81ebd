package registration

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"github.com/International-Combat-Archery-Alliance/email"
	"github.com/bengaluru-wedding-fraternity/event-registration/events"
)

//go:embed templates
var templates embed.FS

func SendPaymentConfirmationEmail(ctx context.Context, emailSender email.Sender, fromAddress string, attendee Attendee, event events.Event) error {
	data := map[string]any{
		"Event":    event,
		"Attendee": attendee,
		"Fee":      feeDisplay(event),
	}

	htmlBody, err := makeHtmlBody(data)
	if err != nil {
		return err
	}

	textOnlyBody, err := makeTextOnlyBody(data)
	if err != nil {
		return err
	}

	return emailSender.SendEmail(ctx, email.Email{
		FromAddress: fromAddress,
		ToAddresses: []string{attendee.Email},
		Subject:     fmt.Sprintf("Registration confirmed - %q", event.Name),
		HTMLBody:    htmlBody,
		TextBody:    textOnlyBody,
	})
}

func feeDisplay(event events.Event) string {
	if event.RegistrationFee == nil {
		return ""
	}
	return event.RegistrationFee.Display()
}

func makeHtmlBody(data map[string]any) (string, error) {
	tmpl, err := template.New("payment-confirmation.tmpl").ParseFS(templates, "templates/payment-confirmation.tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}

	return buf.String(), nil
}

func makeTextOnlyBody(data map[string]any) (string, error) {
	tmpl, err := texttemplate.New("payment-confirmation-textonly.tmpl").ParseFS(templates, "templates/payment-confirmation-textonly.tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to parse email template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, data)
	if err != nil {
		return "", fmt.Errorf("failed to execute email template: %w", err)
	}

	return buf.String(), nil
}
