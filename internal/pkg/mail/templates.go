package mail

import (
	"bytes"
	"fmt"

	"github.com/gofiber/template/html/v2"
)

const (
	TemplateVerification  = "emails/verification"
	TemplateResetPassword = "emails/reset_password"
	TemplateReviewRequest = "emails/review_request"
	TemplateNoshowCharged = "emails/noshow_charged"
	TemplateMonthlyReport = "emails/monthly_report"
)

var subjects = map[string]string{
	TemplateVerification:  "Confirmez votre adresse email - SpeedAI",
	TemplateResetPassword: "Réinitialisation de votre mot de passe - SpeedAI",
	TemplateReviewRequest: "Votre avis compte pour nous",
	TemplateNoshowCharged: "Pénalité de non-présentation",
	TemplateMonthlyReport: "Votre rapport mensuel SpeedAI",
}

// Renderer renders the email templates under views/emails.
type Renderer struct {
	engine *html.Engine
}

// NewRenderer loads templates from the views directory.
func NewRenderer(viewsDir string) *Renderer {
	return &Renderer{engine: html.New(viewsDir, ".html")}
}

// Render returns the subject and HTML body of the named template.
func (r *Renderer) Render(name string, data map[string]interface{}) (string, string, error) {
	subject, ok := subjects[name]
	if !ok {
		return "", "", fmt.Errorf("unknown email template %q", name)
	}
	if s, ok := data["Subject"].(string); ok && s != "" {
		subject = s
	}
	var buf bytes.Buffer
	if err := r.engine.Render(&buf, name, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", name, err)
	}
	return subject, buf.String(), nil
}
