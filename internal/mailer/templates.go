package mailer

import (
	"bytes"
	"fmt"
	"html/template"
)

var verificationTmpl = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html lang="en">
  <body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
    <div style="max-width: 600px; margin: 20px auto; padding: 20px; border: 1px solid #ddd; border-radius: 8px;">
      <h1 style="color: #1e3a8a; font-size: 24px; text-align: center;">Welcome to GreaseDesk!</h1>
      <p>Hi {{.Name}},</p>
      <p>Thank you for signing up. To start your {{.TrialDays}}-day free trial, please verify your email address.</p>
      <p style="text-align: center;">
        <a href="{{.Link}}" style="background-color: #1e3a8a; color: #fff; padding: 12px 24px; text-decoration: none; border-radius: 5px; display: inline-block;">Verify my email</a>
      </p>
      <p>This link expires in 24 hours.</p>
      <p>The GreaseDesk Team</p>
    </div>
  </body>
</html>`))

var invitationTmpl = template.Must(template.New("invitation").Parse(`<div style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
  <h2>Join {{.Garage}} on GreaseDesk!</h2>
  <p>You've been invited to join the team at {{.Garage}}.</p>
  <p><a href="{{.Link}}" style="background-color: #4CAF50; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; display: inline-block;">Accept Invitation</a></p>
  <p>Best regards,</p>
  <p>The GreaseDesk Team</p>
</div>`))

// VerificationSubject is the subject of the sign-up email.
const VerificationSubject = "Welcome to GreaseDesk! Please verify your email"

// VerificationEmail renders the sign-up verification email.
func VerificationEmail(name, link string, trialDays int) (subject, html string, err error) {
	var buf bytes.Buffer
	data := struct {
		Name      string
		Link      string
		TrialDays int
	}{name, link, trialDays}
	if err := verificationTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render verification email: %w", err)
	}
	return VerificationSubject, buf.String(), nil
}

// InvitationEmail renders the team invitation email.
func InvitationEmail(garage, link string) (subject, html string, err error) {
	var buf bytes.Buffer
	data := struct{ Garage, Link string }{garage, link}
	if err := invitationTmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render invitation email: %w", err)
	}
	return fmt.Sprintf("You've been invited to join %s on GreaseDesk", garage), buf.String(), nil
}
