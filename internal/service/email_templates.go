package service

import "fmt"

func verificationEmailTemplate(name, verifyURL, appName string) (string, string) {
	subject := "Verify Your Email"
	body := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; color: #111827;">
  <h2>Verify Your Email</h2>
  <p>Hi <strong>%s</strong>,</p>
  <p>Thanks for signing up! Please verify your email by clicking the button below:</p>
  <a href="%s" style="display: inline-block; background-color: #16a34a; color: white; padding: 10px 20px; border-radius: 6px; font-weight: 600; text-decoration: none;">Verify Email</a>
  <p style="font-size: 14px; color: #6b7280;">If you didn't sign up for this account, you can ignore this message.</p>
  <p>The %s Team</p>
</div>`, name, verifyURL, appName)

	return subject, body
}

func passwordResetEmailTemplate(name, resetURL, appName string) (string, string) {
	subject := "Reset Your Password"
	body := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; color: #111827;">
  <h2>Password Reset Request</h2>
  <p>Hi <strong>%s</strong>,</p>
  <p>You requested to reset your password. Click the button below to reset it:</p>
  <a href="%s" style="display: inline-block; background-color: #1d4ed8; color: white; padding: 10px 20px; border-radius: 6px; font-weight: 600; text-decoration: none;">Reset Password</a>
  <p style="font-size: 14px; color: #6b7280;">This link expires in a few minutes and can only be used once. If you didn't request this, you can safely ignore this email.</p>
  <p>The %s Team</p>
</div>`, name, resetURL, appName)

	return subject, body
}

func passwordChangedEmailTemplate(name, appName, supportEmail string) (string, string) {
	subject := "Your Password Has Been Changed"
	body := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; color: #111827;">
  <h2>Password Changed</h2>
  <p>Hi <strong>%s</strong>,</p>
  <p>Your password has been successfully changed. You can now sign in with your new password.</p>
  <p style="font-size: 14px; color: #6b7280;">If you didn't make this change, please reset your password immediately and contact us at %s.</p>
  <p>The %s Team</p>
</div>`, name, supportEmail, appName)

	return subject, body
}

func emailVerifiedTemplate(name, appName string) (string, string) {
	subject := "Your Email is Now Verified"
	body := fmt.Sprintf(`<div style="font-family: Arial, sans-serif; color: #111827;">
  <h2>Email Verified</h2>
  <p>Hi <strong>%s</strong>,</p>
  <p>Your email address has been verified. Your account is now fully active.</p>
  <p>The %s Team</p>
</div>`, name, appName)

	return subject, body
}
