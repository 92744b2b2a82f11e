package authapi

import "context"

// PasswordResetEmail is the payload handed to the mail boundary when a user
// requests a password reset. Token is the plaintext reset secret; it is not
// persisted anywhere else.
type PasswordResetEmail struct {
	Email string
	Name  string
	Token string
}

// EmailSender delivers password-reset mail. Delivery providers live outside
// this package; the default is a no-op so the endpoint degrades to a silent
// success instead of failing closed.
type EmailSender interface {
	SendPasswordReset(ctx context.Context, msg PasswordResetEmail) error
}

// NoopEmailSender discards all mail.
type NoopEmailSender struct{}

func (NoopEmailSender) SendPasswordReset(context.Context, PasswordResetEmail) error { return nil }
