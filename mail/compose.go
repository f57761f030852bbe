package mail

import (
	"bytes"
	"context"
	"fmt"

	"github.com/MrEthical07/otpgate"
)

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.943 generate

// HTMLComposer renders an OTP notice as a multipart-ready mail: the plain
// text body from otpgate.PlainTextComposer plus the otp_email.templ body.
func HTMLComposer(n otpgate.OTPNotice) (otpgate.Mail, error) {
	m, err := otpgate.PlainTextComposer(n)
	if err != nil {
		return otpgate.Mail{}, err
	}

	var buf bytes.Buffer
	if err := otpEmail(n).Render(context.Background(), &buf); err != nil {
		return otpgate.Mail{}, fmt.Errorf("render otp email: %w", err)
	}
	m.HTML = buf.String()
	return m, nil
}

func heading(p otpgate.Purpose) string {
	if p == otpgate.PurposeLogin {
		return "Finish signing in"
	}
	return "Verify your email"
}

func lead(p otpgate.Purpose) string {
	if p == otpgate.PurposeLogin {
		return "Use this code to finish signing in:"
	}
	return "Use this code to verify your email address:"
}

func ttlText(n otpgate.OTPNotice) string {
	minutes := int(n.TTL.Minutes())
	switch {
	case minutes == 1:
		return "1 minute"
	case minutes > 1:
		return fmt.Sprintf("%d minutes", minutes)
	default:
		return n.TTL.String()
	}
}
