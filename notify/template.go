package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"time"
)

// OTPSubject is the subject line of verification emails.
const OTPSubject = "Your OTP (Valid for 10 Minutes)"

var otpTemplate = template.Must(template.New("otp").Parse(`<!DOCTYPE html>
<html lang="en" style="margin:0; padding:0;">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>Time-sensitive OTP Verification</title>
  <style>
    body { font-family: Arial, sans-serif; background-color: #f4f6f8; margin: 0; padding: 20px; color: #333333; }
    .email-container { max-width: 480px; margin: 0 auto; background-color: #ffffff; border-radius: 8px; padding: 30px 25px; }
    .otp-code { font-size: 36px; font-weight: bold; color: #2a9d8f; letter-spacing: 4px; margin: 20px 0; text-align: center; }
    .expiry { background-color: #ffe5e5; color: #d00000; font-weight: 600; padding: 12px 15px; border-radius: 6px; text-align: center; }
    .footer { font-size: 13px; color: #777777; margin-top: 30px; text-align: center; }
  </style>
</head>
<body>
  <div class="email-container" role="main">
    <p>Hello {{.Username}},</p>
    <p>Your OTP code is:</p>
    <p class="otp-code">{{.Code}}</p>
    <p class="expiry">This code will expire in <strong>{{.Minutes}} minutes</strong>.</p>
    <p>If you did not request this code, please ignore this email.</p>
    <div class="footer">&copy; {{.Year}} {{.Product}}. All rights reserved.</div>
  </div>
</body>
</html>
`))

// OTPEmail holds the values rendered into a verification email.
type OTPEmail struct {
	To       string
	Username string
	Code     string
	TTL      time.Duration
	Product  string
}

// Render builds the Message for e.
func (e OTPEmail) Render() (Message, error) {
	product := e.Product
	if product == "" {
		product = "authsvc"
	}
	minutes := int(e.TTL / time.Minute)
	if minutes <= 0 {
		minutes = 10
	}

	var buf bytes.Buffer
	err := otpTemplate.Execute(&buf, struct {
		Username string
		Code     string
		Minutes  int
		Year     int
		Product  string
	}{e.Username, e.Code, minutes, time.Now().Year(), product})
	if err != nil {
		return Message{}, fmt.Errorf("render otp email: %w", err)
	}

	subject := OTPSubject
	if minutes != 10 {
		subject = fmt.Sprintf("Your OTP (Valid for %d Minutes)", minutes)
	}
	return Message{To: e.To, Subject: subject, HTML: buf.String()}, nil
}
