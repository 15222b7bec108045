package config

import "time"

// MailConfig selects and configures the outbound email transport.
// Provider is one of "smtp", "http" or "log".
type MailConfig struct {
	Provider string
	From     string
	Async    bool // route mail through the notify.email queue

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string

	APIBaseURL string
	APIKey     string
	APITimeout time.Duration
}

func LoadMailConfig() MailConfig {
	return MailConfig{
		Provider:     envStr("MAIL_PROVIDER", "log"),
		From:         envStr("MAIL_FROM", "no-reply@localhost"),
		Async:        envBool("MAIL_ASYNC", true),
		SMTPHost:     envStr("SMTP_HOST", "localhost"),
		SMTPPort:     envInt("SMTP_PORT", 25),
		SMTPUser:     envStr("SMTP_USER", ""),
		SMTPPassword: envStr("SMTP_PASSWORD", ""),
		APIBaseURL:   envStr("MAIL_API_URL", ""),
		APIKey:       envStr("MAIL_API_KEY", ""),
		APITimeout:   envDur("MAIL_API_TIMEOUT", 10*time.Second),
	}
}

// OTPConfig bounds one-time login codes.
type OTPConfig struct {
	Digits      int
	TTL         time.Duration
	MaxAttempts int
	Prefix      string
}

func LoadOTPConfig() OTPConfig {
	c := OTPConfig{
		Digits:      envInt("OTP_DIGITS", 6),
		TTL:         envDur("OTP_TTL", 10*time.Minute),
		MaxAttempts: envInt("OTP_MAX_ATTEMPTS", 5),
		Prefix:      envStr("OTP_PREFIX", "otp"),
	}
	if c.Digits < 4 || c.Digits > 10 {
		c.Digits = 6
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	return c
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string
	Format string
}

func LoadLogConfig() LogConfig {
	return LogConfig{
		Level:  envStr("LOG_LEVEL", "info"),
		Format: envStr("LOG_FORMAT", "json"),
	}
}
