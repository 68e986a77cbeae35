package params

import "time"

const (
	APIVersion = "1.0"

	ServerBodyLimit    = 1048576 // 1 MiB
	ServerIdleTimeout  = 30 * time.Second
	ServerReadTimeout  = 10 * time.Second
	ServerWriteTimeout = 10 * time.Second

	RateLimitKeyPrefix     = "rl:"
	OneTimeCodeKeyPrefix   = "oc:"
	ConsumedTokenKeyPrefix = "ct:"
	TOTPStateKeyPrefix     = "tw:"

	FullTokenValidity    = 7 * 24 * time.Hour // full identity token lifetime
	PendingTokenValidity = 10 * time.Minute   // pending-2fa token lifetime

	LoginMaxAttempts  = 5                // login attempts allowed per identifier per window
	LoginRateWindow   = 10 * time.Minute // login rate-limit window
	EmailCodeMaxSends = 3                // email fallback code requests allowed per window
	EmailCodeWindow   = 10 * time.Minute // email fallback rate-limit window
	ResetCodeMaxSends = 3                // password reset code requests allowed per window
	ResetCodeWindow   = 15 * time.Minute // password reset rate-limit window
	RegisterMaxPerKey = 10               // registrations per client key per window
	RegisterWindow    = 1 * time.Hour    // registration rate-limit window

	OneTimeCodeLength      = 6                // digits in email/reset codes
	OneTimeCodeExpiration  = 10 * time.Minute // email/reset code expiration
	OneTimeCodeMaxAttempts = 5                // verification attempts allowed per issued code

	BackupCodeCount  = 8  // backup codes handed out on TOTP enrollment
	BackupCodeLength = 10 // characters per backup code

	TOTPPeriod = 30 // seconds per TOTP time step

	StoreTimeout          = 5 * time.Second // ephemeral store round-trip budget
	GatewaySendBufferSize = 64              // outbound events buffered per connection
	GatewayReadLimit      = 65536           // max inbound websocket message size in bytes

	HealthCheckServerAddr = ":3001" // health check server address
)
