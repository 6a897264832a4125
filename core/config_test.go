package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseSettings() map[string]interface{} {
	return map[string]interface{}{
		"secret_key":                 "s3cr3t",
		"algorithm":                  "HS256",
		"email_token_expire_minutes": 30,
		"backend_api_url":            "http://localhost:8000/",
		"allowed_origins":            "http://localhost:3000, https://app.ratiba.test",
		"email_backend":              EmailBackendConsole,
		"database_engine":            DBEngineMemory,
	}
}

func TestConfigFrom(t *testing.T) {
	tests := []struct {
		name        string
		override    map[string]interface{}
		unset       []string
		wantErr     bool
		wantMissing []string
	}{
		{name: "valid"},
		{name: "missing secret & origins", unset: []string{"secret_key", "allowed_origins"}, wantMissing: []string{"SECRET_KEY", "ALLOWED_ORIGINS"}},
		{name: "missing email token ttl", unset: []string{"email_token_expire_minutes"}, wantMissing: []string{"EMAIL_TOKEN_EXPIRE_MINUTES"}},
		{
			name:        "smtp requires credentials",
			override:    map[string]interface{}{"email_backend": EmailBackendSMTP},
			wantMissing: []string{"SMTP_HOST", "SMTP_USER", "SMTP_PASS"},
		},
		{
			name:        "sendgrid requires key",
			override:    map[string]interface{}{"email_backend": EmailBackendSendgrid},
			wantMissing: []string{"SENDGRID_API_KEY"},
		},
		{name: "unknown email backend", override: map[string]interface{}{"email_backend": "pigeon"}, wantErr: true},
		{name: "non hmac algorithm", override: map[string]interface{}{"algorithm": "RS256"}, wantErr: true},
		{name: "unknown algorithm", override: map[string]interface{}{"algorithm": "lol"}, wantErr: true},
		{name: "negative email token ttl", override: map[string]interface{}{"email_token_expire_minutes": -1}, wantErr: true},
		{name: "unknown db engine", override: map[string]interface{}{"database_engine": "mongo"}, wantErr: true},
		{name: "bad from address", override: map[string]interface{}{"default_from_email": "nope"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := baseSettings()
			for k, v := range tt.override {
				settings[k] = v
			}
			for _, k := range tt.unset {
				settings[k] = ""
			}
			v := newViper()
			for k, val := range settings {
				v.Set(k, val)
			}

			conf, err := configFrom(v, "TEST")
			if len(tt.wantMissing) > 0 {
				var mErr MissingConfigError
				require.ErrorAs(t, err, &mErr)
				assert.ElementsMatch(t, tt.wantMissing, mErr.Keys)
				return
			}
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			assert.True(t, conf.TestMode)
			assert.Equal(t, "http://localhost:8000", conf.Server.BackendBaseURL)
			assert.Equal(t, []string{"http://localhost:3000", "https://app.ratiba.test"}, conf.Server.AllowedOrigins)
			assert.Equal(t, 30*time.Minute, conf.Auth.EmailTokenTTL)
			assert.Equal(t, 60*time.Minute, conf.Auth.AccessTokenTTL)
			assert.Equal(t, "no-reply@localhost", conf.Mail.DefaultFromEmail.Address)
			assert.Equal(t, 2, conf.Mail.Workers)
			assert.Equal(t, 10*time.Second, conf.Server.ShutdownTimeout)
			assert.Empty(t, conf.Server.DebugAddress)
		})
	}
}

func TestConfig_validate_clampsMailSettings(t *testing.T) {
	v := newViper()
	for k, val := range baseSettings() {
		v.Set(k, val)
	}
	v.Set("mail_workers", 0)
	v.Set("mail_max_tries", -3)

	conf, err := configFrom(v, "TEST")
	require.NoError(t, err)
	assert.Equal(t, 1, conf.Mail.Workers)
	assert.Equal(t, 1, conf.Mail.MaxTries)
}
