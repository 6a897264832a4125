package core

import (
	"net/mail"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

// Email backends
const (
	EmailBackendSMTP     = "smtp"
	EmailBackendSendgrid = "sendgrid"
	EmailBackendConsole  = "console"
)

// Database engines
const (
	DBEnginePostgres = "postgres"
	DBEngineMemory   = "memory"
)

type (
	Config struct {
		AppName  string
		Env      string // DEV (default), TEST, QA, PROD
		Build    string
		Debug    bool
		TestMode bool

		Server   ServerConfig
		Auth     AuthConfig
		Database DatabaseConfig
		Mail     MailConfig

		RollbarToken string
	}

	ServerConfig struct {
		Address         string
		DebugAddress    string // expvar listener, disabled when empty
		Host            string
		BackendBaseURL  string // used to build email verification links
		AllowedOrigins  []string
		ShutdownTimeout time.Duration
	}

	AuthConfig struct {
		SecretKey      string
		Algorithm      string
		AccessTokenTTL time.Duration
		EmailTokenTTL  time.Duration
		BcryptCost     int
	}

	DatabaseConfig struct {
		Engine     string
		URL        string
		User       string
		Password   string
		Host       string
		Port       string
		Name       string
		DisableTLS bool
	}

	MailConfig struct {
		Backend          string
		DefaultFromEmail mail.Address
		SMTPHost         string
		SMTPPort         int
		SMTPUser         string
		SMTPPassword     string
		SendgridAPIKey   string
		Workers          int
		QueueSize        int
		MaxTries         int
	}
)

func (dbc DatabaseConfig) Address() string {
	return dbc.Host + ":" + dbc.Port
}

// MissingConfigError lists every required setting absent from the environment.
type MissingConfigError struct {
	Keys []string
}

func (err MissingConfigError) Error() string {
	return "missing required configuration: " + strings.Join(err.Keys, ", ")
}

func newViper() *viper.Viper {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("app_name", "Ratiba")
	v.SetDefault("debug", false)
	v.SetDefault("build", "develop")
	v.SetDefault("address", ":8000")
	v.SetDefault("host", "localhost")
	v.SetDefault("shutdown_timeout_seconds", 10)
	v.SetDefault("access_token_expire_minutes", 60)
	v.SetDefault("bcrypt_cost", 10)
	v.SetDefault("database_engine", DBEnginePostgres)
	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", "5432")
	v.SetDefault("db_name", "ratiba")
	v.SetDefault("db_disable_tls", false)
	v.SetDefault("email_backend", EmailBackendSMTP)
	v.SetDefault("default_from_email", "Ratiba <no-reply@localhost>")
	v.SetDefault("smtp_port", 587)
	v.SetDefault("mail_workers", 2)
	v.SetDefault("mail_queue_size", 100)
	v.SetDefault("mail_max_tries", 5)

	v.AutomaticEnv()
	return v
}

// loadDotEnv loads `.env` and `config/.env.<env>` if they exist (ignored if they do not).
func loadDotEnv(env string) error {
	wd, err := os.Getwd()
	if err != nil {
		return err
	}
	paths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "config", ".env."+strings.ToLower(env)),
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err != nil {
				return errors.Wrapf(err, "loading %s", p)
			}
		} else if !os.IsNotExist(err) {
			return errors.Wrapf(err, "stat %s", p)
		}
	}
	return nil
}

// NewConfig builds the Config from the process environment once at startup.
// Required settings that are absent fail here rather than at first use.
func NewConfig() (*Config, error) {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	if err := loadDotEnv(env); err != nil {
		return nil, errors.Wrap(err, "loading .env")
	}
	return configFrom(newViper(), env)
}

func configFrom(v *viper.Viper, env string) (*Config, error) {
	var missing []string
	required := func(key string) string {
		val := strings.TrimSpace(v.GetString(key))
		if val == "" {
			missing = append(missing, strings.ToUpper(key))
		}
		return val
	}

	conf := &Config{
		AppName:      v.GetString("app_name"),
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     env == "TEST",
		RollbarToken: v.GetString("rollbar_token"),
	}

	conf.Auth = AuthConfig{
		SecretKey:      required("secret_key"),
		Algorithm:      required("algorithm"),
		AccessTokenTTL: time.Duration(v.GetInt("access_token_expire_minutes")) * time.Minute,
		BcryptCost:     v.GetInt("bcrypt_cost"),
	}
	if required("email_token_expire_minutes") != "" {
		conf.Auth.EmailTokenTTL = time.Duration(v.GetInt("email_token_expire_minutes")) * time.Minute
	}

	conf.Server = ServerConfig{
		Address:         v.GetString("address"),
		DebugAddress:    v.GetString("debug_address"),
		Host:            v.GetString("host"),
		BackendBaseURL:  strings.TrimRight(required("backend_api_url"), "/"),
		AllowedOrigins:  splitList(required("allowed_origins")),
		ShutdownTimeout: time.Duration(v.GetInt("shutdown_timeout_seconds")) * time.Second,
	}

	conf.Database = DatabaseConfig{
		Engine:     strings.ToLower(v.GetString("database_engine")),
		URL:        v.GetString("database_url"),
		User:       v.GetString("db_user"),
		Password:   v.GetString("db_password"),
		Host:       v.GetString("db_host"),
		Port:       v.GetString("db_port"),
		Name:       v.GetString("db_name"),
		DisableTLS: v.GetBool("db_disable_tls"),
	}

	conf.Mail = MailConfig{
		Backend:   strings.ToLower(v.GetString("email_backend")),
		SMTPPort:  v.GetInt("smtp_port"),
		Workers:   v.GetInt("mail_workers"),
		QueueSize: v.GetInt("mail_queue_size"),
		MaxTries:  v.GetInt("mail_max_tries"),
	}
	switch conf.Mail.Backend {
	case EmailBackendSMTP:
		conf.Mail.SMTPHost = required("smtp_host")
		conf.Mail.SMTPUser = required("smtp_user")
		conf.Mail.SMTPPassword = required("smtp_pass")
	case EmailBackendSendgrid:
		conf.Mail.SendgridAPIKey = required("sendgrid_api_key")
	case EmailBackendConsole:
	default:
		return nil, errors.Errorf("unknown EMAIL_BACKEND %q", conf.Mail.Backend)
	}

	if len(missing) > 0 {
		return nil, MissingConfigError{Keys: missing}
	}

	from, err := mail.ParseAddress(v.GetString("default_from_email"))
	if err != nil {
		return nil, errors.Wrap(err, "parsing DEFAULT_FROM_EMAIL")
	}
	conf.Mail.DefaultFromEmail = *from

	if err := conf.validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

func (conf *Config) validate() error {
	method := jwt.GetSigningMethod(conf.Auth.Algorithm)
	if _, ok := method.(*jwt.SigningMethodHMAC); !ok {
		return errors.Errorf("unsupported ALGORITHM %q: only HS256, HS384 and HS512 are supported", conf.Auth.Algorithm)
	}
	if conf.Auth.AccessTokenTTL <= 0 {
		return errors.New("ACCESS_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if conf.Auth.EmailTokenTTL <= 0 {
		return errors.New("EMAIL_TOKEN_EXPIRE_MINUTES must be positive")
	}
	if _, err := url.ParseRequestURI(conf.Server.BackendBaseURL); err != nil {
		return errors.Wrap(err, "parsing BACKEND_API_URL")
	}
	switch conf.Database.Engine {
	case DBEnginePostgres, DBEngineMemory:
	default:
		return errors.Errorf("unknown DATABASE_ENGINE %q", conf.Database.Engine)
	}
	if conf.Mail.Workers < 1 {
		conf.Mail.Workers = 1
	}
	if conf.Mail.MaxTries < 1 {
		conf.Mail.MaxTries = 1
	}
	return nil
}

func splitList(s string) []string {
	var items []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
