// Package token issues and verifies the signed, time-limited tokens used for
// session authentication and email verification.
package token

import (
	"strconv"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
)

// Token purposes
const (
	PurposeSession           = "session"
	PurposeEmailVerification = "email_verification"
)

var (
	ErrInvalid = errors.New("invalid token")
	ErrExpired = errors.New("token has expired")
)

// Claims represents the claims transmitted via a token.
type Claims struct {
	jwt.StandardClaims
	Purpose string `json:"purpose,omitempty"`
}

// UserID returns the subject of a session token as a user id.
func (c Claims) UserID() (int64, error) {
	if c.Purpose != PurposeSession || c.Subject == "" {
		return 0, ErrInvalid
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return 0, ErrInvalid
	}
	return id, nil
}

type Service struct {
	issuer     string
	key        []byte
	method     jwt.SigningMethod
	sessionTTL time.Duration
	emailTTL   time.Duration
	now        func() time.Time // mockable
}

// Option configures a Service.
type Option func(*Service)

// WithClock makes the service read the current time from now.
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

func NewService(conf *core.Config, opts ...Option) (*Service, error) {
	method, ok := jwt.GetSigningMethod(conf.Auth.Algorithm).(*jwt.SigningMethodHMAC)
	if !ok {
		return nil, errors.Errorf("unsupported signing algorithm %q", conf.Auth.Algorithm)
	}
	if conf.Auth.SecretKey == "" {
		return nil, errors.New("empty signing secret")
	}
	sessionTTL := conf.Auth.AccessTokenTTL
	if sessionTTL <= 0 {
		sessionTTL = 60 * time.Minute
	}
	svc := &Service{
		issuer:     conf.AppName,
		key:        []byte(conf.Auth.SecretKey),
		method:     method,
		sessionTTL: sessionTTL,
		emailTTL:   conf.Auth.EmailTokenTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

func (svc *Service) issue(subject, purpose string, ttl time.Duration) (string, error) {
	now := svc.now()
	claims := &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    svc.issuer,
			Subject:   subject,
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(ttl).Unix(),
		},
		Purpose: purpose,
	}
	ss, err := jwt.NewWithClaims(svc.method, claims).SignedString(svc.key)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

// IssueSessionToken issues a session token whose subject is the user id.
func (svc *Service) IssueSessionToken(userID int64) (string, error) {
	return svc.issue(strconv.FormatInt(userID, 10), PurposeSession, svc.sessionTTL)
}

// IssueEmailToken issues an email verification token whose subject is the email.
func (svc *Service) IssueEmailToken(email string) (string, error) {
	return svc.issue(email, PurposeEmailVerification, svc.emailTTL)
}

// Verify checks the token's signature, algorithm and expiry.
func (svc *Service) Verify(tokenStr string) (*Claims, error) {
	claims := new(Claims)
	parser := jwt.Parser{ValidMethods: []string{svc.method.Alg()}, SkipClaimsValidation: true}
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(*jwt.Token) (interface{}, error) {
		return svc.key, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}

	// claims validated against our own clock
	now := svc.now().Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return nil, ErrExpired
	}
	if !claims.VerifyIssuedAt(now, false) {
		return nil, ErrInvalid
	}
	return claims, nil
}
