package user

import (
	"context"
	"net/mail"
	"net/url"

	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/token"
)

var (
	ErrEmailExists = errors.New("a user with this email already exists")
	ErrOrgNotFound = errors.New("organisation not found")
)

type (
	// Repository lookups return core.ErrNotFound when nothing matches.
	Repository interface {
		// CreateUser returns ErrEmailExists when the email is already taken.
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUserByID(ctx context.Context, id int64) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		// GetUsersByIDs returns the users found among ids, unknown ids are skipped.
		GetUsersByIDs(ctx context.Context, ids []int64) ([]User, error)
		// QueryUsers lists the users of an organisation ordered by id.
		QueryUsers(ctx context.Context, orgID int64, filter QueryFilter) ([]User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		// DeleteUser removes the user's lesson associations, then the user, in one transaction.
		DeleteUser(ctx context.Context, id int64) error
	}

	OrganisationLookup interface {
		Exists(ctx context.Context, id int64) (bool, error)
	}

	TokenService interface {
		IssueEmailToken(email string) (string, error)
		Verify(tok string) (*token.Claims, error)
	}

	Service struct {
		repo    Repository
		orgs    OrganisationLookup
		tokens  TokenService
		hasher  PasswordHasher
		mailSvc core.EmailService
		logger  core.Logger
		conf    *core.Config
	}
)

func NewService(
	repo Repository,
	orgs OrganisationLookup,
	tokens TokenService,
	hasher PasswordHasher,
	mailSvc core.EmailService,
	logger core.Logger,
	conf *core.Config,
) *Service {
	return &Service{
		repo:    repo,
		orgs:    orgs,
		tokens:  tokens,
		hasher:  hasher,
		mailSvc: mailSvc,
		logger:  logger,
		conf:    conf,
	}
}

func (svc *Service) checkEmail(ctx context.Context, email string) error {
	if _, err := svc.repo.GetUserByEmail(ctx, email); err == nil {
		return duplicateEmailError()
	} else if errors.Cause(err) != core.ErrNotFound {
		return errors.Wrap(err, "checking email uniqueness")
	}
	return nil
}

func duplicateEmailError() error {
	return core.NewValidationError(core.ErrDuplicateEmail, core.FieldError{Field: "email", Error: ErrEmailExists.Error()})
}

// Create registers a new unverified user and queues their verification email.
// Failures to queue the email are logged and never undo the registration.
func (svc *Service) Create(ctx context.Context, nu NewUser) (User, error) {
	return svc.create(ctx, nu, false)
}

// CreateVerified registers a user whose email is trusted, no verification email is sent.
func (svc *Service) CreateVerified(ctx context.Context, nu NewUser) (User, error) {
	return svc.create(ctx, nu, true)
}

func (svc *Service) create(ctx context.Context, nu NewUser, verified bool) (User, error) {
	if err := nu.Validate(); err != nil {
		return User{}, err
	}
	if nu.OrganisationID.Valid {
		ok, err := svc.orgs.Exists(ctx, nu.OrganisationID.Int64)
		if err != nil {
			return User{}, errors.Wrap(err, "checking organisation")
		}
		if !ok {
			return User{}, core.NewValidationError(ErrOrgNotFound, core.FieldError{Field: "organisation_id", Error: ErrOrgNotFound.Error()})
		}
	}
	if err := svc.checkEmail(ctx, nu.Email); err != nil {
		return User{}, err
	}

	hash, err := svc.hasher.Hash(nu.Password)
	if err != nil {
		return User{}, errors.Wrap(err, "hashing password")
	}
	usr, err := svc.repo.CreateUser(ctx, User{
		Name:           nu.Name,
		Email:          nu.Email,
		Role:           nu.Role,
		OrganisationID: nu.OrganisationID,
		IsVerified:     verified,
		PasswordHash:   hash,
	})
	if err != nil {
		if errors.Cause(err) == ErrEmailExists {
			return User{}, duplicateEmailError()
		}
		return User{}, errors.Wrap(err, "creating user")
	}

	if !verified {
		svc.sendVerificationEmail(usr)
	}
	return usr, nil
}

func (svc *Service) sendVerificationEmail(usr User) {
	tok, err := svc.tokens.IssueEmailToken(usr.Email)
	if err != nil {
		svc.logger.Error("issuing email token", errors.Wrap(err, "issuing email token"), usr)
		return
	}
	link := svc.conf.Server.BackendBaseURL + "/auth/verify-email?token=" + url.QueryEscape(tok)

	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
		Subject:      "Verify your email address",
		TemplateName: "verify_email",
		TemplateData: struct {
			Name string
			Link string
		}{Name: usr.Name, Link: link},
	})
}

// VerifyEmail consumes an email verification token. Verifying an already verified
// account succeeds without writing and reports alreadyVerified.
func (svc *Service) VerifyEmail(ctx context.Context, tok string) (alreadyVerified bool, err error) {
	claims, err := svc.tokens.Verify(tok)
	if err != nil || claims.Purpose != token.PurposeEmailVerification || claims.Subject == "" {
		return false, core.NewValidationError(core.ErrInvalidToken)
	}

	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(claims.Subject, true /* lower */))
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return false, core.NewValidationError(core.ErrUserNotFound)
		}
		return false, errors.Wrap(err, "finding user by email")
	}
	if usr.IsVerified {
		return true, nil
	}

	usr.IsVerified = true
	if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
		return false, errors.Wrap(err, "verifying user")
	}
	return false, nil
}

// ResendVerification queues a new verification email for an unverified account.
// Unknown and already verified emails are silently ignored.
func (svc *Service) ResendVerification(ctx context.Context, email string) error {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == core.ErrNotFound {
			return nil
		}
		return errors.Wrap(err, "finding user by email")
	}
	if !usr.IsVerified {
		svc.sendVerificationEmail(usr)
	}
	return nil
}

// UpdateMe applies a self-service update (name and/or password).
func (svc *Service) UpdateMe(ctx context.Context, usr User, uu UpdateUser) (User, error) {
	if err := uu.Validate(usr); err != nil {
		return User{}, err
	}
	if uu.IsEmpty() {
		return usr, nil
	}
	if uu.Name != nil {
		usr.Name = *uu.Name
	}
	if uu.Password != nil {
		hash, err := svc.hasher.Hash(*uu.Password)
		if err != nil {
			return User{}, errors.Wrap(err, "hashing password")
		}
		usr.PasswordHash = hash
	}
	return svc.repo.UpdateUser(ctx, usr)
}

// SetPassword replaces the password of the user with the given email.
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.GetByEmail(ctx, email)
	if err != nil {
		return err
	}
	if msg := checkPassword(pwd, usr.Name, usr.Email); msg != "" {
		return core.NewValidationError(nil, core.FieldError{Field: "password", Error: msg})
	}
	hash, err := svc.hasher.Hash(pwd)
	if err != nil {
		return errors.Wrap(err, "hashing password")
	}
	usr.PasswordHash = hash
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}

// Query lists the users of actor's organisation.
func (svc *Service) Query(ctx context.Context, actor User, filter QueryFilter) ([]User, error) {
	orgID, ok := actor.OrgID()
	if !ok {
		return []User{}, nil
	}
	return svc.repo.QueryUsers(ctx, orgID, filter)
}

// GetInOrganisation returns the user id if they share actor's organisation.
func (svc *Service) GetInOrganisation(ctx context.Context, actor User, id int64) (User, error) {
	orgID, ok := actor.OrgID()
	if !ok {
		return User{}, core.ErrNotFound
	}
	usr, err := svc.repo.GetUserByID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !usr.InOrganisation(orgID) {
		return User{}, core.ErrNotFound
	}
	return usr, nil
}

// Delete removes a user of the admin actor's organisation. Admins cannot delete themselves.
func (svc *Service) Delete(ctx context.Context, actor User, id int64) error {
	if !actor.IsAdmin() {
		return core.ErrForbidden
	}
	usr, err := svc.GetInOrganisation(ctx, actor, id)
	if err != nil {
		return err
	}
	if usr.ID == actor.ID {
		return core.ErrForbidden
	}
	if err := svc.repo.DeleteUser(ctx, usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return nil
}

func (svc *Service) GetByID(ctx context.Context, id int64) (User, error) {
	return svc.repo.GetUserByID(ctx, id)
}

func (svc *Service) GetByEmail(ctx context.Context, email string) (User, error) {
	return svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
}

// GetByIDs returns the users found among ids.
func (svc *Service) GetByIDs(ctx context.Context, ids []int64) ([]User, error) {
	if len(ids) == 0 {
		return []User{}, nil
	}
	return svc.repo.GetUsersByIDs(ctx, ids)
}

// CheckPassword reports whether pwd matches usr's password hash.
func (svc *Service) CheckPassword(usr User, pwd string) bool {
	return svc.hasher.Verify(usr.PasswordHash, pwd)
}
