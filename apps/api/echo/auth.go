package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/auth"
	"github.com/trezcool/ratiba/core/user"
)

const (
	contextUserKey = "user"
	bearerScheme   = "bearer"
)

type (
	LoginResponse struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}

	MessageResponse struct {
		Message string `json:"message"`
	}

	ResendVerificationRequest struct {
		Email string `json:"email" form:"email" validate:"required,email"`
	}
)

// bearerToken extracts the token of an `Authorization: Bearer <token>` header.
func bearerToken(req *http.Request) (string, error) {
	parts := strings.SplitN(req.Header.Get(echo.HeaderAuthorization), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], bearerScheme) || strings.TrimSpace(parts[1]) == "" {
		return "", core.ErrUnauthenticated
	}
	return strings.TrimSpace(parts[1]), nil
}

// authMiddleware resolves the bearer token into the acting user and stores it in the echo.Context.
func authMiddleware(resolver *auth.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			tok, err := bearerToken(ctx.Request())
			if err != nil {
				return err
			}
			usr, err := resolver.Resolve(ctx.Request().Context(), tok)
			if err != nil {
				if errors.Cause(err) == core.ErrNotFound {
					return errUserNotFound
				}
				return err
			}
			ctx.Set(contextUserKey, usr)
			return next(ctx)
		}
	}
}

// roleMiddleware lets through authenticated users holding one of roles.
func roleMiddleware(roles ...user.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			if err := auth.RequireRole(usr, roles...); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func getContextUser(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextUserKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, core.ErrUnauthenticated
}

type authApi struct {
	resolver *auth.Resolver
	users    *user.Service
}

func registerAuthAPI(g *echo.Group, resolver *auth.Resolver, users *user.Service) {
	api := authApi{resolver: resolver, users: users}

	// TODO: rate limit `/login` & `/resend-verification`
	g.POST("/login", api.login)
	g.GET("/verify-email", api.verifyEmail)
	g.POST("/resend-verification", api.resendVerification)
}

// login exchanges form-encoded username (the email) and password for a session token.
func (api *authApi) login(ctx echo.Context) error {
	uname, pwd := ctx.FormValue("username"), ctx.FormValue("password")

	var flds []core.FieldError
	if strings.TrimSpace(uname) == "" {
		flds = append(flds, core.FieldError{Field: "username", Error: "this field is required"})
	}
	if pwd == "" {
		flds = append(flds, core.FieldError{Field: "password", Error: "this field is required"})
	}
	if len(flds) > 0 {
		return core.NewValidationError(nil, flds...)
	}

	tok, err := api.resolver.Login(ctx.Request().Context(), uname, pwd)
	if err != nil {
		return errors.Wrap(err, "logging in")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{AccessToken: tok, TokenType: bearerScheme})
}

func (api *authApi) verifyEmail(ctx echo.Context) error {
	already, err := api.users.VerifyEmail(ctx.Request().Context(), ctx.QueryParam("token"))
	if err != nil {
		return errors.Wrap(err, "verifying email")
	}
	msg := "Email verification successful"
	if already {
		msg = "Email already verified"
	}
	return ctx.JSON(http.StatusOK, MessageResponse{Message: msg})
}

func (api *authApi) resendVerification(ctx echo.Context) error {
	var data ResendVerificationRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ResendVerificationRequest")
	}
	data.Email = core.CleanString(data.Email, true /* lower */)
	if err := core.Validate.Struct(data); err != nil {
		return err
	}

	if err := api.users.ResendVerification(ctx.Request().Context(), data.Email); err != nil {
		// do not reveal anything about the account
		ctx.Logger().Errorf("%+v", errors.Wrap(err, "resending verification email"))
	}
	return ctx.JSON(http.StatusOK, MessageResponse{
		Message: "If the email address belongs to an account awaiting verification, " +
			"a new verification email will arrive in your inbox shortly.",
	})
}
