package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/auth"
)

var errUserNotFound = echo.NewHTTPError(http.StatusNotFound, core.ErrUserNotFound.Error())

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var (
			code    int
			message interface{}

			httpErr *echo.HTTPError
			vErrs   validator.ValidationErrors
			vErr    *core.ValidationError
		)

		switch {
		case errors.As(err, &httpErr):
			if httpErr.Internal != nil {
				if herr, ok := httpErr.Internal.(*echo.HTTPError); ok {
					httpErr = herr
				}
			}
			code = httpErr.Code
			message = httpErr.Message
		case errors.As(err, &vErrs):
			fldErrs := make(map[string]string, len(vErrs))
			for _, fe := range vErrs {
				fldErrs[fe.Field()] = fe.Translate(core.Translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case errors.Is(err, core.ErrUserNotFound):
			code = http.StatusNotFound
			message = core.ErrUserNotFound.Error()
		case errors.As(err, &vErr):
			if len(vErr.Fields) > 0 {
				fldErrs := make(map[string]string, len(vErr.Fields))
				for _, fe := range vErr.Fields {
					fldErrs[fe.Field] = fe.Error
				}
				message = fldErrs
			} else {
				message = vErr.Error()
			}
			code = http.StatusBadRequest
		case errors.Is(err, auth.ErrInvalidCredentials):
			code, message = http.StatusUnauthorized, auth.ErrInvalidCredentials.Error()
		case errors.Is(err, auth.ErrEmailNotVerified):
			code, message = http.StatusUnauthorized, auth.ErrEmailNotVerified.Error()
		case errors.Is(err, core.ErrUnauthenticated):
			code, message = http.StatusUnauthorized, core.ErrUnauthenticated.Error()
			ctx.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		case errors.Is(err, core.ErrForbidden):
			code, message = http.StatusForbidden, core.ErrForbidden.Error()
		case errors.Is(err, core.ErrNotFound):
			code, message = http.StatusNotFound, core.ErrNotFound.Error()
		default: // any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			args := []interface{}{errors.Wrap(err, msg)}
			if usr, uErr := getContextUser(ctx); uErr == nil {
				args = append(args, usr)
			}
			logger.Error(msg, args...)

			if ctx.Echo().Debug {
				message = err.Error()
			}
			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
