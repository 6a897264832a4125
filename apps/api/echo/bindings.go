package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/ratiba/core"
	"github.com/trezcool/ratiba/core/user"
)

const (
	idParam   = "id"
	roleParam = "role"
)

// pathID parses the `:id` path parameter. Malformed ids are reported as core.ErrNotFound.
func pathID(ctx echo.Context) (int64, error) {
	return core.ParseID(ctx.Param(idParam))
}

// bindUserFilter reads the optional `role` query parameter.
func bindUserFilter(ctx echo.Context) (user.QueryFilter, error) {
	var filter user.QueryFilter
	val := ctx.QueryParam(roleParam)
	if val == "" {
		return filter, nil
	}
	role, err := user.ParseRole(val)
	if err != nil {
		return filter, core.NewValidationError(nil, core.FieldError{Field: roleParam, Error: "role must be one of admin, teacher or student"})
	}
	filter.Role = role
	return filter, nil
}
