package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/user"
)

type userApi struct {
	svc *user.Service
}

func registerUserAPI(g *echo.Group, authed echo.MiddlewareFunc, svc *user.Service) {
	api := userApi{svc: svc}

	// un-authed endpoints
	g.POST("", api.create)

	// authed endpoints
	g.GET("", api.query, authed)
	g.GET("/me", api.me, authed)
	g.PUT("/me", api.updateMe, authed)
	g.GET("/teachers", api.queryRole(user.RoleTeacher), authed)
	g.GET("/students", api.queryRole(user.RoleStudent), authed)

	// detail endpoints
	g.GET("/:id", api.retrieve, authed)
	g.DELETE("/:id", api.destroy, authed, roleMiddleware(user.RoleAdmin))
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) me(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) updateMe(ctx echo.Context) error {
	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	usr, err = api.svc.UpdateMe(ctx.Request().Context(), usr, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter, err := bindUserFilter(ctx)
	if err != nil {
		return err
	}
	return api.list(ctx, filter)
}

func (api *userApi) queryRole(role user.Role) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		return api.list(ctx, user.QueryFilter{Role: role})
	}
}

func (api *userApi) list(ctx echo.Context, filter user.QueryFilter) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	users, err := api.svc.Query(ctx.Request().Context(), actor, filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	usr, err := api.svc.GetInOrganisation(ctx.Request().Context(), actor, id)
	if err != nil {
		return errors.Wrap(err, "finding user")
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}
