package echoapi

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ratiba/core/lesson"
	"github.com/trezcool/ratiba/core/user"
)

type lessonApi struct {
	svc *lesson.Service
}

func registerLessonAPI(g *echo.Group, authed echo.MiddlewareFunc, svc *lesson.Service) {
	api := lessonApi{svc: svc}

	student := roleMiddleware(user.RoleStudent)
	teacher := roleMiddleware(user.RoleTeacher)
	admin := roleMiddleware(user.RoleAdmin)

	// student endpoints
	g.GET("/my-upcoming", api.upcoming, authed, student)

	// teacher endpoints
	g.POST("", api.create, authed, teacher)
	g.GET("/my-lessons", api.taught, authed, teacher)
	g.PUT("/:id", api.update, authed, roleMiddleware(user.RoleTeacher, user.RoleAdmin))
	g.DELETE("/:id/own", api.destroy, authed, teacher)

	// admin endpoints
	g.GET("", api.query, authed, admin)
	g.POST("/admin", api.create, authed, admin)
	g.GET("/:id", api.retrieve, authed, admin)
	g.DELETE("/:id", api.destroy, authed, admin)
}

// Handlers

// create serves both the teacher and admin creation routes, lesson.Policy tells them apart.
func (api *lessonApi) create(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	var data lesson.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	les, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating lesson")
	}
	return ctx.JSON(http.StatusCreated, les)
}

func (api *lessonApi) update(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	var data lesson.NewLesson
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewLesson")
	}
	les, err := api.svc.Update(ctx.Request().Context(), actor, id, data)
	if err != nil {
		return errors.Wrap(err, "updating lesson")
	}
	return ctx.JSON(http.StatusOK, les)
}

func (api *lessonApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	if err := api.svc.Delete(ctx.Request().Context(), actor, id); err != nil {
		return errors.Wrap(err, "deleting lesson")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *lessonApi) retrieve(ctx echo.Context) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	id, err := pathID(ctx)
	if err != nil {
		return err
	}
	les, err := api.svc.Get(ctx.Request().Context(), actor, id)
	if err != nil {
		return errors.Wrap(err, "finding lesson")
	}
	return ctx.JSON(http.StatusOK, les)
}

func (api *lessonApi) upcoming(ctx echo.Context) error {
	return api.list(ctx, api.svc.QueryUpcoming)
}

func (api *lessonApi) taught(ctx echo.Context) error {
	return api.list(ctx, api.svc.QueryTaught)
}

func (api *lessonApi) query(ctx echo.Context) error {
	return api.list(ctx, api.svc.QueryOrganisation)
}

func (api *lessonApi) list(ctx echo.Context, queryFn func(context.Context, user.User) ([]lesson.Lesson, error)) error {
	actor, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	lessons, err := queryFn(ctx.Request().Context(), actor)
	if err != nil {
		return errors.Wrap(err, "querying lessons")
	}
	return ctx.JSON(http.StatusOK, lessons)
}
