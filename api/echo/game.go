package echoapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/tiba/core"
	"github.com/trezcool/tiba/core/game"
	"github.com/trezcool/tiba/core/user"
)

type gameApi struct {
	svc *game.Service
}

func registerGameAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *game.Service) {
	api := gameApi{svc: svc}

	// session submission by the playing user
	sg := g.Group("/game", jwt)
	sg.POST("/sessions", api.completeSession)
	sg.GET("/level-span", api.ownLevelSpan)

	// per-user views
	ug := g.Group("/users/:id/game", jwt)
	ug.GET("/progress", api.progress, selfOrRolesMiddleware(user.RoleCaretaker, user.RoleDoctor))
	ug.GET("/stats", api.stats, selfOrRolesMiddleware(user.RoleCaretaker, user.RoleDoctor))
	ug.GET("/report", api.report, rolesMiddleware(user.RoleDoctor))
	ug.GET("/level-span", api.levelSpan, selfOrRolesMiddleware(user.RoleCaretaker, user.RoleDoctor))
	ug.PUT("/level-span", api.setLevelSpan, rolesMiddleware(user.RoleCaretaker, user.RoleDoctor))
}

// Handlers

func (api *gameApi) completeSession(ctx echo.Context) error {
	var data CompleteSessionRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to CompleteSessionRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	userID, err := claims.UserID()
	if err != nil {
		return err
	}

	startedAt := data.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now().UTC()
	}
	id := data.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	sess := game.Session{
		ID:        id,
		StartedAt: startedAt,
		LevelSpan: data.LevelSpan,
		PlayLog:   data.PlayLog,
	}

	prog, err := api.svc.CompleteSession(userID, sess)
	if err != nil {
		if errors.Cause(err) == game.ErrInvalidSessionData {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return errors.Wrap(err, "completing session")
	}
	return ctx.JSON(http.StatusCreated, prog)
}

func (api *gameApi) ownLevelSpan(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context claims")
	}
	userID, err := claims.UserID()
	if err != nil {
		return err
	}

	span, err := api.svc.LevelSpan(userID)
	if err != nil {
		return errors.Wrap(err, "getting level span")
	}
	return ctx.JSON(http.StatusOK, LevelSpanResponse{LevelSpan: span})
}

func (api *gameApi) progress(ctx echo.Context) error {
	userID, err := paramUserID(ctx)
	if err != nil {
		return err
	}

	prog, err := api.svc.ProgressOf(userID)
	if err != nil {
		return errors.Wrap(err, "getting progress")
	}
	return ctx.JSON(http.StatusOK, prog)
}

func (api *gameApi) stats(ctx echo.Context) error {
	userID, err := paramUserID(ctx)
	if err != nil {
		return err
	}

	report, err := api.svc.BasicStats(userID)
	if err != nil {
		return errors.Wrap(err, "getting stats")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *gameApi) report(ctx echo.Context) error {
	userID, err := paramUserID(ctx)
	if err != nil {
		return err
	}

	report, err := api.svc.DetailedReport(userID)
	if err != nil {
		return errors.Wrap(err, "getting report")
	}
	return ctx.JSON(http.StatusOK, report)
}

func (api *gameApi) levelSpan(ctx echo.Context) error {
	userID, err := paramUserID(ctx)
	if err != nil {
		return err
	}

	span, err := api.svc.LevelSpan(userID)
	if err != nil {
		return errors.Wrap(err, "getting level span")
	}
	return ctx.JSON(http.StatusOK, LevelSpanResponse{LevelSpan: span})
}

func (api *gameApi) setLevelSpan(ctx echo.Context) error {
	userID, err := paramUserID(ctx)
	if err != nil {
		return err
	}

	var data SetLevelSpanRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetLevelSpanRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	if err := api.svc.SetLevelSpan(userID, data.LevelSpan); err != nil {
		return errors.Wrap(err, "setting level span")
	}
	return ctx.JSON(http.StatusOK, LevelSpanResponse{LevelSpan: data.LevelSpan})
}

func paramUserID(ctx echo.Context) (int, error) {
	id, err := strconv.Atoi(ctx.Param("id"))
	if err != nil {
		return 0, errHttpNotFound
	}
	return id, nil
}

type (
	CompleteSessionRequest struct {
		// ID lets a client retry a lost submission without recording the
		// session twice; one is generated when omitted.
		ID        uuid.UUID        `json:"id"`
		StartedAt time.Time        `json:"started_at"`
		LevelSpan int              `json:"level_span" validate:"required"`
		PlayLog   []game.PlayEntry `json:"play_log" validate:"required"`
	}

	SetLevelSpanRequest struct {
		LevelSpan int `json:"level_span" validate:"required"`
	}

	LevelSpanResponse struct {
		LevelSpan int `json:"level_span"`
	}
)

func (cs *CompleteSessionRequest) Validate() error { return core.Validate.Struct(cs) }

func (ls *SetLevelSpanRequest) Validate() error { return core.Validate.Struct(ls) }
