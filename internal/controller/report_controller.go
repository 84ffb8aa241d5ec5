package controller

import (
	"bufio"
	"context"
	"errors"

	"research-flowstream/internal/dto"
	"research-flowstream/internal/pkg/logger"
	"research-flowstream/internal/pkg/serverutils"
	"research-flowstream/internal/service"
	"research-flowstream/pkg/ai/pipeline"
	"research-flowstream/pkg/sse"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

const httpLogModule = "HTTP"

// JobRunner runs one research job and streams its events to em.
type JobRunner interface {
	Run(ctx context.Context, topic string, em pipeline.Emitter) (*pipeline.RunResult, error)
}

type IReportController interface {
	RegisterRoutes(r fiber.Router)
	Health(ctx *fiber.Ctx) error
	StartJobStream(ctx *fiber.Ctx) error
	ListReports(ctx *fiber.Ctx) error
	SearchReports(ctx *fiber.Ctx) error
}

type reportController struct {
	runner  JobRunner
	service service.IReportService
	logger  logger.ILogger
	// baseCtx bounds stream runs; it is cancelled on shutdown.
	baseCtx context.Context
}

func NewReportController(baseCtx context.Context, runner JobRunner, service service.IReportService, log logger.ILogger) IReportController {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	return &reportController{
		runner:  runner,
		service: service,
		logger:  log,
		baseCtx: baseCtx,
	}
}

func (c *reportController) RegisterRoutes(r fiber.Router) {
	r.Get("/", c.Health)
	r.Post("/start-job-stream", c.StartJobStream)
	r.Get("/list-reports", c.ListReports)
	r.Post("/search-reports", c.SearchReports)
}

func (c *reportController) Health(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"message": "Backend is running."})
}

// StartJobStream answers with an event stream. Status and headers are
// committed before the pipeline starts, so failures after this point are
// reported as error events rather than HTTP errors.
func (c *reportController) StartJobStream(ctx *fiber.Ctx) error {
	var req dto.StartJobRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	ctx.Set(fiber.HeaderContentType, sse.ContentType)
	ctx.Set(fiber.HeaderCacheControl, "no-cache")
	ctx.Set(fiber.HeaderConnection, "keep-alive")
	ctx.Set("X-Accel-Buffering", "no")

	topic := req.Topic
	ctx.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		runCtx, cancel := context.WithCancel(c.baseCtx)
		defer cancel()

		res, err := c.runner.Run(runCtx, topic, sse.NewWriter(w, w.Flush))
		if err != nil {
			if errors.Is(err, pipeline.ErrConsumerGone) {
				c.logger.Info(httpLogModule, "Stream consumer disconnected", map[string]interface{}{
					"state": res.State.String(),
				})
			}
			return
		}
		c.logger.Debug(httpLogModule, "Stream finished", map[string]interface{}{"report_id": res.ReportID})
	}))
	return nil
}

func (c *reportController) ListReports(ctx *fiber.Ctx) error {
	res, err := c.service.List(ctx.UserContext(), service.DefaultListLimit)
	if err != nil {
		c.logger.Error(httpLogModule, "List reports failed", map[string]interface{}{"error": err})
		return err
	}
	return ctx.JSON(res)
}

func (c *reportController) SearchReports(ctx *fiber.Ctx) error {
	var req dto.SearchReportsRequest
	if err := ctx.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if err := serverutils.ValidateRequest(req); err != nil {
		return err
	}

	res, err := c.service.Search(ctx.UserContext(), req.Query, service.DefaultTopK)
	if err != nil {
		c.logger.Error(httpLogModule, "Search reports failed", map[string]interface{}{"error": err})
		return err
	}
	return ctx.JSON(res)
}
