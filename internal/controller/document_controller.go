package controller

import (
	"graphrag-gateway/internal/pkg/serverutils"
	"graphrag-gateway/internal/service"

	"github.com/gofiber/fiber/v2"
)

type IDocumentController interface {
	RegisterRoutes(r fiber.Router)
	List(ctx *fiber.Ctx) error
	Upload(ctx *fiber.Ctx) error
}

type documentController struct {
	service service.IDocumentService
}

func NewDocumentController(service service.IDocumentService) IDocumentController {
	return &documentController{service: service}
}

func (c *documentController) RegisterRoutes(r fiber.Router) {
	h := r.Group("/documents")
	h.Get("/", c.List)
	h.Post("/upload", c.Upload)
}

func (c *documentController) List(ctx *fiber.Ctx) error {
	res, err := c.service.List(ctx.UserContext())
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("", res))
}

func (c *documentController) Upload(ctx *fiber.Ctx) error {
	identity, err := serverutils.CurrentIdentity(ctx)
	if err != nil {
		return err
	}

	header, err := ctx.FormFile("file")
	if err != nil {
		return serverutils.Validation("file is required")
	}
	file, err := header.Open()
	if err != nil {
		return serverutils.Internal(err)
	}
	defer file.Close()

	res, err := c.service.Upload(ctx.UserContext(), identity, service.UploadFile{
		FileName:    header.Filename,
		ContentType: header.Header.Get(fiber.HeaderContentType),
		Content:     file,
	})
	if err != nil {
		return err
	}
	return ctx.JSON(serverutils.SuccessResponse("Document uploaded", res))
}
