// Package api exposes statement upload, status, verification and export
// over HTTP.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/insightdelivered/statement-reconciler/internal/analyzer"
	"github.com/insightdelivered/statement-reconciler/internal/models"
	"github.com/insightdelivered/statement-reconciler/internal/processor"
	"github.com/insightdelivered/statement-reconciler/internal/store"
	"github.com/insightdelivered/statement-reconciler/internal/writer"
)

const version = "1.0.0"

// Submitter queues a statement for background processing.
type Submitter interface {
	Submit(ctx context.Context, statementID uint64) (string, error)
}

// SubmitFunc adapts a function to Submitter.
type SubmitFunc func(ctx context.Context, statementID uint64) (string, error)

func (f SubmitFunc) Submit(ctx context.Context, statementID uint64) (string, error) {
	return f(ctx, statementID)
}

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// UploadResponse is returned when a statement is accepted.
type UploadResponse struct {
	Success bool                   `json:"success"`
	ID      uint64                 `json:"id"`
	JobID   string                 `json:"jobId"`
	Status  models.StatementStatus `json:"status"`
	Format  models.Format          `json:"format"`
}

// TransactionsResponse lists a statement's stored transactions.
type TransactionsResponse struct {
	StatementID  uint64               `json:"statementId"`
	Count        int                  `json:"count"`
	Summary      models.Summary       `json:"summary"`
	Transactions []models.Transaction `json:"transactions"`
}

// Handler holds the HTTP handlers for the API.
type Handler struct {
	Store     store.Store
	Processor *processor.Processor
	Jobs      Submitter
	UploadDir string
	// BodyLimitMB caps upload size; zero keeps fiber's default.
	BodyLimitMB int
	Log         zerolog.Logger
}

// App builds a fiber application with every route registered.
func (h *Handler) App() *fiber.App {
	cfg := fiber.Config{
		AppName:      "statement-reconciler",
		ErrorHandler: h.handleError,
	}
	if h.BodyLimitMB > 0 {
		cfg.BodyLimit = h.BodyLimitMB << 20
	}
	app := fiber.New(cfg)
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "POST, GET, OPTIONS",
		AllowHeaders: "Content-Type",
	}))
	h.RegisterRoutes(app)
	return app
}

// RegisterRoutes sets up the HTTP routes.
func (h *Handler) RegisterRoutes(r fiber.Router) {
	api := r.Group("/api")
	api.Get("/health", h.handleHealth)
	api.Get("/statements", h.handleList)
	api.Post("/statements", h.handleUpload)
	api.Get("/statements/:id", h.handleGet)
	api.Get("/statements/:id/transactions", h.handleTransactions)
	api.Post("/statements/:id/verify", h.handleVerify)
	api.Get("/statements/:id/export", h.handleExport)
}

func (h *Handler) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": version,
		"engine":  "fiber",
	})
}

func (h *Handler) handleList(c *fiber.Ctx) error {
	statements, err := h.Store.ListStatements()
	if err != nil {
		return err
	}
	return c.JSON(statements)
}

func (h *Handler) handleUpload(c *fiber.Ctx) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return writeError(c, fiber.StatusBadRequest, "No file uploaded. Use form field 'file'.")
	}

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	if !supportedExtension(ext) {
		return writeError(c, fiber.StatusUnsupportedMediaType, fmt.Sprintf("Unsupported file type %q.", ext))
	}

	if err := os.MkdirAll(h.UploadDir, 0o755); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}
	path := filepath.Join(h.UploadDir, uuid.New().String()+ext)
	if err := c.SaveFile(fh, path); err != nil {
		return fmt.Errorf("saving upload: %w", err)
	}

	format := analyzer.IdentifyFormat(path)
	if format == models.FormatUnknown {
		os.Remove(path)
		return writeError(c, fiber.StatusUnsupportedMediaType, "File content does not match a supported statement format.")
	}

	s := &models.Statement{
		FileName: fh.Filename,
		FilePath: path,
		Format:   format,
		BankHint: strings.ToLower(strings.TrimSpace(c.FormValue("bank"))),
		Status:   models.StatementPending,
	}
	if err := h.Store.CreateStatement(s); err != nil {
		return err
	}

	jobID, err := h.Jobs.Submit(c.UserContext(), s.ID)
	if err != nil {
		h.Log.Error().Err(err).Uint64("statement_id", s.ID).Msg("queueing statement failed")
		return writeError(c, fiber.StatusServiceUnavailable, "Statement stored but could not be queued.")
	}
	h.Log.Info().Uint64("statement_id", s.ID).Str("job_id", jobID).Str("file", fh.Filename).Msg("statement accepted")

	return c.Status(fiber.StatusAccepted).JSON(UploadResponse{
		Success: true,
		ID:      s.ID,
		JobID:   jobID,
		Status:  s.Status,
		Format:  format,
	})
}

func (h *Handler) handleGet(c *fiber.Ctx) error {
	id, err := statementID(c)
	if err != nil {
		return err
	}
	s, err := h.Store.GetStatement(id)
	if err != nil {
		return err
	}
	return c.JSON(s)
}

func (h *Handler) handleTransactions(c *fiber.Ctx) error {
	id, err := statementID(c)
	if err != nil {
		return err
	}
	txns, err := h.Store.Transactions(id)
	if err != nil {
		return err
	}
	return c.JSON(TransactionsResponse{
		StatementID:  id,
		Count:        len(txns),
		Summary:      models.Summarize(txns),
		Transactions: txns,
	})
}

func (h *Handler) handleVerify(c *fiber.Ctx) error {
	id, err := statementID(c)
	if err != nil {
		return err
	}
	s, err := h.Store.GetStatement(id)
	if err != nil {
		return err
	}
	if s.Status == models.StatementPending || s.Status == models.StatementProcessing {
		return writeError(c, fiber.StatusConflict, fmt.Sprintf("Statement is still %s.", s.Status))
	}

	res, err := h.Processor.Verify(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (h *Handler) handleExport(c *fiber.Ctx) error {
	id, err := statementID(c)
	if err != nil {
		return err
	}
	s, err := h.Store.GetStatement(id)
	if err != nil {
		return err
	}
	txns, err := h.Processor.Verified(id)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	if c.Query("format") == "json" {
		if err := writer.WriteJSON(&buf, s.Metadata, txns); err != nil {
			return err
		}
		c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		return c.Send(buf.Bytes())
	}

	w := &writer.CSVWriter{IncludeHeader: c.Query("header") != "false"}
	if err := w.Write(&buf, s.Metadata, txns); err != nil {
		return fmt.Errorf("CSV generation failed: %w", err)
	}
	name := strings.TrimSuffix(s.FileName, filepath.Ext(s.FileName)) + ".csv"
	c.Set(fiber.HeaderContentType, "text/csv")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", name))
	return c.Send(buf.Bytes())
}

// handleError maps handler errors to JSON responses.
func (h *Handler) handleError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		status = fe.Code
	case errors.Is(err, models.ErrNotFound):
		status = fiber.StatusNotFound
	}
	if status == fiber.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	return writeError(c, status, err.Error())
}

func statementID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("invalid statement id %q", c.Params("id")))
	}
	return id, nil
}

func supportedExtension(ext string) bool {
	switch ext {
	case ".pdf", ".txt", ".csv", ".tsv", ".xls", ".xlsx", ".png", ".jpg", ".jpeg", ".gif", ".heic":
		return true
	}
	return false
}

func writeError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(ErrorResponse{
		Success: false,
		Error:   msg,
	})
}
