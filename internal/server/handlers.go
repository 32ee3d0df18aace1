package server

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nicheradar/nicheradar/internal/research"
	"github.com/nicheradar/nicheradar/internal/storage"
)

// startTask validates the request, returns a task id immediately, and runs
// the pipeline in the background. Clients follow progress over the WebSocket
// channel.
func (s *Server) startTask(c *gin.Context) {
	var req research.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	taskID := uuid.NewString()
	go s.runTask(req, taskID)

	c.JSON(http.StatusOK, gin.H{
		"success":                    true,
		"message":                    "Analysis started. Connect to the progress WebSocket.",
		"task_id":                    taskID,
		"estimated_delivery_minutes": 10,
	})
}

// runTask executes one job detached from the submitting request. The job
// owns its own context; submission cancellation must not abort it.
func (s *Server) runTask(req research.Request, taskID string) {
	defer func() {
		if s.afterRun != nil {
			s.afterRun(taskID)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if _, err := s.runner.Run(ctx, req, taskID); err != nil {
		s.logger.Error("background research task failed", "task_id", taskID, "err", err)
	}

	// Keep history around for clients that reconnect after completion.
	time.AfterFunc(historyRetention, func() {
		s.broadcaster.Close(taskID)
	})
}

func (s *Server) getReport(c *gin.Context) {
	id := c.Param("id")

	report, err := s.store.GetReport(c.Request.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	if err != nil {
		s.logger.Error("report lookup failed", "id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "report lookup failed"})
		return
	}

	paid, err := s.store.CheckFact(c.Request.Context(), paidFactKey(id))
	if err != nil {
		s.logger.Error("payment check failed", "id", id, "err", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"report_id":         report.ID,
		"category":          report.Category,
		"keywords":          report.Keywords,
		"marketplace":       report.Marketplace,
		"model":             report.Model,
		"generated_at":      report.GeneratedAt,
		"source_count":      report.SourceCount,
		"product_count":     report.ProductCount,
		"executive_summary": ExtractExecutiveSummary(report.Markdown),
		"is_paid":           paid,
	})
}

// markPaid records payment for a report. Stands in for a payment-provider
// webhook.
func (s *Server) markPaid(c *gin.Context) {
	id := c.Param("id")

	if _, err := s.store.GetReport(c.Request.Context(), id); errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
		return
	}
	if err := s.store.MarkFact(c.Request.Context(), paidFactKey(id)); err != nil {
		s.logger.Error("mark paid failed", "id", id, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not record payment"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func paidFactKey(reportID string) string {
	return "paid:" + reportID
}

var summaryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)## Executive Summary\s*\n(.*?)(?:\n## |$)`),
	regexp.MustCompile(`(?s)## Summary\s*\n(.*?)(?:\n## |$)`),
	regexp.MustCompile(`(?s)## Market Entry Strategy\s*\n(.*?)(?:\n## |$)`),
	regexp.MustCompile(`(?s)## Overview\s*\n(.*?)(?:\n## |$)`),
}

// ExtractExecutiveSummary pulls the preview section out of a report. It
// tries the known summary headings first, then falls back to the content
// following the first heading.
func ExtractExecutiveSummary(markdown string) string {
	for _, pattern := range summaryPatterns {
		if m := pattern.FindStringSubmatch(markdown); m != nil {
			summary := strings.TrimSpace(m[1])
			if len(summary) > 2000 {
				summary = summary[:2000]
			}
			return summary
		}
	}

	// Fallback: everything after the first heading, up to the next major
	// section.
	lines := strings.Split(markdown, "\n")
	var content []string
	started := false
	for _, line := range lines {
		if strings.HasPrefix(line, "#") && !started {
			started = true
			continue
		}
		if !started {
			continue
		}
		if strings.HasPrefix(line, "## ") && len(strings.Join(content, "\n")) > 100 {
			break
		}
		content = append(content, line)
	}

	summary := strings.TrimSpace(strings.Join(content, "\n"))
	if len(summary) > 1500 {
		summary = summary[:1500]
	}
	return summary
}
