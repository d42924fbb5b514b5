package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gamma-omg/manifesto-gpt/chat"
	"github.com/gin-gonic/gin"
)

const generateFailedMsg = "failed to generate answer"

type answerer interface {
	Answer(ctx context.Context, req chat.Request) (<-chan chat.Fragment, error)
}

type chatHandler struct {
	log *slog.Logger
	svc answerer
}

func NewChatRouter(log *slog.Logger, svc answerer) *gin.Engine {
	r := gin.New()
	r.Use(requestLogger(log), gin.Recovery())

	h := &chatHandler{log: log, svc: svc}
	r.POST("/api/chat", h.chat)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return r
}

func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// chat streams the answer as a raw UTF-8 body. Failures before the first
// fragment become a JSON error; failures after it end the body early.
func (h *chatHandler) chat(c *gin.Context) {
	var req chat.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	ctx := c.Request.Context()
	frags, err := h.svc.Answer(ctx, req)
	if errors.Is(err, chat.ErrInvalidRequest) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.log.Error("chat request failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": generateFailedMsg})
		return
	}

	var first chat.Fragment
	var open bool
	select {
	case first, open = <-frags:
	case <-ctx.Done():
		return
	}

	if open && first.Err != nil {
		h.log.Error("completion failed before first fragment", "error", first.Err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": generateFailedMsg})
		return
	}

	c.Header("Content-Type", "text/plain; charset=utf-8")
	c.Status(http.StatusOK)
	if !open {
		return
	}

	if _, err = c.Writer.WriteString(first.Text); err != nil {
		return
	}
	c.Writer.Flush()

	c.Stream(func(w io.Writer) bool {
		f, ok := <-frags
		if !ok {
			return false
		}
		if f.Err != nil {
			h.log.Error("completion stream interrupted", "error", f.Err)
			return false
		}

		_, err := io.WriteString(w, f.Text)
		return err == nil
	})
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Info("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", c.ClientIP(),
		)
	}
}
