// Package web serves the browser side of the verification flow: the
// landing page a user opens from a delivery link, and the completion
// step that advances their token and bounces them back into the chat.
package web

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"filmgate/internal/verify"
	"filmgate/pkg/logx"
)

// Gate is the slice of the verification state machine the pages drive.
type Gate interface {
	Check(ctx context.Context, token string) error
	Advance(ctx context.Context, token string) error
}

type Config struct {
	ListenAddr  string
	BotUsername string
}

type Server struct {
	cfg  Config
	gate Gate
	log  logx.Logger
	srv  *http.Server
}

func NewServer(cfg Config, gate Gate, log logx.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{cfg: cfg, gate: gate, log: log}
	s.srv = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.SetHTMLTemplate(pages)

	r.GET("/", s.handleHealth)
	r.GET("/verify/:token", s.handleVerify)
	r.GET("/verify/step2/:token", s.handleStep2)
	return r
}

func (s *Server) Start() error {
	s.log.Info("verification gateway listening", logx.String("addr", s.cfg.ListenAddr))
	err := s.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// handleVerify is the page behind the delivery link. It must not mutate
// the token; the user still has to click through to step 2.
func (s *Server) handleVerify(c *gin.Context) {
	token := c.Param("token")
	if err := s.gate.Check(c.Request.Context(), token); err != nil {
		if errors.Is(err, verify.ErrExpired) {
			c.HTML(http.StatusNotFound, "expired", nil)
			return
		}
		s.log.Error("token check failed", logx.Err(err))
		c.String(http.StatusInternalServerError, "something went wrong")
		return
	}
	c.HTML(http.StatusOK, "verify", gin.H{
		"Step2URL": "/verify/step2/" + token,
	})
}

// handleStep2 advances the token and redirects the user back into the
// chat with it embedded in a deep link.
func (s *Server) handleStep2(c *gin.Context) {
	token := c.Param("token")
	if err := s.gate.Advance(c.Request.Context(), token); err != nil {
		if errors.Is(err, verify.ErrExpired) {
			c.HTML(http.StatusNotFound, "expired", nil)
			return
		}
		s.log.Error("token advance failed", logx.Err(err))
		c.String(http.StatusInternalServerError, "something went wrong")
		return
	}
	c.Redirect(http.StatusFound,
		"https://t.me/"+s.cfg.BotUsername+"?start=verified_"+token)
}

var pages = template.Must(template.New("verify").Parse(`{{define "verify"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Verification</title></head>
<body>
<h2>Almost there</h2>
<p>Tap the button below to finish verification and receive your file.</p>
<p><a href="{{.Step2URL}}">Continue</a></p>
</body>
</html>{{end}}
{{define "expired"}}<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>Link expired</title></head>
<body>
<h2>Link expired</h2>
<p>This verification link is no longer valid. Go back to the bot and request the file again.</p>
</body>
</html>{{end}}`))
