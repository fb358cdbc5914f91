package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/n0madic/go-callview/internal/chat"
	"github.com/n0madic/go-callview/internal/chatformat"
	"github.com/n0madic/go-callview/internal/playground"
	"github.com/n0madic/go-callview/internal/refs"
	"github.com/n0madic/go-callview/internal/tokens"
	"github.com/n0madic/go-callview/internal/types"
)

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

type errorResponse struct {
	Error errorDetail `json:"error"`
}

func abortWithError(c *gin.Context, status int, errType, message string) {
	c.AbortWithStatusJSON(status, errorResponse{Error: errorDetail{Message: message, Type: errType}})
}

type callRequest struct {
	Call *types.Call `json:"call" binding:"required"`
}

type stateRequest struct {
	State *playground.State `json:"state" binding:"required"`
}

type classifyResponse struct {
	Format             chatformat.Format `json:"format"`
	IsChat             bool              `json:"is_chat"`
	IsStructuredOutput bool              `json:"is_structured_output"`
}

type refsResponse struct {
	Refs []string `json:"refs"`
}

type chatResponse struct {
	*chat.Chat
	EstimatedPromptTokens int `json:"estimated_prompt_tokens,omitempty"`
}

type playgroundStateResponse struct {
	State  playground.State `json:"state"`
	Inputs map[string]any   `json:"inputs"`
}

type playgroundRunResponse struct {
	Completion *types.ChatCompletion `json:"completion"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func bindCall(c *gin.Context) (*types.Call, bool) {
	var req callRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
		return nil, false
	}
	return req.Call, true
}

func (s *Server) handleClassify(c *gin.Context) {
	call, ok := bindCall(c)
	if !ok {
		return
	}
	format := chatformat.Classify(call)
	c.JSON(http.StatusOK, classifyResponse{
		Format:             format,
		IsChat:             chatformat.IsChat(call),
		IsStructuredOutput: chatformat.IsStructuredOutput(call),
	})
}

func (s *Server) handleRefs(c *gin.Context) {
	call, ok := bindCall(c)
	if !ok {
		return
	}
	found := refs.Collect(call)
	if found == nil {
		found = []string{}
	}
	c.JSON(http.StatusOK, refsResponse{Refs: found})
}

// handleChat answers with a best-effort chat even when references could not
// be resolved; the failure is reported in resolve_error.
func (s *Server) handleChat(c *gin.Context) {
	call, ok := bindCall(c)
	if !ok {
		return
	}
	built, err := s.builder.Build(c.Request.Context(), call)
	if err != nil {
		_ = c.Error(err)
		s.log.Warn("chat.resolve_failed",
			zap.String("call_id", call.ID),
			zap.String("request_id", c.GetString(requestIDKey)),
			zap.Error(err))
	}
	if built == nil {
		msg := "failed to build chat"
		if err != nil {
			msg = err.Error()
		}
		abortWithError(c, http.StatusBadGateway, "resolve_error", msg)
		return
	}

	resp := chatResponse{Chat: built}
	if built.Completion == nil || built.Completion.Usage == nil {
		resp.EstimatedPromptTokens = tokens.EstimateRequest(built.Request)
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleNormalize(c *gin.Context) {
	call, ok := bindCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, chatformat.NormalizeTraceCall(call))
}

func (s *Server) handlePlaygroundState(c *gin.Context) {
	call, ok := bindCall(c)
	if !ok {
		return
	}
	state := playground.FromCall(call)
	c.JSON(http.StatusOK, playgroundStateResponse{State: state, Inputs: playground.Inputs(state)})
}

func (s *Server) handlePlaygroundRun(c *gin.Context) {
	var req stateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, http.StatusBadRequest, "invalid_request_error", "invalid request body: "+err.Error())
		return
	}
	if s.runner == nil {
		abortWithError(c, http.StatusServiceUnavailable, "unavailable", "playground runs are not enabled")
		return
	}

	comp, err := s.runner.Run(c.Request.Context(), *req.State)
	if err != nil {
		_ = c.Error(err)
		switch {
		case errors.Is(err, playground.ErrUnknownProvider):
			abortWithError(c, http.StatusBadRequest, "invalid_request_error", err.Error())
		case errors.Is(err, playground.ErrProviderNotConfigured):
			abortWithError(c, http.StatusServiceUnavailable, "unavailable", err.Error())
		default:
			abortWithError(c, http.StatusBadGateway, "upstream_error", err.Error())
		}
		return
	}
	c.JSON(http.StatusOK, playgroundRunResponse{Completion: comp})
}
