package server

import (
	"net/http"
	"strconv"
	"strings"
	"unicode"

	"github.com/MarcoPoloResearchLab/cins/internal/apperr"
	"github.com/MarcoPoloResearchLab/cins/internal/commands"
	"github.com/MarcoPoloResearchLab/cins/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	opRegister       = "server.register"
	opLogin          = "server.login"
	opSearchCommands = "server.search_commands"
	opSaveCommand    = "server.save_command"
	opGetMacro       = "server.get_macro"
	opCreateMacro    = "server.create_macro"
	opListMacros     = "server.list_macros"
)

type credentialsPayload struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

type searchQuery struct {
	Keyword    string `form:"keyword"`
	Limit      int    `form:"limit"`
	IncludeIDs bool   `form:"include_ids"`
}

type saveCommandPayload struct {
	Command string `form:"command" json:"command"`
}

type macroQuery struct {
	Name string `form:"name"`
}

type createMacroPayload struct {
	Name     string `form:"name" json:"name"`
	Commands string `form:"commands" json:"commands"`
}

func (h *httpHandler) handleRegister(c *gin.Context) {
	credentials, ok := h.bindCredentials(c, opRegister)
	if !ok {
		return
	}
	userID, err := h.users.Register(c.Request.Context(), credentials)
	if err != nil {
		h.respondError(c, opRegister, err)
		return
	}
	h.logger.Info("user registered", zap.Int64("user_id", userID))
	c.JSON(http.StatusOK, gin.H{"msg": "registration successful"})
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	credentials, ok := h.bindCredentials(c, opLogin)
	if !ok {
		return
	}
	userID, err := h.users.Authenticate(c.Request.Context(), credentials)
	if err != nil {
		h.respondError(c, opLogin, err)
		return
	}
	token, _, err := h.tokens.IssueToken(userID)
	if err != nil {
		h.respondError(c, opLogin, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": token})
}

func (h *httpHandler) bindCredentials(c *gin.Context, operation string) (users.Credentials, bool) {
	var request credentialsPayload
	if err := c.ShouldBind(&request); err != nil {
		h.respondError(c, operation, invalidRequest(operation, err))
		return users.Credentials{}, false
	}
	credentials, err := users.NewCredentials(request.Username, request.Password)
	if err != nil {
		h.respondError(c, operation, err)
		return users.Credentials{}, false
	}
	return credentials, true
}

func (h *httpHandler) handleSearchCommands(c *gin.Context) {
	var query searchQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.respondError(c, opSearchCommands, invalidRequest(opSearchCommands, err))
		return
	}
	entries, err := h.commands.Search(c.Request.Context(), c.GetInt64(userIDContextKey), commands.SearchOptions{
		Keyword:    query.Keyword,
		Limit:      query.Limit,
		IncludeIDs: query.IncludeIDs,
	})
	if err != nil {
		h.respondError(c, opSearchCommands, err)
		return
	}

	if !query.IncludeIDs {
		c.JSON(http.StatusOK, gin.H{"msg": commands.Texts(entries)})
		return
	}
	pairs := make([][]any, 0, len(entries))
	for _, entry := range entries {
		pairs = append(pairs, []any{entry.ID, entry.Text})
	}
	c.JSON(http.StatusOK, gin.H{"msg": pairs})
}

func (h *httpHandler) handleSaveCommand(c *gin.Context) {
	var request saveCommandPayload
	if err := c.ShouldBind(&request); err != nil {
		h.respondError(c, opSaveCommand, invalidRequest(opSaveCommand, err))
		return
	}
	commandID, err := h.commands.Save(c.Request.Context(), c.GetInt64(userIDContextKey), request.Command)
	if err != nil {
		h.respondError(c, opSaveCommand, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"msg": "command saved: " + request.Command,
		"id":  commandID,
	})
}

func (h *httpHandler) handleGetMacro(c *gin.Context) {
	var query macroQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.respondError(c, opGetMacro, invalidRequest(opGetMacro, err))
		return
	}
	texts, err := h.macros.Get(c.Request.Context(), c.GetInt64(userIDContextKey), query.Name)
	if err != nil {
		h.respondError(c, opGetMacro, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": texts})
}

func (h *httpHandler) handleCreateMacro(c *gin.Context) {
	var request createMacroPayload
	if err := c.ShouldBind(&request); err != nil {
		h.respondError(c, opCreateMacro, invalidRequest(opCreateMacro, err))
		return
	}
	commandIDs, err := parseCommandIDs(request.Commands)
	if err != nil {
		h.respondError(c, opCreateMacro, err)
		return
	}
	if _, err := h.macros.Create(c.Request.Context(), c.GetInt64(userIDContextKey), request.Name, commandIDs); err != nil {
		h.respondError(c, opCreateMacro, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "macro saved"})
}

func (h *httpHandler) handleListMacros(c *gin.Context) {
	names, err := h.macros.ListNames(c.Request.Context(), c.GetInt64(userIDContextKey))
	if err != nil {
		h.respondError(c, opListMacros, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": names})
}

// parseCommandIDs accepts identifiers separated by commas, whitespace or both.
func parseCommandIDs(raw string) ([]int64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	ids := make([]int64, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil || id <= 0 {
			return nil, apperr.New(apperr.KindValidation, opCreateMacro, "invalid_command_id", err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func invalidRequest(operation string, err error) error {
	return apperr.New(apperr.KindValidation, operation, "invalid_request", err)
}
