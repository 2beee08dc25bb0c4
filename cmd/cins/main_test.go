package main

import (
	"bytes"
	"errors"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/cins/internal/auth"
	"github.com/MarcoPoloResearchLab/cins/internal/client"
	"github.com/MarcoPoloResearchLab/cins/internal/commands"
	"github.com/MarcoPoloResearchLab/cins/internal/database"
	"github.com/MarcoPoloResearchLab/cins/internal/macros"
	"github.com/MarcoPoloResearchLab/cins/internal/server"
	"github.com/MarcoPoloResearchLab/cins/internal/users"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

func startAPI(t *testing.T) string {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(database.DriverSQLite, filepath.Join(t.TempDir(), "cli.db"), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = database.Close(db) })

	tokenService, err := auth.NewTokenService(auth.TokenServiceConfig{SigningSecret: []byte("cli-test-secret")})
	if err != nil {
		t.Fatalf("failed to construct token service: %v", err)
	}
	userService, err := users.NewService(users.ServiceConfig{Database: db, Hasher: auth.BcryptHasher{Cost: bcrypt.MinCost}})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	commandService, err := commands.NewService(commands.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct command service: %v", err)
	}
	macroService, err := macros.NewService(macros.ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct macro service: %v", err)
	}
	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager: tokenService,
		Users:        userService,
		Commands:     commandService,
		Macros:       macroService,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}
	testServer := httptest.NewServer(handler)
	t.Cleanup(testServer.Close)
	return testServer.URL + "/api"
}

type cliHarness struct {
	apiURL    string
	tokenPath string
}

func (h cliHarness) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	rootCmd := newRootCommand(func(string) (string, error) { return "correct horse", nil })
	var output bytes.Buffer
	rootCmd.SetOut(&output)
	rootCmd.SetErr(&output)
	rootCmd.SetArgs(append([]string{"--api-url", h.apiURL, "--token-file", h.tokenPath}, args...))
	err := rootCmd.Execute()
	return output.String(), err
}

func (h cliHarness) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	output, err := h.run(t, args...)
	if err != nil {
		t.Fatalf("cins %s failed: %v\n%s", strings.Join(args, " "), err, output)
	}
	return output
}

func TestCLIWorkflow(t *testing.T) {
	harness := cliHarness{apiURL: startAPI(t), tokenPath: filepath.Join(t.TempDir(), "cins_jwt")}

	if output := harness.mustRun(t, "register", "-u", "casper"); !strings.Contains(output, "Registration successful") {
		t.Fatalf("unexpected register output %q", output)
	}
	harness.mustRun(t, "login", "-u", "casper")

	harness.mustRun(t, "save", "-c", "ls -la")
	harness.mustRun(t, "sv", "-c", "git status")

	if output := harness.mustRun(t, "search"); output != "git status\nls -la\n" {
		t.Fatalf("unexpected search output %q", output)
	}
	if output := harness.mustRun(t, "sc", "-i", "-l", "1"); output != "2 git status\n" {
		t.Fatalf("unexpected id search output %q", output)
	}

	if output := harness.mustRun(t, "mn"); output != "No macros found.\n" {
		t.Fatalf("unexpected empty macro list %q", output)
	}
	harness.mustRun(t, "macro-save", "-n", "status", "-c", "2 1")
	if output := harness.mustRun(t, "msc", "-n", "status"); output != "git status\nls -la\n" {
		t.Fatalf("unexpected macro output %q", output)
	}
	if output := harness.mustRun(t, "macro-names"); output != "status\n" {
		t.Fatalf("unexpected macro names %q", output)
	}
}

func TestCLIRequiresLogin(t *testing.T) {
	harness := cliHarness{apiURL: startAPI(t), tokenPath: filepath.Join(t.TempDir(), "missing")}

	_, err := harness.run(t, "search")
	if !errors.Is(err, client.ErrNoToken) {
		t.Fatalf("expected missing token error, got %v", err)
	}
}

func TestCLIReportsServerErrors(t *testing.T) {
	harness := cliHarness{apiURL: startAPI(t), tokenPath: filepath.Join(t.TempDir(), "cins_jwt")}

	_, err := harness.run(t, "login", "-u", "nobody")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected api error, got %v", err)
	}
	if apiErr.Code != "users.authenticate.invalid_credentials" {
		t.Fatalf("unexpected error code %q", apiErr.Code)
	}
}
