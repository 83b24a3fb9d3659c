// Package teststack wires the complete HTTP surface over an in-memory store
// for the integration and acceptance suites.
package teststack

import (
	"context"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/storefront-support-api/config"
	"github.com/kendall-kelly/storefront-support-api/controllers"
	"github.com/kendall-kelly/storefront-support-api/realtime"
	"github.com/kendall-kelly/storefront-support-api/services"
	"github.com/kendall-kelly/storefront-support-api/tests/testutil"
	"github.com/kendall-kelly/storefront-support-api/utils"
	"gorm.io/gorm"
)

// Stack is one running API instance and the fakes behind it
type Stack struct {
	DB       *gorm.DB
	Router   *gin.Engine
	Store    *services.MockObjectStore
	Hub      *realtime.Hub
	Returns  *services.ReturnService
	Profiles *StaticProfiles
}

// StaticProfiles answers userinfo lookups from a fixed profile
type StaticProfiles struct {
	Info *services.Auth0UserInfo
}

func (p *StaticProfiles) GetUserInfo(_ context.Context, _ string) (*services.Auth0UserInfo, error) {
	return p.Info, nil
}

// Config is a test configuration that needs no external services
func Config() *config.Config {
	return &config.Config{
		GoEnv:              "test",
		Port:               "8080",
		Auth0Domain:        "test.auth0.com",
		Auth0Audience:      "https://api.test.com",
		AWSRegion:          "us-east-1",
		AWSS3Bucket:        "test-bucket",
		ReturnWindowDays:   config.DefaultReturnWindowDays,
		CORSAllowedOrigins: []string{"*"},
	}
}

// New builds the stack. auth guards the authenticated routes; pass
// testutil.MockAuth() to authenticate with the X-Test-User header.
func New(t *testing.T, cfg *config.Config, auth gin.HandlerFunc) *Stack {
	t.Helper()
	testutil.RequireTestEnvironment(t)
	gin.SetMode(gin.TestMode)
	if err := utils.RegisterValidators(); err != nil {
		t.Fatalf("Failed to register validators: %v", err)
	}

	db := testutil.NewTestDB(t)
	logger := testutil.DiscardLogger()

	store := services.NewMockObjectStore()
	images := services.NewEvidenceImages(store, logger)
	catalog := services.NewCatalog(db)
	returns := services.NewReturnService(db, catalog, catalog, services.NewLoggingReplacementIssuer(logger), images, cfg.ReturnWindowDays, logger)
	conversations := services.NewConversationService(db, catalog, logger)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := realtime.NewHub(conversations, realtime.NewLocalBus(), logger)
	if err := hub.Start(ctx); err != nil {
		t.Fatalf("Failed to start hub: %v", err)
	}

	profiles := &StaticProfiles{}
	router := controllers.NewRouter(controllers.RouterDeps{
		DB:             db,
		Logger:         logger,
		Auth:           auth,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout: cfg.DBTimeout,
		AdminScope:     cfg.AdminScope,
		Health:         controllers.NewHealthController(db, hub),
		Users:          controllers.NewUserController(db, profiles, logger),
		Returns:        controllers.NewReturnController(returns, images, logger),
		Chat:           controllers.NewChatController(conversations, logger),
		Uploads:        controllers.NewUploadController(images, logger),
		WebSocket:      controllers.NewWebSocketController(hub, cfg.CORSAllowedOrigins, logger),
	})

	return &Stack{DB: db, Router: router, Store: store, Hub: hub, Returns: returns, Profiles: profiles}
}
