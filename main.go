package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/carelinkhq/carelinkbackend/controllers"
	"github.com/carelinkhq/carelinkbackend/database"
	"github.com/carelinkhq/carelinkbackend/middleware"
	"github.com/carelinkhq/carelinkbackend/models"
	"github.com/carelinkhq/carelinkbackend/repository"
	"github.com/carelinkhq/carelinkbackend/services"
	"github.com/carelinkhq/carelinkbackend/utils"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Println("Error loading .env file")
	}

	ctx := context.Background()
	if err := database.EnsureIndexes(ctx); err != nil {
		log.Fatal(err)
	}
	//seeding admin user
	usersCol := database.OpenCollection("users")
	if err := utils.SeedAdminUser(ctx, usersCol); err != nil {
		log.Fatal(err)
	}

	users := repository.NewUserRepository(usersCol)
	orgs := repository.NewOrganizationRepository(database.OpenCollection("organizations"))
	patients := repository.NewPatientRepository(database.OpenCollection("patients"))

	tokenSvc := services.NewTokenService(users)
	orgSvc := services.NewOrgService(orgs, users)
	assignSvc := services.NewAssignmentService(patients, users, orgSvc)

	middleware.InitMetrics()

	r := gin.New()

	origins := os.Getenv("ALLOWED_ORIGINS")
	allowedOrigins := map[string]bool{}
	for _, origin := range strings.Split(origins, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			allowedOrigins[origin] = true
		}
	}
	log.Printf("Allowed origins: %v", allowedOrigins)
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return allowedOrigins[origin]
		},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/auth/login", controllers.Login(tokenSvc))
	r.POST("/auth/refresh", controllers.Refresh(tokenSvc))
	r.POST("/auth/register", controllers.Register(tokenSvc))
	r.POST("/auth/social", controllers.SocialLogin(tokenSvc))
	r.POST("/auth/password-reset/request", controllers.RequestPasswordReset(tokenSvc))
	r.POST("/auth/password-reset/confirm", controllers.ConfirmPasswordReset(tokenSvc))

	auth := r.Group("/auth")
	auth.Use(middleware.Authenticate())
	{
		auth.POST("/logout", controllers.Logout(tokenSvc))
		auth.POST("/set-role", controllers.SetRole(tokenSvc))
		auth.GET("/me", controllers.Me(users))
		auth.POST("/me/password", controllers.ChangeMyPassword(tokenSvc))
	}

	admin := r.Group("/admin")
	admin.Use(middleware.Authenticate())
	admin.Use(middleware.RequireRoles(users, models.RoleAdmin))
	{
		admin.POST("/organizations", controllers.CreateOrganization(orgSvc))
		admin.GET("/organizations/mine", controllers.GetMyOrganization(orgSvc))
		admin.POST("/organizations/staff/:userId", controllers.AddStaffMember(orgSvc, users))
		admin.DELETE("/organizations/staff/:userId", controllers.RemoveStaffMember(orgSvc, users))

		admin.POST("/patients", controllers.CreatePatient(assignSvc))
		admin.GET("/patients", controllers.GetPatients(patients, orgSvc))
		admin.GET("/patients/:id", controllers.GetPatient(patients, orgSvc))
		admin.PUT("/patients/:id/reassign", controllers.ReassignPatient(assignSvc))
		admin.DELETE("/patients/:id", controllers.DeactivatePatient(assignSvc))
		admin.POST("/patients/:id/documents", controllers.UploadPatientDocument(patients, orgSvc))

		admin.POST("/users/approve/:id", controllers.ApproveUser(users))
	}

	// Start server on port 8080 (default)
	r.Run()
}
