package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/carelinkhq/carelinkbackend/dto"
	"github.com/carelinkhq/carelinkbackend/middleware"
	"github.com/carelinkhq/carelinkbackend/repository"
	"github.com/carelinkhq/carelinkbackend/services"
)

var errInvalidOrgID = errors.New("invalid orgId")

// parseOrgHint reads the optional orgId query parameter. Omission means
// the org is resolved from the acting admin's identity.
func parseOrgHint(c *gin.Context) (*bson.ObjectID, error) {
	hex := c.Query("orgId")
	if hex == "" {
		return nil, nil
	}
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return nil, errInvalidOrgID
	}
	return &id, nil
}

func CreateOrganization(orgs *services.OrgService) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		var body dto.CreateOrganizationDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		org, err := orgs.CreateOrganization(c.Request.Context(), body.Name, admin.ID)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusCreated, org)
	}
}

// GetMyOrganization resolves the acting admin's organization, the same
// resolution every org-scoped write goes through.
func GetMyOrganization(orgs *services.OrgService) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		orgHint, err := parseOrgHint(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		org, err := orgs.ResolveAdminOrg(c.Request.Context(), admin.ID, orgHint)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, org)
	}
}

func AddStaffMember(orgs *services.OrgService, users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		userID, err := bson.ObjectIDFromHex(c.Param("userId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		orgHint, err := parseOrgHint(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		org, err := orgs.ResolveAdminOrg(c.Request.Context(), admin.ID, orgHint)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		if err := orgs.AddStaff(c.Request.Context(), org, user); err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// RemoveStaffMember detaches a staff member from the org. Existing
// patient assignments are deliberately left in place.
func RemoveStaffMember(orgs *services.OrgService, users repository.UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		userID, err := bson.ObjectIDFromHex(c.Param("userId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}

		orgHint, err := parseOrgHint(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		org, err := orgs.ResolveAdminOrg(c.Request.Context(), admin.ID, orgHint)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}

		if err := orgs.RemoveStaff(c.Request.Context(), org, user); err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}
