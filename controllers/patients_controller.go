package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/carelinkhq/carelinkbackend/dto"
	"github.com/carelinkhq/carelinkbackend/middleware"
	"github.com/carelinkhq/carelinkbackend/repository"
	"github.com/carelinkhq/carelinkbackend/services"
	"github.com/carelinkhq/carelinkbackend/utils"
)

func CreatePatient(assignments *services.AssignmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		var body dto.CreatePatientDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		caretakerID, err := bson.ObjectIDFromHex(body.CaretakerID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid caretaker id"})
			return
		}

		nurseID, err := optionalObjectID(body.NurseID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid nurse id"})
			return
		}
		doctorID, err := optionalObjectID(body.DoctorID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid doctor id"})
			return
		}

		orgHint, err := parseOrgHint(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		patient, err := assignments.CreatePatient(c.Request.Context(), services.CreatePatientInput{
			FullName:    body.FullName,
			DateOfBirth: body.DateOfBirth,
			Gender:      body.Gender,
			CaretakerID: caretakerID,
			NurseID:     nurseID,
			DoctorID:    doctorID,
			ActingAdmin: admin.ID,
			OrgHint:     orgHint,
		})
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusCreated, patient)
	}
}

func ReassignPatient(assignments *services.AssignmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		patientID, err := bson.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient id"})
			return
		}

		var body dto.ReassignPatientDTO
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if body.CaretakerID == nil && body.NurseID == nil && body.DoctorID == nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "no updates provided"})
			return
		}

		var input services.ReassignInput
		if input.CaretakerID, err = optionalObjectIDPtr(body.CaretakerID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid caretaker id"})
			return
		}
		if input.NurseID, err = optionalObjectIDPtr(body.NurseID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid nurse id"})
			return
		}
		if input.DoctorID, err = optionalObjectIDPtr(body.DoctorID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid doctor id"})
			return
		}

		orgHint, err := parseOrgHint(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		patient, err := assignments.Reassign(c.Request.Context(), patientID, input, admin.ID, orgHint)
		if err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, patient)
	}
}

func DeactivatePatient(assignments *services.AssignmentService) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		patientID, err := bson.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient id"})
			return
		}

		orgHint, err := parseOrgHint(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := assignments.Deactivate(c.Request.Context(), patientID, admin.ID, orgHint); err != nil {
			abortWithServiceError(c, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{"ok": true})
	}
}

// GetPatients lists the active roster of the admin's org. Soft-deleted
// patients are excluded here but stay readable by id.
func GetPatients(patients repository.PatientRepository, orgs *services.OrgService) gin.HandlerFunc {
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

		page := utils.ParseIntDefault(c.Query("page"), 1)
		limit := utils.ParseIntDefault(c.Query("limit"), 50)
		if page < 1 {
			page = 1
		}
		if limit < 1 {
			limit = 50
		}
		if limit > 200 {
			limit = 200
		}

		items, total, err := patients.ListActive(c.Request.Context(), org.Id, page, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"items": items,
			"page":  page,
			"limit": limit,
			"total": total,
		})
	}
}

func GetPatient(patients repository.PatientRepository, orgs *services.OrgService) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		patientID, err := bson.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient id"})
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

		patient, err := patients.FindByID(c.Request.Context(), patientID)
		if err != nil {
			abortWithServiceError(c, services.ErrPatientNotFound)
			return
		}
		// Wrong org answers the same as forbidden, never 404, so the
		// response does not confirm existence across tenants.
		if patient.Organization == nil || *patient.Organization != org.Id {
			abortWithServiceError(c, services.ErrPatientNotUnderOrg)
			return
		}

		c.JSON(http.StatusOK, patient)
	}
}

// UploadPatientDocument attaches a care document (care plan, referral,
// scan) to a patient, stored in GCS.
func UploadPatientDocument(patients repository.PatientRepository, orgs *services.OrgService) gin.HandlerFunc {
	return func(c *gin.Context) {
		admin, ok := middleware.CurrentUser(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
			return
		}

		patientID, err := bson.ObjectIDFromHex(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid patient id"})
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

		patient, err := patients.FindByID(c.Request.Context(), patientID)
		if err != nil {
			abortWithServiceError(c, services.ErrPatientNotFound)
			return
		}
		if patient.Organization == nil || *patient.Organization != org.Id {
			abortWithServiceError(c, services.ErrPatientNotUnderOrg)
			return
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing file"})
			return
		}

		gcs, bucket, err := utils.NewGCSClient(c)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
			return
		}
		defer gcs.Close()

		doc, err := utils.UploadCareDocumentToGCS(c.Request.Context(), gcs, bucket, patient.Id.Hex(), admin.ID.Hex(), fileHeader)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if err := patients.AddDocument(c.Request.Context(), patient.Id, *doc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusCreated, doc)
	}
}

func optionalObjectID(hex string) (*bson.ObjectID, error) {
	if hex == "" {
		return nil, nil
	}
	id, err := bson.ObjectIDFromHex(hex)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalObjectIDPtr(hex *string) (*bson.ObjectID, error) {
	if hex == nil {
		return nil, nil
	}
	return optionalObjectID(*hex)
}
