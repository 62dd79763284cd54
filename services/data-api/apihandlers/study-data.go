package apihandlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	mw "github.com/dsi-icl/acacia-sub002/pkg/apihelpers/middlewares"
	"github.com/dsi-icl/acacia-sub002/pkg/study"
	"github.com/gin-gonic/gin"
)

func (h *HttpEndpoints) AddStudyDataAPI(rg *gin.RouterGroup) {
	studiesGroup := rg.Group("/studies")

	studiesGroup.Use(mw.GetAndValidateManagementUserJWT(h.tokenSignKey))
	{
		studiesGroup.GET("", h.getAllStudies)
		studiesGroup.POST("", mw.RequirePayload(), mw.IsAdminUser(), h.createStudy)
	}

	studyGroup := studiesGroup.Group("/:studyID")
	{
		studyGroup.GET("", h.getStudy)
		studyGroup.DELETE("", mw.IsAdminUser(), h.deleteStudy)

		studyGroup.GET("/fields", h.getStudyFields)
		studyGroup.POST("/fields", mw.RequirePayload(), h.createFields)
		studyGroup.DELETE("/fields/:fieldID", h.deleteField)

		studyGroup.GET("/data", h.queryData)
		studyGroup.POST("/data", mw.RequirePayload(), h.uploadData)
		studyGroup.DELETE("/data", mw.RequirePayload(), h.deleteData)
		studyGroup.POST("/data/file", h.uploadFile)

		studyGroup.POST("/versions", mw.RequirePayload(), h.createDataVersion)

		studyGroup.GET("/roles", h.getRoles)
		studyGroup.POST("/roles", mw.RequirePayload(), h.createRole)
		studyGroup.PUT("/roles/:roleID", mw.RequirePayload(), h.updateRole)
		studyGroup.DELETE("/roles/:roleID", h.deleteRole)

		studyGroup.GET("/standardizations", h.getStandardizations)
		studyGroup.POST("/standardizations", mw.RequirePayload(), h.createStandardization)
		studyGroup.DELETE("/standardizations/:stdType/:fieldID", h.deleteStandardization)
	}
}

func (h *HttpEndpoints) getAllStudies(c *gin.Context) {
	studies, err := h.studyService.GetStudies(requesterFromContext(c))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"studies": studies})
}

type CreateStudyRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (h *HttpEndpoints) createStudy(c *gin.Context) {
	var req CreateStudyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	newStudy, err := h.studyService.CreateStudy(requesterFromContext(c), req.Name, req.Description)
	if err != nil {
		abortWithError(c, err)
		return
	}
	slog.Info("study created", slog.String("studyID", newStudy.ID))
	c.JSON(http.StatusOK, gin.H{"study": newStudy})
}

func (h *HttpEndpoints) getStudy(c *gin.Context) {
	studyInfo, err := h.studyService.GetStudy(requesterFromContext(c), c.Param("studyID"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"study": studyInfo})
}

func (h *HttpEndpoints) deleteStudy(c *gin.Context) {
	studyID := c.Param("studyID")
	if err := h.studyService.DeleteStudy(requesterFromContext(c), studyID); err != nil {
		abortWithError(c, err)
		return
	}
	slog.Info("study deleted", slog.String("studyID", studyID))
	c.JSON(http.StatusOK, gin.H{"message": "study deleted"})
}

func (h *HttpEndpoints) getStudyFields(c *gin.Context) {
	fields, err := h.studyService.GetStudyFields(
		requesterFromContext(c),
		c.Param("studyID"),
		c.Query("version"),
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"fields": fields})
}

type CreateFieldsRequest struct {
	Fields []study.FieldInput `json:"fields"`
}

func (h *HttpEndpoints) createFields(c *gin.Context) {
	var req CreateFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.studyService.CreateFields(requesterFromContext(c), c.Param("studyID"), req.Fields)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

func (h *HttpEndpoints) deleteField(c *gin.Context) {
	err := h.studyService.DeleteField(requesterFromContext(c), c.Param("studyID"), c.Param("fieldID"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "field deleted"})
}

// queryData serves current values under the requested version selector and
// output format. Omit version for released generations only, use "null" for
// the draft generation and "-1" for the latest released generation.
func (h *HttpEndpoints) queryData(c *gin.Context) {
	var fieldIDs []string
	if raw := c.Query("fields"); raw != "" {
		fieldIDs = strings.Split(raw, ",")
	}

	result, err := h.studyService.QueryData(
		requesterFromContext(c),
		c.Param("studyID"),
		fieldIDs,
		c.Query("version"),
		c.Query("format"),
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": result})
}

type UploadDataRequest struct {
	Data []study.DataPointInput `json:"data"`
}

func (h *HttpEndpoints) uploadData(c *gin.Context) {
	var req UploadDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.studyService.UploadData(requesterFromContext(c), c.Param("studyID"), req.Data)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

type DeleteDataRequest struct {
	Data []study.DataPointDeletion `json:"data"`
}

func (h *HttpEndpoints) deleteData(c *gin.Context) {
	var req DeleteDataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.studyService.DeleteData(requesterFromContext(c), c.Param("studyID"), req.Data)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}

// uploadFile stores a file payload in the filestore under its content hash
// and appends a data point carrying the hash as value. The multipart form
// carries the file, the target fieldId and the properties as a JSON object.
func (h *HttpEndpoints) uploadFile(c *gin.Context) {
	fieldID := c.PostForm("fieldId")
	if fieldID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing fieldId"})
		return
	}

	properties := map[string]string{}
	if rawProps := c.PostForm("properties"); rawProps != "" {
		if err := json.Unmarshal([]byte(rawProps), &properties); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "could not parse properties: " + err.Error()})
			return
		}
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file: " + err.Error()})
		return
	}

	src, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer src.Close()

	spoolPath, hash, byteCount, err := h.spoolFileStream(src)
	if err != nil {
		abortWithError(c, err)
		return
	}

	properties["originalFilename"] = fileHeader.Filename
	results, err := h.studyService.UploadData(requesterFromContext(c), c.Param("studyID"), []study.DataPointInput{
		{
			FieldID:    fieldID,
			Value:      hash,
			Properties: properties,
		},
	})
	if err != nil || !results[0].Successful {
		// no data point was recorded, so the payload must not land in the
		// filestore either
		_ = os.Remove(spoolPath)
		if err != nil {
			abortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
		return
	}

	if err := os.Rename(spoolPath, filepath.Join(h.filestorePath, hash)); err != nil {
		_ = os.Remove(spoolPath)
		abortWithError(c, err)
		return
	}

	slog.Info("file uploaded", slog.String("hash", hash), slog.Int64("bytes", byteCount))
	c.JSON(http.StatusOK, gin.H{
		"hash":    hash,
		"bytes":   byteCount,
		"results": results,
	})
}

// spoolFileStream hashes the stream while spooling it next to the filestore.
// The spool file is removed when the stream exceeds the size limit; otherwise
// the caller renames it to the content hash once the data point is accepted,
// or removes it when the upload is rejected.
func (h *HttpEndpoints) spoolFileStream(src io.Reader) (spoolPath string, hash string, byteCount int64, err error) {
	spool, err := os.CreateTemp(h.filestorePath, "upload-*")
	if err != nil {
		return "", "", 0, err
	}

	hash, byteCount, err = study.Consume(io.TeeReader(src, spool), h.maxFileSizeBytes)
	closeErr := spool.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(spool.Name())
		return "", "", 0, err
	}
	return spool.Name(), hash, byteCount, nil
}

type CreateDataVersionRequest struct {
	DataVersion string `json:"dataVersion"`
	Tag         string `json:"tag"`
}

func (h *HttpEndpoints) createDataVersion(c *gin.Context) {
	var req CreateDataVersionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	studyID := c.Param("studyID")
	report, err := h.studyService.CreateDataVersion(requesterFromContext(c), studyID, req.DataVersion, req.Tag)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if report.Version == nil {
		c.JSON(http.StatusOK, gin.H{"message": "nothing to commit"})
		return
	}
	slog.Info("data version created",
		slog.String("studyID", studyID),
		slog.String("version", report.Version.Version),
		slog.Int64("sealedCount", report.SealedCount))
	c.JSON(http.StatusOK, report)
}

func (h *HttpEndpoints) getRoles(c *gin.Context) {
	roles, err := h.studyService.GetRoles(requesterFromContext(c), c.Param("studyID"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"roles": roles})
}

func (h *HttpEndpoints) createRole(c *gin.Context) {
	var req study.RoleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := h.studyService.CreateRole(requesterFromContext(c), c.Param("studyID"), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role})
}

func (h *HttpEndpoints) updateRole(c *gin.Context) {
	var req study.RoleInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role, err := h.studyService.UpdateRole(requesterFromContext(c), c.Param("studyID"), c.Param("roleID"), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": role})
}

func (h *HttpEndpoints) deleteRole(c *gin.Context) {
	err := h.studyService.DeleteRole(requesterFromContext(c), c.Param("studyID"), c.Param("roleID"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "role deleted"})
}

func (h *HttpEndpoints) getStandardizations(c *gin.Context) {
	standardizations, err := h.studyService.GetStandardizations(
		requesterFromContext(c),
		c.Param("studyID"),
		c.Query("type"),
		c.Query("version"),
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"standardizations": standardizations})
}

func (h *HttpEndpoints) createStandardization(c *gin.Context) {
	var req study.StandardizationInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	standardization, err := h.studyService.CreateStandardization(requesterFromContext(c), c.Param("studyID"), req)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"standardization": standardization})
}

func (h *HttpEndpoints) deleteStandardization(c *gin.Context) {
	err := h.studyService.DeleteStandardization(
		requesterFromContext(c),
		c.Param("studyID"),
		c.Param("stdType"),
		c.Param("fieldID"),
	)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "standardization deleted"})
}
