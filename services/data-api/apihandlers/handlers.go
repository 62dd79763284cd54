package apihandlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/dsi-icl/acacia-sub002/pkg/study"
	"github.com/gin-gonic/gin"
)

func HealthCheckHandle(c *gin.Context) {
	serviceInfos := make(map[string]interface{})
	infos, err := os.ReadFile("serviceInfos.json")
	if err != nil {
		slog.Debug("Error reading serviceInfos.json", slog.String("error", err.Error()))
	} else {
		err = json.Unmarshal(infos, &serviceInfos)
		if err != nil {
			slog.Debug("Error unmarshalling serviceInfos.json", slog.String("error", err.Error()))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"serviceInfos": serviceInfos,
	})
}

type HttpEndpoints struct {
	studyService     *study.Service
	tokenSignKey     string
	tokenExpiresIn   time.Duration
	filestorePath    string
	maxFileSizeBytes int64
}

func NewHTTPHandler(
	tokenSignKey string,
	tokenExpiresIn time.Duration,
	studyService *study.Service,
	filestorePath string,
	maxFileSizeBytes int64,
) *HttpEndpoints {
	return &HttpEndpoints{
		studyService:     studyService,
		tokenSignKey:     tokenSignKey,
		tokenExpiresIn:   tokenExpiresIn,
		filestorePath:    filestorePath,
		maxFileSizeBytes: maxFileSizeBytes,
	}
}
