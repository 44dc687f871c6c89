package handlers

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	iauth "github.com/santierhq/santier/internal/auth"
	"github.com/santierhq/santier/internal/middleware"
	"github.com/santierhq/santier/internal/models"
	"github.com/santierhq/santier/pkg/errors"
	"github.com/santierhq/santier/pkg/response"
)

// AttachmentHandler accepts photo uploads from the sync client. Files land in
// a local storage directory; the returned attachment id is what entity
// payloads reference. Rows never claimed by an entity are reclaimed by the
// housekeeping sweep.
type AttachmentHandler struct {
	db         *gorm.DB
	storageDir string
}

func NewAttachmentHandler(db *gorm.DB, storageDir string) (*AttachmentHandler, error) {
	if storageDir == "" {
		storageDir = "./data/attachments"
	}
	if err := os.MkdirAll(storageDir, 0o755); err != nil {
		return nil, fmt.Errorf("attachment handler: create storage dir: %w", err)
	}
	return &AttachmentHandler{db: db, storageDir: storageDir}, nil
}

// POST /api/attachments
func (h *AttachmentHandler) Upload(c *gin.Context) {
	v, ok := c.Get(middleware.CtxClaimsKey)
	if !ok {
		response.Error(c, errors.ErrUnauthorized)
		return
	}
	claims, _ := v.(*iauth.AccessClaims)
	if claims == nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, errors.NewBadRequest("file field is required"))
		return
	}

	storageKey := uuid.NewString() + filepath.Ext(file.Filename)
	if err := c.SaveUploadedFile(file, filepath.Join(h.storageDir, storageKey)); err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	attachment := &models.Attachment{
		CompanyID:   claims.CompanyID,
		StorageKey:  storageKey,
		FileName:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		Size:        file.Size,
		EntityType:  c.PostForm("entity_type"),
	}
	if err := h.db.Create(attachment).Error; err != nil {
		response.Error(c, errors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"id": attachment.ID})
}
