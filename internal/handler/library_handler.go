package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/classcove/tuition-api/internal/service"
	appErrors "github.com/classcove/tuition-api/pkg/errors"
	"github.com/classcove/tuition-api/pkg/response"
)

// LibraryHandler wires HTTP endpoints to the library service. The category
// path parameter selects the content area; all categories share this surface.
type LibraryHandler struct {
	service *service.LibraryService
}

// NewLibraryHandler creates a new handler.
func NewLibraryHandler(svc *service.LibraryService) *LibraryHandler {
	return &LibraryHandler{service: svc}
}

// Categories godoc
// @Summary List library categories
// @Tags Library
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /library/categories [get]
func (h *LibraryHandler) Categories(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.service.Categories(), nil)
}

// ListFolders godoc
// @Summary List a category's folders
// @Tags Library
// @Produce json
// @Param category path string true "Category"
// @Param search query string false "Name search"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/{category}/folders [get]
func (h *LibraryHandler) ListFolders(c *gin.Context) {
	folders, err := h.service.ListFolders(c.Request.Context(), c.Param("category"), c.Query("search"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, folders, nil)
}

// CreateFolder godoc
// @Summary Create a folder in a category
// @Tags Library
// @Accept json
// @Produce json
// @Param category path string true "Category"
// @Param payload body service.FolderRequest true "Folder payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/{category}/folders [post]
func (h *LibraryHandler) CreateFolder(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.FolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid folder payload"))
		return
	}

	folder, err := h.service.CreateFolder(c.Request.Context(), c.Param("category"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, folder)
}

// UpdateFolder godoc
// @Summary Update a folder
// @Tags Library
// @Accept json
// @Produce json
// @Param category path string true "Category"
// @Param folderId path string true "Folder ID"
// @Param payload body service.FolderRequest true "Folder payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/{category}/folders/{folderId} [put]
func (h *LibraryHandler) UpdateFolder(c *gin.Context) {
	var req service.FolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid folder payload"))
		return
	}

	folder, err := h.service.UpdateFolder(c.Request.Context(), c.Param("category"), c.Param("folderId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, folder, nil)
}

// DeleteFolder godoc
// @Summary Delete a folder and its files
// @Tags Library
// @Produce json
// @Param category path string true "Category"
// @Param folderId path string true "Folder ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/{category}/folders/{folderId} [delete]
func (h *LibraryHandler) DeleteFolder(c *gin.Context) {
	if err := h.service.DeleteFolder(c.Request.Context(), c.Param("category"), c.Param("folderId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// ListFiles godoc
// @Summary List a folder's files
// @Tags Library
// @Produce json
// @Param category path string true "Category"
// @Param folderId path string true "Folder ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/{category}/folders/{folderId}/files [get]
func (h *LibraryHandler) ListFiles(c *gin.Context) {
	files, err := h.service.ListFiles(c.Request.Context(), c.Param("category"), c.Param("folderId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, files, nil)
}

// CreateFile godoc
// @Summary Add a file to a folder
// @Tags Library
// @Accept json
// @Produce json
// @Param category path string true "Category"
// @Param folderId path string true "Folder ID"
// @Param payload body service.FileRequest true "File payload"
// @Success 201 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/{category}/folders/{folderId}/files [post]
func (h *LibraryHandler) CreateFile(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid file payload"))
		return
	}

	file, err := h.service.CreateFile(c.Request.Context(), c.Param("category"), c.Param("folderId"), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, file)
}

// UpdateFile godoc
// @Summary Update a file
// @Tags Library
// @Accept json
// @Produce json
// @Param category path string true "Category"
// @Param folderId path string true "Folder ID"
// @Param fileId path string true "File ID"
// @Param payload body service.FileRequest true "File payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/{category}/folders/{folderId}/files/{fileId} [put]
func (h *LibraryHandler) UpdateFile(c *gin.Context) {
	var req service.FileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid file payload"))
		return
	}

	file, err := h.service.UpdateFile(c.Request.Context(), c.Param("category"), c.Param("folderId"), c.Param("fileId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, file, nil)
}

// DeleteFile godoc
// @Summary Delete a file
// @Tags Library
// @Produce json
// @Param category path string true "Category"
// @Param folderId path string true "Folder ID"
// @Param fileId path string true "File ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /library/{category}/folders/{folderId}/files/{fileId} [delete]
func (h *LibraryHandler) DeleteFile(c *gin.Context) {
	if err := h.service.DeleteFile(c.Request.Context(), c.Param("category"), c.Param("folderId"), c.Param("fileId")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
