package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"nhanz-chat/internal/media"
	"nhanz-chat/internal/models"
	"nhanz-chat/internal/repositories"
)

// MaxAvatarBytes caps avatar uploads at 5 MiB.
const MaxAvatarBytes = 5 << 20

// UserHandler serves contacts, profile edits and avatar uploads.
type UserHandler struct {
	users    repositories.UserRepository
	uploader media.AvatarUploader
	logger   zerolog.Logger
}

// NewUserHandler builds a UserHandler.
func NewUserHandler(users repositories.UserRepository, uploader media.AvatarUploader, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, uploader: uploader, logger: logger}
}

// Contacts lists every other user's public profile.
func (h *UserHandler) Contacts(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	profiles, err := h.users.ListOthers(c.Request.Context(), identity.UserID)
	if err != nil {
		respondError(c, h.logger, err, "failed to fetch users")
		return
	}
	c.JSON(http.StatusOK, profiles)
}

type updateProfileRequest struct {
	Name     *string `json:"name" binding:"omitempty,min=1,max=50"`
	Username *string `json:"username" binding:"omitempty,min=3,max=16,lowercase,alphanum"`
	Status   *string `json:"status" binding:"omitempty,max=100"`
}

// UpdateProfile applies the provided profile fields.
func (h *UserHandler) UpdateProfile(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}
	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}

	user, err := h.users.UpdateProfile(c.Request.Context(), identity.UserID, models.ProfileUpdate{
		Name:     req.Name,
		Username: req.Username,
		Status:   req.Status,
	})
	if err != nil {
		respondError(c, h.logger, err, "failed to update profile")
		return
	}
	c.JSON(http.StatusOK, user)
}

// UploadAvatar stores the multipart "avatar" image and records its URL.
func (h *UserHandler) UploadAvatar(c *gin.Context) {
	identity, ok := requireIdentity(c)
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxAvatarBytes+(1<<20))
	header, err := c.FormFile("avatar")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File too large, limit is 5MB"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	if header.Size > MaxAvatarBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "File too large, limit is 5MB"})
		return
	}
	if !strings.HasPrefix(header.Header.Get("Content-Type"), "image/") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Only image uploads are allowed"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file uploaded"})
		return
	}
	defer file.Close()

	url, err := h.uploader.UploadAvatar(c.Request.Context(), identity.UserID, file)
	if errors.Is(err, media.ErrUploadsDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		respondError(c, h.logger, err, "Failed to upload avatar")
		return
	}

	user, err := h.users.UpdateAvatar(c.Request.Context(), identity.UserID, url)
	if err != nil {
		respondError(c, h.logger, err, "Failed to upload avatar")
		return
	}
	c.JSON(http.StatusOK, gin.H{"avatar": user.Avatar, "message": "Avatar updated successfully"})
}
