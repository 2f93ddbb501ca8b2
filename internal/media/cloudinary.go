package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// AvatarTransformation crops uploads to a 300x300 square centred on the detected face.
const AvatarTransformation = "c_fill,g_face,h_300,w_300"

var ErrUploadsDisabled = errors.New("avatar uploads are not configured")

// AvatarUploader stores an avatar image and returns its public URL.
type AvatarUploader interface {
	UploadAvatar(ctx context.Context, userID string, file io.Reader) (string, error)
}

// CloudinaryUploader uploads avatars to Cloudinary.
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinaryUploader builds an uploader from account credentials.
func NewCloudinaryUploader(cloudName, apiKey, apiSecret, folder string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("configure cloudinary: %w", err)
	}
	cld.Config.URL.Secure = true
	return &CloudinaryUploader{cld: cld, folder: folder}, nil
}

// UploadParams returns the upload parameters for a user's avatar. Each user
// owns one public id, so a new upload replaces the previous image.
func (u *CloudinaryUploader) UploadParams(userID string) uploader.UploadParams {
	return uploader.UploadParams{
		Folder:         u.folder,
		PublicID:       "avatar_" + userID,
		Overwrite:      api.Bool(true),
		Invalidate:     api.Bool(true),
		ResourceType:   "image",
		Transformation: AvatarTransformation,
	}
}

func (u *CloudinaryUploader) UploadAvatar(ctx context.Context, userID string, file io.Reader) (string, error) {
	result, err := u.cld.Upload.Upload(ctx, file, u.UploadParams(userID))
	if err != nil {
		return "", fmt.Errorf("upload avatar: %w", err)
	}
	if result.Error.Message != "" {
		return "", fmt.Errorf("upload avatar: %s", result.Error.Message)
	}
	if result.SecureURL == "" {
		return "", errors.New("upload avatar: empty url in response")
	}
	return result.SecureURL, nil
}

// DisabledUploader answers every upload with ErrUploadsDisabled.
type DisabledUploader struct{}

func (DisabledUploader) UploadAvatar(context.Context, string, io.Reader) (string, error) {
	return "", ErrUploadsDisabled
}
