// Package media wraps the external asset host that stores uploaded message
// media. The core only ever keeps the returned URL.
package media

import (
	"context"
	"fmt"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"

	"github.com/SoftwareDev-01/6.vybe/internal/models"
)

// Uploader is the upload(localFile) -> url collaborator contract.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// CloudinaryUploader uploads media files to Cloudinary.
type CloudinaryUploader struct {
	cld    *cloudinary.Cloudinary
	folder string
}

// NewCloudinary creates an uploader from a cloudinary:// URL.
func NewCloudinary(cloudinaryURL string) (*CloudinaryUploader, error) {
	cld, err := cloudinary.NewFromURL(cloudinaryURL)
	if err != nil {
		return nil, err
	}
	return &CloudinaryUploader{cld: cld, folder: "vybe/messages"}, nil
}

// Upload sends the local file to Cloudinary and returns its durable URL.
func (u *CloudinaryUploader) Upload(ctx context.Context, localPath string) (string, error) {
	resp, err := u.cld.Upload.Upload(ctx, localPath, uploader.UploadParams{
		Folder: u.folder,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", models.ErrMediaUpload, err)
	}
	if resp.SecureURL == "" {
		return "", fmt.Errorf("%w: empty URL in upload response", models.ErrMediaUpload)
	}
	return resp.SecureURL, nil
}

// Disabled rejects every upload; used when no asset host is configured.
type Disabled struct{}

// Upload always fails.
func (Disabled) Upload(ctx context.Context, localPath string) (string, error) {
	return "", fmt.Errorf("%w: media store not configured", models.ErrMediaUpload)
}
