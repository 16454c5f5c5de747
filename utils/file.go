package utils

import (
	"errors"
	"mime/multipart"
	"path/filepath"
	"strings"
)

// MaxImageSize caps event picture and logo uploads.
const MaxImageSize = 5 * 1024 * 1024

var imageTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".webp": "image/webp",
	".svg":  "image/svg+xml",
}

// ImageContentType checks an uploaded image and returns the content type to store it with.
func ImageContentType(fileHeader *multipart.FileHeader) (string, error) {
	if fileHeader.Size > MaxImageSize {
		return "", errors.New("file too large (max 5MB)")
	}
	ct, ok := imageTypes[strings.ToLower(filepath.Ext(fileHeader.Filename))]
	if !ok {
		return "", errors.New("unsupported image type; use png, jpg, webp or svg")
	}
	return ct, nil
}
