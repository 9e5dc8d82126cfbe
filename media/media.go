// Package media stores uploaded files under the uploads directory and keeps
// their MediaFile rows in sync.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/rwcarlsen/goexif/exif"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
	"gorm.io/gorm"

	"axiscyber/common"
	"axiscyber/models"
)

const (
	MaxUploadSize = 10 << 20
	ThumbSize     = 400

	// URLPrefix is where the uploads directory is served from.
	URLPrefix = "/uploads"
)

var (
	ErrTooLarge        = errors.New("file is too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrEmptyFile       = errors.New("file is empty")
)

var extensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/gif":       ".gif",
	"image/webp":      ".webp",
	"application/pdf": ".pdf",
}

type Library struct {
	db  *gorm.DB
	dir string
}

func NewLibrary(db *gorm.DB, dir string) (*Library, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating uploads dir: %w", err)
	}
	return &Library{db: db, dir: dir}, nil
}

func (l *Library) Dir() string {
	return l.dir
}

// Upload stores fh under a fresh uuid directory. Images also get a
// thumbnail that fits ThumbSize x ThumbSize, rotated per their EXIF tag.
func (l *Library) Upload(ctx context.Context, fh *multipart.FileHeader, folder string) (*models.MediaFile, error) {
	if fh.Size > MaxUploadSize {
		return nil, ErrTooLarge
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxUploadSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	switch {
	case len(data) == 0:
		return nil, ErrEmptyFile
	case len(data) > MaxUploadSize:
		return nil, ErrTooLarge
	}

	mimeType := detectMimeType(data)
	ext, ok := extensions[mimeType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, mimeType)
	}

	id := uuid.NewString()
	dir := filepath.Join(l.dir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating media dir: %w", err)
	}

	name := storedName(fh.Filename, ext)
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		os.RemoveAll(dir)
		return nil, fmt.Errorf("writing upload: %w", err)
	}

	file := &models.MediaFile{
		UUID:       id,
		FileName:   filepath.Base(fh.Filename),
		StoredPath: URLPrefix + "/" + id + "/" + name,
		MimeType:   mimeType,
		Size:       int64(len(data)),
		Folder:     strings.TrimSpace(folder),
	}

	if strings.HasPrefix(mimeType, "image/") {
		if err := l.thumbnail(data, dir, id, mimeType, file); err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
	}

	if err := l.db.WithContext(ctx).Create(file).Error; err != nil {
		os.RemoveAll(dir)
		return nil, err
	}
	return file, nil
}

func (l *Library) thumbnail(data []byte, dir, id, mimeType string, file *models.MediaFile) error {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: cannot decode image: %v", ErrUnsupportedType, err)
	}
	img = applyOrientation(img, readOrientation(data))

	bounds := img.Bounds()
	file.Width, file.Height = bounds.Dx(), bounds.Dy()

	thumbName := "thumb.jpg"
	if mimeType == "image/png" || mimeType == "image/gif" {
		thumbName = "thumb.png"
	}
	thumb := imaging.Fit(img, ThumbSize, ThumbSize, imaging.Lanczos)
	if err := imaging.Save(thumb, filepath.Join(dir, thumbName), imaging.JPEGQuality(85)); err != nil {
		return fmt.Errorf("writing thumbnail: %w", err)
	}
	file.ThumbnailPath = URLPrefix + "/" + id + "/" + thumbName
	return nil
}

// Delete removes the row and every file stored for it.
func (l *Library) Delete(ctx context.Context, id uint) error {
	var file models.MediaFile
	if err := l.db.WithContext(ctx).First(&file, id).Error; err != nil {
		return err
	}
	if err := l.db.WithContext(ctx).Delete(&file).Error; err != nil {
		return err
	}
	if file.UUID == "" || strings.ContainsAny(file.UUID, `/\.`) {
		return nil
	}
	if err := os.RemoveAll(filepath.Join(l.dir, file.UUID)); err != nil {
		zap.S().Warnw("removing media files", "uuid", file.UUID, "error", err)
	}
	return nil
}

func detectMimeType(data []byte) string {
	contentType := http.DetectContentType(data)
	if i := strings.Index(contentType, ";"); i != -1 {
		contentType = contentType[:i]
	}
	return contentType
}

// storedName keeps the upload's base name readable but safe for any filesystem.
func storedName(original, ext string) string {
	base := strings.TrimSuffix(filepath.Base(original), filepath.Ext(original))
	base = common.Slugify(base)
	if base == "" {
		base = "file"
	}
	if len(base) > 80 {
		base = strings.Trim(base[:80], "-")
	}
	return base + ext
}

func readOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	orientation, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return orientation
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.FlipH(imaging.Rotate270(img))
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.FlipH(imaging.Rotate90(img))
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
