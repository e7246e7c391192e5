package models

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/mmdatafocus/erp_backend/config"
	"github.com/mmdatafocus/erp_backend/utils"
	"gorm.io/gorm"
)

const (
	MaxAttachmentSize = 20 << 20
	thumbnailWidth    = 200
)

type Attachment struct {
	ID            int       `gorm:"primary_key" json:"id"`
	ReferenceType string    `gorm:"size:50;not null;index:idx_attachment_reference,priority:1" json:"reference_type"`
	ReferenceId   int       `gorm:"not null;index:idx_attachment_reference,priority:2" json:"reference_id"`
	FileName      string    `gorm:"size:255;not null" json:"file_name"`
	ContentType   string    `gorm:"size:100" json:"content_type"`
	Size          int64     `gorm:"not null" json:"size"`
	ObjectKey     string    `gorm:"size:500;not null" json:"object_key"`
	ThumbnailKey  string    `gorm:"size:500" json:"thumbnail_key"`
	UploadedBy    int       `json:"uploaded_by"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// attachmentTables maps each reference type to the table holding its owners.
var attachmentTables = map[string]string{
	"invoices":              "invoices",
	"payments":              "payments",
	"bank_statements":       "bank_statements",
	"journal_entries":       "journal_entries",
	"purchase_requisitions": "purchase_requisitions",
	"purchase_orders":       "purchase_orders",
	"goods_receipts":        "goods_receipts",
	"business_partners":     "business_partners",
	"people":                "people",
}

func validateAttachmentReference(ctx context.Context, referenceType string, referenceId int) error {
	table, ok := attachmentTables[referenceType]
	if !ok {
		return utils.NewFieldValidationError("invalid reference type", map[string]string{"reference_type": "oneof"})
	}
	var count int64
	if err := config.GetDB().WithContext(ctx).Table(table).Where("id = ?", referenceId).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return fmt.Errorf("%s %d %w", referenceType, referenceId, utils.ErrorRecordNotFound)
	}
	return nil
}

func isImageFile(fileName string) bool {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff":
		return true
	}
	return false
}

func generateThumbnail(original []byte) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}
	thumbnail := imaging.Resize(img, thumbnailWidth, 0, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumbnail, imaging.JPEG); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CreateAttachment stores the file in object storage and records it against
// the referenced document. Images also get a JPEG thumbnail.
func CreateAttachment(ctx context.Context, referenceType string, referenceId int, fileName string, r io.Reader) (*Attachment, error) {
	if !utils.StorageConfigured() {
		return nil, utils.NewValidationError("attachment storage is not configured")
	}
	fileName = filepath.Base(strings.TrimSpace(fileName))
	if filepath.Ext(fileName) == "" {
		return nil, utils.NewFieldValidationError("file has no extension", map[string]string{"file": "extension"})
	}
	if err := validateAttachmentReference(ctx, referenceType, referenceId); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(r, MaxAttachmentSize+1))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, utils.NewFieldValidationError("file is empty", map[string]string{"file": "required"})
	}
	if len(data) > MaxAttachmentSize {
		return nil, utils.NewFieldValidationError("file is larger than 20MB", map[string]string{"file": "max"})
	}

	dir := path.Join("attachments", referenceType, fmt.Sprint(referenceId))
	unique := utils.GenerateUniqueFilename(fileName)
	attachment := Attachment{
		ReferenceType: referenceType,
		ReferenceId:   referenceId,
		FileName:      fileName,
		ContentType:   http.DetectContentType(data),
		Size:          int64(len(data)),
		ObjectKey:     path.Join(dir, unique),
		UploadedBy:    currentUserIdOrZero(ctx),
	}
	if err := utils.UploadBytesToGCS(ctx, attachment.ObjectKey, data, attachment.ContentType); err != nil {
		return nil, fmt.Errorf("failed to upload attachment: %w", err)
	}
	if isImageFile(fileName) {
		thumb, err := generateThumbnail(data)
		if err != nil {
			config.LogError(config.GetLogger(), "Attachment", "CreateAttachment", "generateThumbnail", fileName, err)
		} else {
			key := path.Join(dir, "thumbnails", strings.TrimSuffix(unique, filepath.Ext(unique))+".jpg")
			if err := utils.UploadBytesToGCS(ctx, key, thumb, "image/jpeg"); err != nil {
				config.LogError(config.GetLogger(), "Attachment", "CreateAttachment", "upload thumbnail", key, err)
			} else {
				attachment.ThumbnailKey = key
			}
		}
	}
	if err := config.GetDB().WithContext(ctx).Create(&attachment).Error; err != nil {
		attachment.removeObjects(ctx)
		return nil, err
	}
	return &attachment, nil
}

func (a *Attachment) removeObjects(ctx context.Context) {
	for _, key := range []string{a.ObjectKey, a.ThumbnailKey} {
		if key == "" {
			continue
		}
		if err := utils.DeleteFromGCS(ctx, key); err != nil {
			config.LogError(config.GetLogger(), "Attachment", "removeObjects", key, a.ID, err)
		}
	}
}

func GetAttachment(ctx context.Context, id int) (*Attachment, error) {
	return fetchModel[Attachment](ctx, nil, id)
}

func ListAttachments(ctx context.Context, referenceType string, referenceId int) ([]*Attachment, error) {
	var results []*Attachment
	err := config.GetDB().WithContext(ctx).
		Where("reference_type = ? AND reference_id = ?", referenceType, referenceId).
		Order("id").Find(&results).Error
	return results, err
}

// DownloadAttachment returns the stored bytes, or the thumbnail when asked
// and one exists.
func DownloadAttachment(ctx context.Context, id int, thumbnail bool) (*Attachment, []byte, error) {
	a, err := GetAttachment(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	key := a.ObjectKey
	if thumbnail {
		if a.ThumbnailKey == "" {
			return nil, nil, fmt.Errorf("thumbnail %w", utils.ErrorRecordNotFound)
		}
		key = a.ThumbnailKey
	}
	data, err := utils.DownloadFromGCS(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	return a, data, nil
}

func DeleteAttachment(ctx context.Context, id int) (*Attachment, error) {
	var a *Attachment
	err := runInTx(ctx, func(tx *gorm.DB) error {
		var err error
		if a, err = fetchModelForUpdate[Attachment](ctx, tx, id); err != nil {
			return err
		}
		return tx.Delete(a).Error
	})
	if err != nil {
		return nil, err
	}
	a.removeObjects(ctx)
	return a, nil
}
