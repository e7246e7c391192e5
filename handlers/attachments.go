package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/erp_backend/models"
)

func uploadAttachment(c *gin.Context) {
	refId, valid := pathId(c, "referenceId")
	if !valid {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, models.MaxAttachmentSize+1<<20)
	fh, f, valid := formFile(c)
	if !valid {
		return
	}
	defer f.Close()
	a, err := models.CreateAttachment(c.Request.Context(), c.Param("referenceType"), refId, fh.Filename, f)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, a)
}

func listAttachments(c *gin.Context) {
	refId, valid := pathId(c, "referenceId")
	if !valid {
		return
	}
	rows, err := models.ListAttachments(c.Request.Context(), c.Param("referenceType"), refId)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, rows)
}

// downloadAttachment streams the file, or its JPEG thumbnail with
// ?thumbnail=true.
func downloadAttachment(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	thumb, valid := queryBool(c, "thumbnail")
	if !valid {
		return
	}
	wantThumb := thumb != nil && *thumb
	a, data, err := models.DownloadAttachment(c.Request.Context(), id, wantThumb)
	if err != nil {
		fail(c, err)
		return
	}
	contentType := a.ContentType
	if wantThumb {
		contentType = "image/jpeg"
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.FileName))
	c.Data(http.StatusOK, contentType, data)
}

func deleteAttachment(c *gin.Context) {
	id, valid := pathId(c, "id")
	if !valid {
		return
	}
	a, err := models.DeleteAttachment(c.Request.Context(), id)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, a)
}
