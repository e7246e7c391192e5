package models

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsImageFile(t *testing.T) {
	assert.True(t, isImageFile("receipt.JPG"))
	assert.True(t, isImageFile("scan.png"))
	assert.False(t, isImageFile("statement.pdf"))
	assert.False(t, isImageFile("noext"))
}

func TestGenerateThumbnail(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 400, 100))
	for x := 0; x < 400; x++ {
		src.Set(x, x%100, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, src))

	thumb, err := generateThumbnail(buf.Bytes())
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(thumb))
	require.NoError(t, err)
	assert.Equal(t, 200, img.Bounds().Dx())
	assert.Equal(t, 50, img.Bounds().Dy())

	_, err = generateThumbnail([]byte("not an image"))
	assert.Error(t, err)
}
