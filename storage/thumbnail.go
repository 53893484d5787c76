package storage

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"strings"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

const defaultThumbWidth = 320

// ResizeThumbnailer 解码图片附件，缩到固定宽度后以 jpeg 回传对象存储
type ResizeThumbnailer struct {
	uploader Uploader
	maxWidth uint
}

// NewResizeThumbnailer NewResizeThumbnailer
func NewResizeThumbnailer(uploader Uploader, maxWidth uint) *ResizeThumbnailer {
	if maxWidth == 0 {
		maxWidth = defaultThumbWidth
	}
	return &ResizeThumbnailer{uploader: uploader, maxWidth: maxWidth}
}

// Thumbnail Thumbnail
func (t *ResizeThumbnailer) Thumbnail(ctx context.Context, key, contentType string, data []byte) (*Object, error) {
	if !strings.HasPrefix(contentType, "image/") {
		return nil, errors.Errorf("not an image: %s", contentType)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrapf(err, "decode image %s", key)
	}
	thumb := resize.Thumbnail(t.maxWidth, t.maxWidth, img, resize.Lanczos3)
	buf := &bytes.Buffer{}
	if err := jpeg.Encode(buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return nil, errors.Wrapf(err, "encode thumbnail %s", key)
	}
	return t.uploader.Upload(ctx, "thumb/"+key+".jpg", "image/jpeg", buf.Bytes())
}
