// Package storage 附件对象存储与缩略图生成。
// 引擎只依赖这里的接口，磁盘实现用于单机部署与测试。
package storage

import "context"

// Object 已落盘对象，URL 为可直接下发给客户端的外链
type Object struct {
	Key  string
	URL  string
	Size int64
}

// Uploader 对象存储接口。Upload 失败对整条消息是致命的，
// 调用方用 Remove 丢弃已经传上去的部分结果。
type Uploader interface {
	Upload(ctx context.Context, key, contentType string, data []byte) (*Object, error)
	Remove(ctx context.Context, key string) error
}

// Thumbnailer 图片缩略图接口。失败不致命，消息不带缩略图继续发送。
type Thumbnailer interface {
	Thumbnail(ctx context.Context, key, contentType string, data []byte) (*Object, error)
}
