package util

const (
	DateFormat = "2006-01-02"
	TimeFormat = "2006-01-02 15:04:05"
)

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 帧上传相关常量
const (
	MimeJPEG = "image/jpeg"
	MimePNG  = "image/png"
)

var (
	AllowedFrameTypes = []string{MimeJPEG, MimePNG, "image/webp"}
)
