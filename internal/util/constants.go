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

// 口语录音上传相关常量
const (
	MimeAudio       = "audio/"
	MimeVideoWebm   = "video/webm"
	MimeOctetStream = "application/octet-stream"
)

var (
	AllowedAudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".webm", ".flac"}
)

// 验证码用途
const (
	OTPPurposeRegister = "register"
	OTPPurposeReset    = "reset_password"
)
